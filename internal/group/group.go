// Package group partitions parsed listings into exact-match constraint
// buckets so that only listings that can be the same product are compared.
package group

import "github.com/sells-group/shelfmatch/internal/model"

// Key derives the constraint key of pc, substituting sentinels for missing
// components.
func Key(pc model.ProductComponents) model.ConstraintKey {
	k := model.ConstraintKey{
		Brand:   pc.Brand,
		Size:    pc.SizeString(),
		Package: pc.Package,
	}
	if !pc.HasBrand() {
		k.Brand = model.UnknownBrand
	}
	if !pc.HasPackage() {
		k.Package = model.NoPackage
	}
	return k
}

// Bucket is the set of listings that share one constraint key. Members holds
// indexes into the slice given to Partition, in input order.
type Bucket struct {
	Key     model.ConstraintKey
	Members []int
}

// Buckets is an insertion-ordered set of buckets.
type Buckets struct {
	index map[model.ConstraintKey]int
	list  []*Bucket
}

// Partition groups components by Key. Bucket order is the order in which
// each key was first seen.
func Partition(components []model.ProductComponents) *Buckets {
	b := &Buckets{index: make(map[model.ConstraintKey]int)}
	for i, pc := range components {
		b.add(Key(pc), i)
	}
	return b
}

func (b *Buckets) add(k model.ConstraintKey, member int) {
	pos, ok := b.index[k]
	if !ok {
		pos = len(b.list)
		b.index[k] = pos
		b.list = append(b.list, &Bucket{Key: k})
	}
	b.list[pos].Members = append(b.list[pos].Members, member)
}

// Len returns the number of buckets.
func (b *Buckets) Len() int { return len(b.list) }

// All returns buckets in first-seen order.
func (b *Buckets) All() []*Bucket { return b.list }
