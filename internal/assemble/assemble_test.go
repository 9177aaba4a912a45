package assemble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/shelfmatch/internal/model"
)

func listing(id, shop, title string, price float64) model.ProductComponents {
	return model.ProductComponents{Listing: model.RawListing{ID: id, ShopID: shop, Title: title, Price: price}}
}

var key = model.ConstraintKey{Brand: "kelloggs", Size: "410g", Package: model.NoPackage}

func TestAdd_AssignsMonotonicIDs(t *testing.T) {
	a := NewAssembler(1)
	members := []model.ProductComponents{
		listing("a1", "A", "Kellogg's Krave", 3.99),
		listing("b1", "B", "Krave", 4.29),
		listing("c1", "C", "Other", 1),
	}

	first := a.Add(key, members, [][]int{{0, 1}, {2}})
	second := a.Add(key, members[:1], [][]int{{0}})

	require.Len(t, first, 2)
	assert.Equal(t, 1, first[0].ID)
	assert.Equal(t, 2, first[1].ID)
	assert.Equal(t, 3, second[0].ID)
	assert.Equal(t, 4, a.next)
}

func TestAdd_CountersAreRunScoped(t *testing.T) {
	members := []model.ProductComponents{listing("a", "A", "x", 1)}

	p1 := NewAssembler(1).Add(key, members, [][]int{{0}})
	p2 := NewAssembler(1).Add(key, members, [][]int{{0}})

	assert.Equal(t, p1[0].ID, p2[0].ID)
}

func TestAdd_PreservesMemberOrderAndAggregates(t *testing.T) {
	members := []model.ProductComponents{
		listing("a1", "A", "  Kellogg's   Krave\tChoco Nut 410g ", 3.99),
		listing("x", "X", "unrelated", 9),
		listing("b1", "B", "Δημητριακά Krave 410γρ", 4.29),
		listing("a2", "A", "Krave 410g", 0),
	}

	got := NewAssembler(10).Add(key, members, [][]int{{0, 2, 3}})

	require.Len(t, got, 1)
	p := got[0]
	assert.Equal(t, 10, p.ID)
	assert.Equal(t, key, p.Key)
	assert.Equal(t, []string{"a1", "b1", "a2"}, p.ListingRefs())
	assert.Equal(t, "Kellogg's Krave Choco Nut 410g", p.Name)
	assert.Equal(t, 3.99, p.MinPrice)
	assert.Equal(t, 4.29, p.MaxPrice)
	assert.Equal(t, 2, p.ShopCount)
}

func TestAdd_SkipsEmptyClusters(t *testing.T) {
	a := NewAssembler(1)
	got := a.Add(key, []model.ProductComponents{listing("a", "A", "x", 1)}, [][]int{{}, {0}})

	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].ID)
}

func TestName_FallsBackToNormalized(t *testing.T) {
	m := listing("a", "A", "   ", 0)
	m.Normalized = "krave"

	assert.Equal(t, "krave", Name([]model.ProductComponents{m}))
	assert.Empty(t, Name(nil))
}

func TestPriceRange_NoPrices(t *testing.T) {
	lo, hi := PriceRange([]model.ProductComponents{listing("a", "A", "x", 0)})

	assert.Zero(t, lo)
	assert.Zero(t, hi)
}
