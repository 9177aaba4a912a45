package cluster

import (
	"context"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/shelfmatch/internal/model"
)

// lambdaCap bounds 1/distance for identical vectors.
const lambdaCap = 1e9

// HDBSCAN is a hierarchical density-based clusterer over cosine distance.
// It extends the classic algorithm in two ways: a selected cluster may never
// exceed maxClusterSize, and the whole input may form a single cluster so
// that a two-item bucket can merge.
type HDBSCAN struct {
	// MinSamples is the neighbourhood size for core distances, counting the
	// point itself. Zero uses minClusterSize.
	MinSamples int
	// MaxMergeDistance, when positive, is the cosine distance above which two
	// points are never linked. It also bounds membership of the single
	// whole-input cluster.
	MaxMergeDistance float64
}

type slEdge struct {
	a, b int
	w    float64
}

type condensed struct {
	parent int
	child  int
	lambda float64
	size   int
}

// Cluster labels each vector with a cluster id or model.NoiseLabel. A
// maxClusterSize of zero means unbounded.
func (h *HDBSCAN) Cluster(ctx context.Context, vectors [][]float32, minClusterSize, maxClusterSize int) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "hdbscan: cluster")
	}
	n := len(vectors)
	if n == 0 {
		return nil, nil
	}
	if err := checkVectors(vectors); err != nil {
		return nil, err
	}
	if minClusterSize < 2 {
		minClusterSize = 2
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = model.NoiseLabel
	}
	if n < minClusterSize {
		return labels, nil
	}

	dist := cosineMatrix(vectors)
	mrd := h.mutualReachability(dist, minClusterSize)
	edges := primMST(mrd)
	tree := condense(n, singleLinkage(n, edges), minClusterSize)
	selected := selectClusters(n, tree, maxClusterSize)

	h.label(n, tree, selected, labels)
	return compact(labels), nil
}

func checkVectors(vectors [][]float32) error {
	dim := len(vectors[0])
	for i, v := range vectors {
		if len(v) == 0 {
			return eris.Errorf("hdbscan: vector %d is empty", i)
		}
		if len(v) != dim {
			return eris.Errorf("hdbscan: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}

func cosineMatrix(vectors [][]float32) [][]float64 {
	n := len(vectors)
	norms := make([]float64, n)
	for i, v := range vectors {
		var s float64
		for _, x := range v {
			s += float64(x) * float64(x)
		}
		norms[i] = math.Sqrt(s)
	}

	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := 1.0
			if norms[i] > 0 && norms[j] > 0 {
				var dot float64
				for k := range vectors[i] {
					dot += float64(vectors[i][k]) * float64(vectors[j][k])
				}
				d = 1 - dot/(norms[i]*norms[j])
			}
			d = math.Max(0, math.Min(2, d))
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist
}

func (h *HDBSCAN) mutualReachability(dist [][]float64, minClusterSize int) [][]float64 {
	n := len(dist)
	k := h.MinSamples
	if k <= 0 {
		k = minClusterSize
	}
	k = min(k, n)

	core := make([]float64, n)
	row := make([]float64, n)
	for i := range dist {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[k-1]
	}

	mrd := make([][]float64, n)
	for i := range mrd {
		mrd[i] = make([]float64, n)
		for j := range mrd[i] {
			if i == j {
				continue
			}
			d := dist[i][j]
			if h.MaxMergeDistance > 0 && d > h.MaxMergeDistance {
				mrd[i][j] = math.Inf(1)
				continue
			}
			mrd[i][j] = math.Max(d, math.Max(core[i], core[j]))
		}
	}
	return mrd
}

// primMST returns the n-1 minimum spanning tree edges of a dense graph.
func primMST(w [][]float64) []slEdge {
	n := len(w)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
		from[i] = -1
	}

	edges := make([]slEdge, 0, n-1)
	cur := 0
	inTree[0] = true
	for len(edges) < n-1 {
		for j := 0; j < n; j++ {
			if !inTree[j] && (w[cur][j] < best[j] || from[j] < 0) {
				best[j] = w[cur][j]
				from[j] = cur
			}
		}
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if next < 0 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, slEdge{a: from[next], b: next, w: best[next]})
		inTree[next] = true
		cur = next
	}
	return edges
}

// slNode is an internal node of the single-linkage tree. Nodes 0..n-1 are
// the points; node n+i is the i-th merge.
type slNode struct {
	left, right int
	dist        float64
	size        int
}

func singleLinkage(n int, edges []slEdge) []slNode {
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].w < edges[j].w })

	parent := make([]int, 2*n-1)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	size := func(nodes []slNode, x int) int {
		if x < n {
			return 1
		}
		return nodes[x-n].size
	}

	nodes := make([]slNode, 0, n-1)
	for _, e := range edges {
		ra, rb := find(e.a), find(e.b)
		id := n + len(nodes)
		nodes = append(nodes, slNode{left: ra, right: rb, dist: e.w})
		nodes[len(nodes)-1].size = size(nodes, ra) + size(nodes, rb)
		parent[ra], parent[rb] = id, id
	}
	return nodes
}

func lambdaOf(d float64) float64 {
	if math.IsInf(d, 1) {
		return 0
	}
	return math.Min(1/math.Max(d, 1/lambdaCap), lambdaCap)
}

// condense walks the single-linkage tree top-down, keeping only splits where
// both sides have at least m points. Cluster ids start at n; n is the root.
func condense(n int, nodes []slNode, m int) []condensed {
	if len(nodes) == 0 {
		return nil
	}
	sizeOf := func(x int) int {
		if x < n {
			return 1
		}
		return nodes[x-n].size
	}
	var leaves func(x int, out []int) []int
	leaves = func(x int, out []int) []int {
		stack := []int{x}
		for len(stack) > 0 {
			y := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if y < n {
				out = append(out, y)
				continue
			}
			stack = append(stack, nodes[y-n].right, nodes[y-n].left)
		}
		return out
	}

	root := n + len(nodes) - 1
	relabel := map[int]int{root: n}
	next := n + 1
	var tree []condensed

	queue := []int{root}
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		if x < n {
			continue
		}
		node := nodes[x-n]
		lambda := lambdaOf(node.dist)
		parent := relabel[x]
		ls, rs := sizeOf(node.left), sizeOf(node.right)

		switch {
		case ls >= m && rs >= m:
			for _, c := range []int{node.left, node.right} {
				relabel[c] = next
				tree = append(tree, condensed{parent: parent, child: next, lambda: lambda, size: sizeOf(c)})
				next++
				queue = append(queue, c)
			}
		case ls < m && rs < m:
			for _, p := range leaves(node.left, leaves(node.right, nil)) {
				tree = append(tree, condensed{parent: parent, child: p, lambda: lambda, size: 1})
			}
		case ls < m:
			for _, p := range leaves(node.left, nil) {
				tree = append(tree, condensed{parent: parent, child: p, lambda: lambda, size: 1})
			}
			relabel[node.right] = parent
			queue = append(queue, node.right)
		default:
			for _, p := range leaves(node.right, nil) {
				tree = append(tree, condensed{parent: parent, child: p, lambda: lambda, size: 1})
			}
			relabel[node.left] = parent
			queue = append(queue, node.left)
		}
	}
	return tree
}

type clusterInfo struct {
	birth     float64
	stability float64
	size      int
	parent    int
	children  []int
}

func clusterTable(n int, tree []condensed) map[int]*clusterInfo {
	info := map[int]*clusterInfo{n: {parent: -1, size: n}}
	for _, e := range tree {
		if e.child >= n {
			info[e.child] = &clusterInfo{birth: e.lambda, size: e.size, parent: e.parent}
			info[e.parent].children = append(info[e.parent].children, e.child)
		}
	}
	for _, e := range tree {
		c := info[e.parent]
		c.stability += (e.lambda - c.birth) * float64(e.size)
	}
	return info
}

// selectClusters runs excess-of-mass selection bottom-up. Clusters larger
// than maxSize are never selected. The root needs strictly more stability
// than its children to win.
func selectClusters(n int, tree []condensed, maxSize int) map[int]bool {
	info := clusterTable(n, tree)
	ids := make([]int, 0, len(info))
	for id := range info {
		ids = append(ids, id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))

	fits := func(c *clusterInfo) bool { return maxSize <= 0 || c.size <= maxSize }
	best := make(map[int]float64, len(info))
	selected := make(map[int]bool, len(info))

	var deselect func(id int)
	deselect = func(id int) {
		for _, c := range info[id].children {
			selected[c] = false
			deselect(c)
		}
	}

	for _, id := range ids {
		c := info[id]
		if len(c.children) == 0 {
			selected[id] = fits(c)
			if selected[id] {
				best[id] = c.stability
			}
			continue
		}
		var sum float64
		for _, ch := range c.children {
			sum += best[ch]
		}
		wins := c.stability >= sum
		if id == n {
			wins = c.stability > sum
		}
		if fits(c) && wins {
			selected[id] = true
			best[id] = c.stability
			deselect(id)
			continue
		}
		best[id] = sum
	}

	out := make(map[int]bool)
	for id, ok := range selected {
		if ok {
			out[id] = true
		}
	}
	return out
}

func (h *HDBSCAN) label(n int, tree []condensed, selected map[int]bool, labels []int) {
	if len(selected) == 0 {
		return
	}
	parentOf := map[int]int{n: -1}
	pointParent := make([]int, n)
	pointLambda := make([]float64, n)
	rootMax := 0.0
	for _, e := range tree {
		if e.child >= n {
			parentOf[e.child] = e.parent
		} else {
			pointParent[e.child] = e.parent
			pointLambda[e.child] = e.lambda
		}
		if e.parent == n {
			rootMax = math.Max(rootMax, e.lambda)
		}
	}

	rootThreshold := rootMax
	if h.MaxMergeDistance > 0 {
		rootThreshold = 1 / h.MaxMergeDistance
	}

	for p := 0; p < n; p++ {
		c := pointParent[p]
		for c >= 0 && !selected[c] {
			c = parentOf[c]
		}
		switch {
		case c < 0:
		case c == n:
			if pointLambda[p] >= rootThreshold {
				labels[p] = c
			}
		default:
			labels[p] = c
		}
	}
}

// compact renumbers labels 0..k-1 in order of first occurrence.
func compact(labels []int) []int {
	ids := make(map[int]int)
	for i, l := range labels {
		if l == model.NoiseLabel {
			continue
		}
		id, ok := ids[l]
		if !ok {
			id = len(ids)
			ids[l] = id
		}
		labels[i] = id
	}
	return labels
}
