// Package cluster partitions a batch of embedding vectors into density-based
// clusters plus a noise set.
//
// The implementation follows HDBSCAN:
//  1. Core distance of each point (distance to its MinSamples-th neighbour).
//  2. Minimum spanning tree over the mutual-reachability distance.
//  3. Single-linkage hierarchy from the sorted MST edges.
//  4. Condensed tree where splits smaller than MinClusterSize are treated as
//     points falling out of their parent cluster.
//  5. Excess-of-Mass selection, which prefers a few long-lived clusters over
//     many short-lived fragments.
//
// The root of the hierarchy is never selected, so a batch with a single
// dense blob and nothing else is labeled entirely as noise.
package cluster

import (
	"math"
	"sort"

	"insight/internal/vector"
)

// Noise is the label assigned to points that belong to no cluster.
const Noise = -1

// minLambdaDistance keeps lambda = 1/distance finite for duplicate vectors.
const minLambdaDistance = 1e-10

// Config controls clustering. Zero values fall back to sensible defaults.
type Config struct {
	// MinClusterSize is the smallest group reported as a cluster. Batches
	// smaller than this are labeled noise without clustering.
	MinClusterSize int
	// MinSamples is the neighbourhood size used for core distances.
	// Defaults to MinClusterSize.
	MinSamples int
}

func (c Config) normalized() Config {
	if c.MinClusterSize < 2 {
		c.MinClusterSize = 2
	}
	if c.MinSamples <= 0 {
		c.MinSamples = c.MinClusterSize
	}
	return c
}

// Cluster returns one label per input vector: a dense cluster index starting
// at 0, or Noise. The output always has len(vectors) entries.
func Cluster(vectors [][]float32, cfg Config) []int {
	n := len(vectors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = Noise
	}

	cfg = cfg.normalized()
	if n < cfg.MinClusterSize {
		return labels
	}

	dist := pairwiseDistances(vectors)
	core := coreDistances(dist, cfg.MinSamples)
	edges := primMST(dist, core)
	h := singleLinkage(edges, n)
	ct := condense(h, n, cfg.MinClusterSize)
	selected := ct.selectEOM()
	return ct.label(selected, labels)
}

// Count returns the number of distinct clusters and noise points in labels.
func Count(labels []int) (clusters, noise int) {
	seen := make(map[int]struct{})
	for _, l := range labels {
		if l == Noise {
			noise++
			continue
		}
		seen[l] = struct{}{}
	}
	return len(seen), noise
}

func pairwiseDistances(vectors [][]float32) [][]float64 {
	n := len(vectors)
	dist := make([][]float64, n)
	for i := range dist {
		dist[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := vector.Euclidean(vectors[i], vectors[j])
			dist[i][j] = d
			dist[j][i] = d
		}
	}
	return dist
}

// coreDistances counts the point itself as its first neighbour.
func coreDistances(dist [][]float64, minSamples int) []float64 {
	n := len(dist)
	k := min(minSamples, n)
	core := make([]float64, n)
	row := make([]float64, n)
	for i := 0; i < n; i++ {
		copy(row, dist[i])
		sort.Float64s(row)
		core[i] = row[k-1]
	}
	return core
}

type edge struct {
	a, b   int
	weight float64
}

func mutualReachability(dist [][]float64, core []float64, i, j int) float64 {
	return math.Max(dist[i][j], math.Max(core[i], core[j]))
}

// primMST builds the minimum spanning tree of the dense mutual-reachability
// graph in O(n^2).
func primMST(dist [][]float64, core []float64) []edge {
	n := len(dist)
	inTree := make([]bool, n)
	best := make([]float64, n)
	from := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
		from[i] = -1
	}

	edges := make([]edge, 0, n-1)
	current := 0
	inTree[current] = true
	for len(edges) < n-1 {
		next := -1
		for j := 0; j < n; j++ {
			if inTree[j] {
				continue
			}
			if w := mutualReachability(dist, core, current, j); w < best[j] {
				best[j] = w
				from[j] = current
			}
			if next == -1 || best[j] < best[next] {
				next = j
			}
		}
		edges = append(edges, edge{a: from[next], b: next, weight: best[next]})
		inTree[next] = true
		current = next
	}
	return edges
}

// hierarchy is a single-linkage dendrogram. Leaves are 0..n-1; merge i
// creates node n+i.
type hierarchy struct {
	left, right []int
	dist        []float64
	size        []int
}

func (h *hierarchy) descendants(node, n int) []int {
	out := []int{node}
	for i := 0; i < len(out); i++ {
		cur := out[i]
		if cur >= n {
			out = append(out, h.left[cur-n], h.right[cur-n])
		}
	}
	return out
}

func singleLinkage(edges []edge, n int) *hierarchy {
	sort.SliceStable(edges, func(i, j int) bool { return edges[i].weight < edges[j].weight })

	total := 2*n - 1
	h := &hierarchy{
		left:  make([]int, n-1),
		right: make([]int, n-1),
		dist:  make([]float64, n-1),
		size:  make([]int, total),
	}
	parent := make([]int, total)
	for i := range parent {
		parent[i] = i
		if i < n {
			h.size[i] = 1
		}
	}
	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}

	for i, e := range edges {
		ra, rb := find(e.a), find(e.b)
		node := n + i
		h.left[i], h.right[i] = ra, rb
		h.dist[i] = e.weight
		h.size[node] = h.size[ra] + h.size[rb]
		parent[ra] = node
		parent[rb] = node
	}
	return h
}

type condensedRow struct {
	parent, child int
	lambda        float64
	size          int
}

// condensedTree labels clusters n, n+1, ...; n is the root.
type condensedTree struct {
	n        int
	clusters int
	rows     []condensedRow
}

func lambdaFor(d float64) float64 {
	return 1 / math.Max(d, minLambdaDistance)
}

func condense(h *hierarchy, n, minClusterSize int) *condensedTree {
	root := 2*n - 2
	relabel := make([]int, 2*n-1)
	ignore := make([]bool, 2*n-1)
	relabel[root] = n
	next := n + 1

	ct := &condensedTree{n: n}
	fallOut := func(parentLabel, side int, lambda float64) {
		for _, sub := range h.descendants(side, n) {
			if sub < n {
				ct.rows = append(ct.rows, condensedRow{parent: parentLabel, child: sub, lambda: lambda, size: 1})
			}
			ignore[sub] = true
		}
	}

	for _, node := range h.descendants(root, n) {
		if node < n || ignore[node] {
			continue
		}
		i := node - n
		left, right := h.left[i], h.right[i]
		lambda := lambdaFor(h.dist[i])
		ls, rs := h.size[left], h.size[right]
		label := relabel[node]

		switch {
		case ls >= minClusterSize && rs >= minClusterSize:
			relabel[left] = next
			ct.rows = append(ct.rows, condensedRow{parent: label, child: next, lambda: lambda, size: ls})
			next++
			relabel[right] = next
			ct.rows = append(ct.rows, condensedRow{parent: label, child: next, lambda: lambda, size: rs})
			next++
		case ls < minClusterSize && rs < minClusterSize:
			fallOut(label, left, lambda)
			fallOut(label, right, lambda)
		case ls < minClusterSize:
			relabel[right] = label
			fallOut(label, left, lambda)
		default:
			relabel[left] = label
			fallOut(label, right, lambda)
		}
	}

	ct.clusters = next - n
	return ct
}

// selectEOM returns, per cluster offset (label - n), whether the cluster is
// selected. The root (offset 0) is never selected.
func (ct *condensedTree) selectEOM() []bool {
	nc := ct.clusters
	birth := make([]float64, nc)
	children := make([][]int, nc)
	for _, r := range ct.rows {
		if r.size > 1 {
			birth[r.child-ct.n] = r.lambda
			children[r.parent-ct.n] = append(children[r.parent-ct.n], r.child-ct.n)
		}
	}

	stability := make([]float64, nc)
	for _, r := range ct.rows {
		p := r.parent - ct.n
		stability[p] += (r.lambda - birth[p]) * float64(r.size)
	}

	selected := make([]bool, nc)
	for c := 1; c < nc; c++ {
		selected[c] = true
	}
	// Children always carry larger labels than their parent, so walking
	// labels downward visits every subtree before its root.
	for c := nc - 1; c >= 1; c-- {
		var subtree float64
		for _, child := range children[c] {
			subtree += stability[child]
		}
		if len(children[c]) > 0 && subtree > stability[c] {
			selected[c] = false
			stability[c] = subtree
			continue
		}
		stack := append([]int(nil), children[c]...)
		for len(stack) > 0 {
			d := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			selected[d] = false
			stack = append(stack, children[d]...)
		}
	}
	return selected
}

func (ct *condensedTree) label(selected []bool, labels []int) []int {
	clusterParent := make([]int, ct.clusters)
	pointParent := make([]int, ct.n)
	for i := range clusterParent {
		clusterParent[i] = -1
	}
	for _, r := range ct.rows {
		if r.child < ct.n {
			pointParent[r.child] = r.parent - ct.n
		} else {
			clusterParent[r.child-ct.n] = r.parent - ct.n
		}
	}

	dense := make(map[int]int)
	for c := 1; c < ct.clusters; c++ {
		if selected[c] {
			dense[c] = len(dense)
		}
	}

	for p := 0; p < ct.n; p++ {
		c := pointParent[p]
		for c > 0 && !selected[c] {
			c = clusterParent[c]
		}
		if c > 0 {
			labels[p] = dense[c]
		}
	}
	return labels
}
