// Package resolve contains the entity resolution engine: pairwise
// similarity scoring, union-find clustering and cluster merging.
package resolve

// UnionFind is a disjoint-set over the indices 0..n-1 with path compression
// and union by rank. One instance is created per clustering call; it is not
// safe for concurrent use.
type UnionFind struct {
	parent []int
	rank   []int
}

// NewUnionFind creates a partition of n singleton sets.
func NewUnionFind(n int) *UnionFind {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	return &UnionFind{
		parent: parent,
		rank:   make([]int, n),
	}
}

// Find returns the root of i's set, compressing the path on the way.
func (u *UnionFind) Find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

// Union merges the sets of i and j.
func (u *UnionFind) Union(i, j int) {
	rootI, rootJ := u.Find(i), u.Find(j)
	if rootI == rootJ {
		return
	}
	if u.rank[rootI] < u.rank[rootJ] {
		rootI, rootJ = rootJ, rootI
	}
	u.parent[rootJ] = rootI
	if u.rank[rootI] == u.rank[rootJ] {
		u.rank[rootI]++
	}
}
