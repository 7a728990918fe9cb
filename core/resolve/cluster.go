package resolve

import (
	"sort"

	"github.com/siherrmann/rolecard/model"
	"golang.org/x/sync/errgroup"
)

// Clusterer partitions a batch of raw records into equivalence classes:
// every unordered pair is scored and pairs at or above the threshold are
// unioned. Members of a cluster are connected through a chain of
// pairwise matches, not necessarily pairwise-similar to every other member;
// that chaining is the defined behavior.
//
// The pass is O(n²) similarity evaluations, fine for batches up to a few
// thousand entries.
type Clusterer struct {
	Scorer    *Scorer
	Threshold float64
	// Workers caps concurrent pair scoring. Values below 2 keep the pass
	// sequential. Scoring is read-only; unions are always applied by a
	// single goroutine.
	Workers int
}

// NewClusterer creates a clusterer from the similarity configuration.
func NewClusterer(scorer *Scorer, config model.SimilarityConfig) *Clusterer {
	return &Clusterer{
		Scorer:    scorer,
		Threshold: config.NameThreshold,
		Workers:   config.Workers,
	}
}

// Cluster returns a partition of the input indices: every index appears in
// exactly one cluster. Clusters are ordered by their lowest member index,
// members ascending, so output is deterministic.
func (c *Clusterer) Cluster(entries []*model.RawEntry) [][]int {
	n := len(entries)
	if n == 0 {
		return [][]int{}
	}

	views := make([]entryView, n)
	for i, entry := range entries {
		views[i] = c.Scorer.view(entry)
	}

	uf := NewUnionFind(n)
	if c.Workers > 1 {
		for _, pair := range c.scoreParallel(views) {
			uf.Union(pair[0], pair[1])
		}
	} else {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if c.Scorer.score(views[i], views[j]) >= c.Threshold {
					uf.Union(i, j)
				}
			}
		}
	}

	groups := make(map[int][]int)
	for i := 0; i < n; i++ {
		root := uf.Find(i)
		groups[root] = append(groups[root], i)
	}

	clusters := make([][]int, 0, len(groups))
	for _, members := range groups {
		sort.Ints(members)
		clusters = append(clusters, members)
	}
	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i][0] < clusters[j][0]
	})
	return clusters
}

// scoreParallel fans the row space out over Workers goroutines and collects
// the qualifying pairs. The union-find is never touched here; the caller
// applies unions in one goroutine, so no locking is needed.
func (c *Clusterer) scoreParallel(views []entryView) [][2]int {
	n := len(views)
	results := make([][][2]int, n)

	var group errgroup.Group
	group.SetLimit(c.Workers)
	for i := 0; i < n; i++ {
		row := i
		group.Go(func() error {
			var matches [][2]int
			for j := row + 1; j < n; j++ {
				if c.Scorer.score(views[row], views[j]) >= c.Threshold {
					matches = append(matches, [2]int{row, j})
				}
			}
			results[row] = matches
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes.
	_ = group.Wait()

	var pairs [][2]int
	for _, matches := range results {
		pairs = append(pairs, matches...)
	}
	return pairs
}
