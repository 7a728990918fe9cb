package resolve

import (
	"strings"

	"github.com/siherrmann/rolecard/core/normalize"
	"github.com/siherrmann/rolecard/model"
)

// Scorer computes a bounded [0,1] similarity between two raw records from
// their normalized names and descriptive feature overlap. Scores are
// symmetric.
type Scorer struct {
	norm   *normalize.Normalizer
	config model.SimilarityConfig
}

// NewScorer creates a scorer over the given normalizer and configuration.
func NewScorer(norm *normalize.Normalizer, config model.SimilarityConfig) *Scorer {
	return &Scorer{norm: norm, config: config}
}

// entryView caches the derived comparison state of one entry so the
// quadratic pass normalizes each entry only once.
type entryView struct {
	key      string
	features map[string]struct{}
}

func (s *Scorer) view(entry *model.RawEntry) entryView {
	return entryView{
		key:      s.norm.Normalize(entry.Name),
		features: s.norm.FeatureSet(entry.DescriptiveText()),
	}
}

// Similarity scores two raw records.
func (s *Scorer) Similarity(a, b *model.RawEntry) float64 {
	return s.score(s.view(a), s.view(b))
}

func (s *Scorer) score(a, b entryView) float64 {
	nameSim := sequenceRatio(a.key, b.key)

	// Residual containment after honorific stripping ("王" in "王家老三")
	// still signals identity.
	if a.key != "" && b.key != "" &&
		(strings.Contains(a.key, b.key) || strings.Contains(b.key, a.key)) {
		if nameSim < s.config.ContainmentBoost {
			nameSim = s.config.ContainmentBoost
		}
	}

	if nameSim >= s.config.NameThreshold {
		return nameSim
	}

	contentSim := jaccard(a.features, b.features)
	return s.config.NameWeight*nameSim + s.config.ContentWeight*contentSim
}

// sequenceRatio is a normalized character-sequence similarity over runes:
// (len(a)+len(b)-d) / (len(a)+len(b)) with d the edit distance counting a
// substitution as two edits. Identical strings score 1.0, disjoint ones 0.0.
func sequenceRatio(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return float64(total-editDistance(ra, rb)) / float64(total)
}

// editDistance with substitution cost 2, single-row dynamic programming.
func editDistance(a, b []rune) int {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) == 0 {
		return len(a)
	}

	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(a); i++ {
		previous := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 2
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current := row[j]
			row[j] = minOf(row[j]+1, row[j-1]+1, previous+cost)
			previous = current
		}
	}
	return row[len(b)]
}

func minOf(values ...int) int {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// jaccard is |A∩B| / |A∪B|, 0.0 when the union is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
