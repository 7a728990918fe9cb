package normalize

import "regexp"

var featureSeparators = regexp.MustCompile(`[\s，；、,;]+`)

// FeatureSet builds the set of folded tokens from an entry's descriptive
// text. Order is irrelevant and duplicates collapse; the set only feeds
// content-overlap comparison.
func (n *Normalizer) FeatureSet(text string) map[string]struct{} {
	features := make(map[string]struct{})
	for _, token := range featureSeparators.Split(text, -1) {
		if token == "" {
			continue
		}
		features[n.Fold(token)] = struct{}{}
	}
	return features
}
