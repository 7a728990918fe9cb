// Package normalize turns raw entity names into comparable keys and
// descriptive text into token feature sets.
package normalize

import (
	"regexp"
	"strings"

	"github.com/longbridgeapp/opencc"
	"github.com/siherrmann/rolecard/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

// Normalizer canonicalizes entity names: one script and case form, alias
// table lookup, honorific stripping and bracket-annotation extraction.
// Normalize is a pure function of its input and the configuration; it
// never fails.
type Normalizer struct {
	aliases   map[string]string
	prefixes  []string
	suffixes  []string
	trueName  *regexp.Regexp
	brackets  *regexp.Regexp
	caser     cases.Caser
	converter *opencc.OpenCC
}

// NewNormalizer builds a normalizer from the configuration. The only error
// path is loading the traditional-to-simplified conversion dictionaries.
func NewNormalizer(config model.NormalizationConfig) (*Normalizer, error) {
	converter, err := opencc.New("t2s")
	if err != nil {
		return nil, err
	}

	markers := config.TrueNameMarkers
	if len(markers) == 0 {
		markers = []string{"本名"}
	}
	quoted := make([]string, 0, len(markers))
	for _, m := range markers {
		quoted = append(quoted, regexp.QuoteMeta(m))
	}

	// Non-greedy up to the first closing bracket. A greedy match would
	// swallow past the intended boundary when several bracketed groups
	// appear in one name.
	trueName := regexp.MustCompile(`[（(](?:` + strings.Join(quoted, "|") + `)[:：\s]*(.*?)[)）]`)
	brackets := regexp.MustCompile(`[（(].*?[)）]`)

	return &Normalizer{
		aliases:   config.NameAliases,
		prefixes:  config.HonorificPrefixes,
		suffixes:  config.HonorificSuffixes,
		trueName:  trueName,
		brackets:  brackets,
		caser:     cases.Fold(),
		converter: converter,
	}, nil
}

// Fold maps a string to a single script, width and case form.
func (n *Normalizer) Fold(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	s = width.Fold.String(s)
	s = n.caser.String(s)
	if converted, err := n.converter.Convert(s); err == nil {
		s = converted
	}
	return strings.TrimSpace(s)
}

// Normalize derives the canonical comparison key for a name.
// Empty or whitespace-only input yields an empty string.
func (n *Normalizer) Normalize(name string) string {
	name = n.Fold(name)
	if name == "" {
		return ""
	}

	if canonical, ok := n.aliases[name]; ok {
		return canonical
	}

	// At most one honorific stripped on each side.
	for _, prefix := range n.prefixes {
		if rest, ok := strings.CutPrefix(name, prefix); ok && rest != "" {
			name = rest
			break
		}
	}
	for _, suffix := range n.suffixes {
		if rest, ok := strings.CutSuffix(name, suffix); ok && rest != "" {
			name = rest
			break
		}
	}

	if match := n.trueName.FindStringSubmatch(name); match != nil {
		return n.Fold(match[1])
	}

	return strings.TrimSpace(n.brackets.ReplaceAllString(name, ""))
}
