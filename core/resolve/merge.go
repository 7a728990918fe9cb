package resolve

import (
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/rolecard/core/normalize"
	"github.com/siherrmann/rolecard/model"
)

// Merger consolidates all records of one cluster into a single entity.
// Every aggregated list is deduplicated and either kept in first-seen order
// or sorted, so repeated merges of the same cluster produce byte-identical
// output regardless of internal map ordering.
type Merger struct {
	norm   *normalize.Normalizer
	config model.MergeConfig
}

// NewMerger creates a merger over the given normalizer and configuration.
func NewMerger(norm *normalize.Normalizer, config model.MergeConfig) *Merger {
	return &Merger{norm: norm, config: config}
}

// Merge aggregates a cluster into one MergedEntity. It always succeeds; a
// cluster without a single usable name yields the configured placeholder.
func (m *Merger) Merge(cluster []*model.RawEntry) *model.MergedEntity {
	names := make([]string, 0, len(cluster))
	seenNames := make(map[string]struct{})
	for _, entry := range cluster {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		if _, seen := seenNames[name]; seen {
			continue
		}
		seenNames[name] = struct{}{}
		names = append(names, name)
	}

	merged := &model.MergedEntity{
		RID:     uuid.New(),
		Creator: m.config.Creator,
		Version: m.config.CharacterVersion,
		Tags:    []string{},
		Metadata: model.MergedOrigin{
			MergedFromNames: sortedCopy(names),
			EntryCount:      len(cluster),
			SourceFiles:     distinctSourceFiles(cluster),
		},
	}

	if len(names) == 0 {
		merged.Name = m.config.PlaceholderName
		merged.Scenario = m.scenario(nil, nil)
		return merged
	}

	merged.Name = m.selectCanonicalName(names)
	merged.Aliases = m.aliases(names, merged.Name)

	var descriptions, quotes, motivations []string
	seenDescription := make(map[string]struct{})
	seenQuote := make(map[string]struct{})
	seenMotivation := make(map[string]struct{})
	personalities := make(map[string]struct{})

	for _, entry := range cluster {
		if d := strings.TrimSpace(entry.Features); d != "" {
			if _, seen := seenDescription[d]; !seen {
				seenDescription[d] = struct{}{}
				descriptions = append(descriptions, d)
			}
		}
		for _, p := range splitPersonality(entry.Personality) {
			personalities[p] = struct{}{}
		}
		if q := strings.TrimSpace(entry.Quote); q != "" {
			if _, seen := seenQuote[q]; !seen {
				seenQuote[q] = struct{}{}
				quotes = append(quotes, q)
			}
		}
		if mo := strings.TrimSpace(entry.Motivation); mo != "" {
			if _, seen := seenMotivation[mo]; !seen {
				seenMotivation[mo] = struct{}{}
				motivations = append(motivations, mo)
			}
		}
		for key, value := range entry.Extra {
			if merged.Extra == nil {
				merged.Extra = model.Metadata{}
			}
			if _, present := merged.Extra[key]; !present {
				merged.Extra[key] = value
			}
		}
	}

	sortedPersonalities := make([]string, 0, len(personalities))
	for p := range personalities {
		sortedPersonalities = append(sortedPersonalities, p)
	}
	sort.Strings(sortedPersonalities)

	merged.Description = strings.Join(descriptions, "\n")
	merged.Personality = strings.Join(sortedPersonalities, "\n")
	merged.Scenario = m.scenario(merged.Aliases, motivations)
	merged.FirstMessage = strings.Join(quotes, "\n")
	merged.Tags = headOf(sortedPersonalities, m.config.MaxTags)

	return merged
}

// selectCanonicalName picks the display name for a cluster. Descriptive
// names (matching a relationship pattern) only win when no clean name
// exists; within a partition the shortest name wins, ties going to the
// earliest contributed one.
func (m *Merger) selectCanonicalName(names []string) string {
	var clean, descriptive []string
	for _, name := range names {
		if m.isDescriptive(name) {
			descriptive = append(descriptive, name)
		} else {
			clean = append(clean, name)
		}
	}

	if len(clean) > 0 {
		return shortestName(clean)
	}
	if len(descriptive) > 0 {
		return shortestName(descriptive)
	}
	return shortestName(names)
}

func (m *Merger) isDescriptive(name string) bool {
	for _, pattern := range m.config.RelationshipPatterns {
		if strings.Contains(name, pattern) {
			return true
		}
	}
	return false
}

// shortestName returns the shortest name by rune count; the input order is
// contribution order, so the first shortest wins ties.
func shortestName(names []string) string {
	best := names[0]
	bestLen := len([]rune(best))
	for _, name := range names[1:] {
		if l := len([]rune(name)); l < bestLen {
			best, bestLen = name, l
		}
	}
	return best
}

// aliases returns the folded form of every contributed name that does not
// normalize to the canonical name's key, deduplicated and sorted. A name
// differing only by honorifics or bracket annotations is the same name,
// not an alias.
func (m *Merger) aliases(names []string, canonical string) []string {
	canonicalKey := m.norm.Normalize(canonical)
	seen := make(map[string]struct{})
	for _, name := range names {
		if name == canonical {
			continue
		}
		folded := m.norm.Fold(name)
		if folded == "" || m.norm.Normalize(name) == canonicalKey {
			continue
		}
		seen[folded] = struct{}{}
	}

	aliases := make([]string, 0, len(seen))
	for alias := range seen {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func (m *Merger) scenario(aliases, motivations []string) string {
	motive := m.config.UnknownMotivation
	if len(motivations) > 0 {
		motive = strings.Join(motivations, " 或 ")
	}
	return "别名: " + strings.Join(aliases, ", ") + "\n动机: " + motive
}

var personalitySeparators = strings.NewReplacer("，", ",", "；", ",", "、", ",", ";", ",", "\n", ",")

// splitPersonality tokenizes personality text on the common separators.
// Phrases from different sources are interchangeable, so the merger sorts
// them instead of concatenating.
func splitPersonality(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	normalized := personalitySeparators.Replace(text)
	var tokens []string
	for _, token := range strings.Split(normalized, ",") {
		token = strings.TrimSpace(token)
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

func distinctSourceFiles(cluster []*model.RawEntry) []string {
	seen := make(map[string]struct{})
	for _, entry := range cluster {
		if entry.SourceFile != "" {
			seen[entry.SourceFile] = struct{}{}
		}
	}
	files := make([]string, 0, len(seen))
	for file := range seen {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

func sortedCopy(values []string) []string {
	copied := append([]string(nil), values...)
	sort.Strings(copied)
	if copied == nil {
		copied = []string{}
	}
	return copied
}

func headOf(values []string, n int) []string {
	if n <= 0 || len(values) == 0 {
		return []string{}
	}
	if len(values) < n {
		n = len(values)
	}
	return append([]string{}, values[:n]...)
}
