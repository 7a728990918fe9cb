package model

import (
	"encoding/json"
	"strings"
)

// RawEntry is one per-chunk extracted record. Source files spell the same
// logical field under several keys (traditional/simplified Chinese, English);
// the adapter in UnmarshalJSON maps every recognized alias onto one canonical
// field so the rest of the engine never touches raw maps. Entries are
// immutable once loaded.
type RawEntry struct {
	Name          string   `json:"name"`
	Features      string   `json:"features,omitempty"`
	Personality   string   `json:"personality,omitempty"`
	Quote         string   `json:"quote,omitempty"`
	Motivation    string   `json:"motivation,omitempty"`
	Aliases       string   `json:"aliases,omitempty"`
	Relationships string   `json:"relationships,omitempty"`
	Notes         string   `json:"notes,omitempty"`
	Extra         Metadata `json:"extra,omitempty"`
	SourceFile    string   `json:"source_file,omitempty"`
}

// fieldAliases maps every recognized source key onto the canonical field.
// First alias listed per field is the canonical emission key.
var fieldAliases = map[string]string{
	"name": "name", "名字": "name",
	"features": "features", "特徵": "features", "特征": "features", "描述": "features",
	"personality": "personality", "性格": "personality",
	"quote": "quote", "說話習慣": "quote", "说话习惯": "quote",
	"motivation": "motivation", "動機": "motivation", "动机": "motivation",
	"aliases": "aliases", "別名": "aliases", "别名": "aliases",
	"relationships": "relationships", "人際關係": "relationships", "人际关系": "relationships",
	"notes": "notes", "備註": "notes", "备注": "notes",
	"source_file": "source_file",
}

// aliasOrder fixes the decode order: canonical English keys first, then the
// Chinese spellings grouped per field.
var aliasOrder = []string{
	"name", "名字",
	"features", "特徵", "特征", "描述",
	"personality", "性格",
	"quote", "說話習慣", "说话习惯",
	"motivation", "動機", "动机",
	"aliases", "別名", "别名",
	"relationships", "人際關係", "人际关系",
	"notes", "備註", "备注",
	"source_file",
}

// UnmarshalJSON decodes a raw record through the key-alias table.
// Unrecognized keys are carried in Extra unchanged.
func (e *RawEntry) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	// Aliases are visited in a fixed order so records carrying both a
	// Chinese and an English spelling of the same field decode the same way
	// every time.
	for _, key := range aliasOrder {
		value, present := raw[key]
		if !present {
			continue
		}
		canonical := fieldAliases[key]
		text := decodeLooseString(value)
		switch canonical {
		case "name":
			if e.Name == "" {
				e.Name = strings.TrimSpace(text)
			}
		case "features":
			e.Features = joinNonEmpty(e.Features, text)
		case "personality":
			e.Personality = joinNonEmpty(e.Personality, text)
		case "quote":
			e.Quote = joinNonEmpty(e.Quote, text)
		case "motivation":
			e.Motivation = joinNonEmpty(e.Motivation, text)
		case "aliases":
			e.Aliases = joinNonEmpty(e.Aliases, text)
		case "relationships":
			e.Relationships = joinNonEmpty(e.Relationships, text)
		case "notes":
			e.Notes = joinNonEmpty(e.Notes, text)
		case "source_file":
			e.SourceFile = strings.TrimSpace(text)
		}
	}

	for key, value := range raw {
		if _, known := fieldAliases[key]; known {
			continue
		}
		var any interface{}
		if err := json.Unmarshal(value, &any); err != nil {
			continue
		}
		if e.Extra == nil {
			e.Extra = Metadata{}
		}
		e.Extra[key] = any
	}
	return nil
}

// decodeLooseString accepts strings, string arrays, numbers and booleans;
// extractor output is not strictly typed.
func decodeLooseString(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		return strings.Join(list, "、")
	}
	var any interface{}
	if err := json.Unmarshal(data, &any); err == nil && any != nil {
		if b, err := json.Marshal(any); err == nil {
			return strings.Trim(string(b), `"`)
		}
	}
	return ""
}

func joinNonEmpty(existing, added string) string {
	added = strings.TrimSpace(added)
	if added == "" {
		return existing
	}
	if existing == "" {
		return added
	}
	return existing + "\n" + added
}

// DescriptiveText returns the concatenated free-text fields used to build
// the entry's feature set.
func (e *RawEntry) DescriptiveText() string {
	parts := []string{e.Features, e.Personality}
	var filled []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			filled = append(filled, p)
		}
	}
	return strings.Join(filled, " ")
}
