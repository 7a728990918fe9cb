package model

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// ValidName reports whether a name is usable for clustering: long enough,
// not purely numeric and not stoplisted.
func (v ValidationConfig) ValidName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if utf8.RuneCountInString(name) < v.MinNameLength {
		return false
	}
	numeric := true
	for _, r := range name {
		if !unicode.IsDigit(r) {
			numeric = false
			break
		}
	}
	if numeric {
		return false
	}
	for _, stop := range v.NameStoplist {
		if name == stop {
			return false
		}
	}
	return true
}
