package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// boilerplatePatterns match copyright and scanlation banners that would
// otherwise leak into extraction prompts.
var boilerplatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`┏━+┓`),
	regexp.MustCompile(`┗━+┛`),
	regexp.MustCompile(`精校小说尽在`),
	regexp.MustCompile(`本电子书由.*整理校对`),
	regexp.MustCompile(`版权归原作者所有`),
	regexp.MustCompile(`请勿转载`),
	regexp.MustCompile(`请勿用于.*商业用途`),
}

// CleanText removes boilerplate lines while keeping the paragraph structure.
func CleanText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			cleaned = append(cleaned, "")
			continue
		}
		line = strings.TrimSpace(line)

		skip := false
		for _, pattern := range boilerplatePatterns {
			if pattern.MatchString(line) {
				skip = true
				break
			}
		}
		if !skip {
			cleaned = append(cleaned, line)
		}
	}

	return strings.Join(cleaned, "\n")
}

// SizeChunker creates a chunker that packs cleaned paragraphs up to
// maxChars runes per chunk, carrying overlap runes of the previous chunk
// into the next one so entities straddling a boundary appear in both.
// Counting runes keeps CJK text budgeted by character, not byte.
func SizeChunker(maxChars int, overlap int) ChunkFunc {
	return func(text string, baseName string) ([]Chunk, error) {
		if maxChars <= 0 {
			return nil, fmt.Errorf("max chunk chars must be positive")
		}

		text = CleanText(text)
		if strings.TrimSpace(text) == "" {
			return []Chunk{}, nil
		}

		var contents []string
		var current string
		var currentRunes int

		for _, paragraph := range strings.Split(text, "\n\n") {
			paragraph = strings.TrimSpace(paragraph)
			if paragraph == "" {
				continue
			}
			paragraphRunes := utf8.RuneCountInString(paragraph)

			if currentRunes+paragraphRunes > maxChars {
				if current != "" {
					contents = append(contents, current)
					if overlap > 0 {
						tail := tailRunes(current, overlap)
						current = tail + "\n\n" + paragraph
						currentRunes = utf8.RuneCountInString(tail) + paragraphRunes
					} else {
						current = paragraph
						currentRunes = paragraphRunes
					}
				} else {
					// Single oversized paragraph becomes its own chunk.
					contents = append(contents, paragraph)
					current = ""
					currentRunes = 0
				}
			} else if current != "" {
				current += "\n\n" + paragraph
				currentRunes += paragraphRunes
			} else {
				current = paragraph
				currentRunes = paragraphRunes
			}
		}
		if current != "" {
			contents = append(contents, current)
		}

		return nameChunks(contents, baseName), nil
	}
}

// ChapterChunker creates a chunker that splits on chapter headings.
// Text before the first heading becomes its own chunk.
func ChapterChunker(patterns []string) (ChunkFunc, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile("^" + pattern)
		if err != nil {
			return nil, fmt.Errorf("compile chapter pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, re)
	}

	return func(text string, baseName string) ([]Chunk, error) {
		text = CleanText(text)

		var contents []string
		var current []string

		flush := func() {
			if len(current) > 0 {
				contents = append(contents, strings.Join(current, "\n"))
				current = nil
			}
		}

		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			heading := false
			for _, re := range compiled {
				if re.MatchString(line) {
					heading = true
					break
				}
			}
			if heading {
				flush()
			}
			current = append(current, line)
		}
		flush()

		return nameChunks(contents, baseName), nil
	}, nil
}

func nameChunks(contents []string, baseName string) []Chunk {
	chunks := make([]Chunk, 0, len(contents))
	pos := 0
	for i, content := range contents {
		start := pos
		end := pos + len(content)
		chunks = append(chunks, Chunk{
			Name:     fmt.Sprintf("%s_chunk_%03d", baseName, i+1),
			Content:  content,
			Index:    i,
			StartPos: start,
			EndPos:   end,
		})
		pos = end
	}
	return chunks
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
