package ingestion_engine

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators orders the boundaries the splitter prefers: paragraph
// breaks, then line breaks, then sentence ends, then words, then runes.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// RecursiveSplitter cuts text into chunks of at most chunkSize runes,
// reusing up to chunkOverlap trailing runes of each chunk as the start of
// the next. Splitting is deterministic: the same input always yields the
// same chunks.
type RecursiveSplitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

func NewRecursiveSplitter(chunkSize, chunkOverlap int) *RecursiveSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}
	return &RecursiveSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}
}

func (s *RecursiveSplitter) SplitText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.splitText(text, s.separators)
}

func (s *RecursiveSplitter) splitText(text string, separators []string) []string {
	// Pick the first separator actually present; "" always matches.
	separator := separators[len(separators)-1]
	var remaining []string
	for i, sep := range separators {
		if sep == "" || strings.Contains(text, sep) {
			separator = sep
			remaining = separators[i+1:]
			break
		}
	}

	splits := splitKeepingSeparator(text, separator)

	var (
		final []string
		good  []string
	)
	for _, piece := range splits {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			good = append(good, piece)
			continue
		}
		// Oversized piece: flush what we have, then recurse with the
		// finer separators.
		if len(good) > 0 {
			final = append(final, s.mergeSplits(good)...)
			good = nil
		}
		if len(remaining) == 0 {
			final = append(final, piece)
		} else {
			final = append(final, s.splitText(piece, remaining)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergeSplits(good)...)
	}
	return final
}

// splitKeepingSeparator splits text on sep, attaching the separator to the
// start of the following piece so no characters are lost when rejoining.
func splitKeepingSeparator(text, sep string) []string {
	if sep == "" {
		runes := []rune(text)
		out := make([]string, 0, len(runes))
		for _, r := range runes {
			out = append(out, string(r))
		}
		return out
	}

	parts := strings.Split(text, sep)
	out := make([]string, 0, len(parts))
	for i, p := range parts {
		if i > 0 {
			p = sep + p
		}
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// mergeSplits packs adjacent pieces into chunks bounded by chunkSize,
// carrying chunkOverlap runes of tail into each successive chunk. The
// separator is already attached to each piece by splitKeepingSeparator.
func (s *RecursiveSplitter) mergeSplits(splits []string) []string {
	var (
		chunks  []string
		current []string
		total   int
	)

	for _, piece := range splits {
		l := utf8.RuneCountInString(piece)
		if total+l > s.chunkSize && len(current) > 0 {
			if c := joinTrim(current); c != "" {
				chunks = append(chunks, c)
			}
			// Pop from the front until the kept tail fits the overlap
			// budget and leaves room for the incoming piece.
			for total > s.chunkOverlap || (total+l > s.chunkSize && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += l
	}

	if c := joinTrim(current); c != "" {
		chunks = append(chunks, c)
	}
	return chunks
}

func joinTrim(parts []string) string {
	return strings.TrimSpace(strings.Join(parts, ""))
}
