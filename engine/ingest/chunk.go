package ingest

import "strings"

const (
	// DefaultChunkSize is the target fragment size in characters.
	DefaultChunkSize = 800
	// DefaultChunkOverlap is how many characters adjacent fragments share.
	DefaultChunkOverlap = 120
)

// DefaultSeparators is the separator hierarchy, most preferred first:
// paragraph break, line break, sentence-ending punctuation, clause
// punctuation, whitespace.
var DefaultSeparators = []string{"\n\n", "\n", ". ", "? ", "! ", "; ", ", ", " "}

// Chunker splits normalized text into fragments near Size characters,
// preferring the earliest separator in the hierarchy and recursing into finer
// separators when a piece is still too large. Separators stay attached to the
// preceding piece, so concatenating all fragments (minus overlap regions)
// reconstructs the input.
type Chunker struct {
	Size       int
	Overlap    int
	Separators []string
}

// NewChunker creates a Chunker with the default sizing and hierarchy.
func NewChunker() *Chunker {
	return &Chunker{
		Size:       DefaultChunkSize,
		Overlap:    DefaultChunkOverlap,
		Separators: DefaultSeparators,
	}
}

// Split breaks text into ordered fragments. Fragment order follows source
// order and must be preserved through embedding and upsert.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	if len(text) <= c.Size {
		return []string{text}
	}
	return c.split(text, c.Separators)
}

func (c *Chunker) split(text string, seps []string) []string {
	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		// No separator occurs in the text: hard-slice.
		return c.hardSplit(text)
	}

	parts := strings.SplitAfter(text, sep)

	var out []string
	var pending []string
	for _, p := range parts {
		if len(p) <= c.Size {
			pending = append(pending, p)
			continue
		}
		out = append(out, c.merge(pending)...)
		pending = nil
		if len(rest) == 0 {
			out = append(out, c.hardSplit(p)...)
		} else {
			out = append(out, c.split(p, rest)...)
		}
	}
	return append(out, c.merge(pending)...)
}

// pickSeparator returns the first separator present in text plus the finer
// ones after it, or "" when none occurs.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, s := range seps {
		if strings.Contains(text, s) {
			return s, seps[i+1:]
		}
	}
	return "", nil
}

// merge packs consecutive small pieces into fragments of up to Size
// characters. When a fragment closes, its trailing pieces totalling at most
// Overlap characters are carried into the next fragment.
func (c *Chunker) merge(parts []string) []string {
	if len(parts) == 0 {
		return nil
	}

	var out []string
	var cur []string
	curLen := 0

	for _, p := range parts {
		if curLen > 0 && curLen+len(p) > c.Size {
			out = append(out, strings.Join(cur, ""))

			var keep []string
			kept := 0
			for i := len(cur) - 1; i >= 0; i-- {
				if kept+len(cur[i]) > c.Overlap {
					break
				}
				keep = append([]string{cur[i]}, keep...)
				kept += len(cur[i])
			}
			cur, curLen = keep, kept
		}
		cur = append(cur, p)
		curLen += len(p)
	}

	if curLen > 0 {
		out = append(out, strings.Join(cur, ""))
	}
	return out
}

// hardSplit slices text at fixed character offsets. Last resort for content
// with no usable separator, such as one enormous token.
func (c *Chunker) hardSplit(text string) []string {
	step := c.Size - c.Overlap
	if step <= 0 {
		step = c.Size
	}

	var out []string
	for start := 0; start < len(text); start += step {
		end := start + c.Size
		if end >= len(text) {
			out = append(out, text[start:])
			break
		}
		out = append(out, text[start:end])
	}
	return out
}
