package reflow

import (
	"unicode"
	"unicode/utf8"
)

// span is one wrapped line within a block: a half-open byte range
// relative to the block text and the measured width of its visible
// content. Spans tile the block text exactly; trailing whitespace
// belongs to the preceding span but is excluded from its width.
type span struct {
	start, end int
	width      float64
}

// token is a maximal run of either whitespace or non-whitespace.
type token struct {
	start, end int
	space      bool
	width      float64
}

// tokenize splits text into alternating word and whitespace runs and
// measures each once. Measuring per run keeps kerning inside words
// while staying linear in the text length.
func tokenize(text string, m Measurer) ([]token, error) {
	var tokens []token
	start := 0
	space := false

	flush := func(end int) error {
		if end == start {
			return nil
		}
		w, err := m.Advance(text[start:end])
		if err != nil {
			return err
		}
		tokens = append(tokens, token{start: start, end: end, space: space, width: w})
		start = end
		return nil
	}

	for i, r := range text {
		isSpace := unicode.IsSpace(r)
		if i == start {
			space = isSpace
			continue
		}
		if isSpace != space {
			if err := flush(i); err != nil {
				return nil, err
			}
			space = isSpace
		}
	}
	if err := flush(len(text)); err != nil {
		return nil, err
	}
	return tokens, nil
}

// fragment is one piece of a hard-split word.
type fragment struct {
	end   int
	width float64
}

// splitRunes cuts a word that overflows an empty line into fragments
// no wider than maxWidth, breaking at rune boundaries. Every fragment
// advances by at least one rune, so splitting always terminates even
// when maxWidth is narrower than a single glyph.
func splitRunes(text string, tok token, m Measurer, maxWidth float64) ([]fragment, error) {
	var frags []fragment
	pos := tok.start
	for pos < tok.end {
		end := pos
		lineWidth := 0.0
		for end < tok.end {
			_, size := utf8.DecodeRuneInString(text[end:tok.end])
			if size == 0 {
				size = 1
			}
			w, err := m.Advance(text[pos : end+size])
			if err != nil {
				return nil, err
			}
			if w > maxWidth && end > pos {
				break
			}
			end += size
			lineWidth = w
		}
		frags = append(frags, fragment{end: end, width: lineWidth})
		pos = end
	}
	return frags, nil
}

// wrap performs greedy word wrapping of a block's text to maxWidth:
// break at word boundaries, fall back to rune boundaries for words
// wider than the whole line. Empty text yields a single empty span.
func wrap(text string, m Measurer, maxWidth float64) ([]span, error) {
	if text == "" {
		return []span{{}}, nil
	}

	tokens, err := tokenize(text, m)
	if err != nil {
		return nil, err
	}

	var (
		spans     []span
		lineStart = 0
		width     = 0.0 // visible width of the open line
		pending   = 0.0 // whitespace width since the last word
		hasWord   = false
	)

	emit := func(end int) {
		spans = append(spans, span{start: lineStart, end: end, width: width})
		lineStart = end
		width = 0
		pending = 0
		hasWord = false
	}

	for _, tok := range tokens {
		if tok.space {
			pending += tok.width
			continue
		}

		if hasWord && width+pending+tok.width > maxWidth {
			emit(tok.start)
		}

		if tok.width > maxWidth {
			frags, err := splitRunes(text, tok, m, maxWidth)
			if err != nil {
				return nil, err
			}
			// Close every fragment as its own line except the last,
			// which stays open so short words can still join it.
			for _, f := range frags[:len(frags)-1] {
				spans = append(spans, span{start: lineStart, end: f.end, width: f.width})
				lineStart = f.end
			}
			width = frags[len(frags)-1].width
			pending = 0
			hasWord = true
			continue
		}

		width += pending + tok.width
		pending = 0
		hasWord = true
	}
	emit(len(text))

	return spans, nil
}
