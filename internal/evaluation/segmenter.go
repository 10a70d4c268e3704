package evaluation

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

//go:embed dict/vi_words.txt
var defaultDictionary string

// WordJoiner links the syllables of one segmented word.
const WordJoiner = "_"

// Dictionary is a set of multi-syllable Vietnamese words keyed by their
// lowercase, space-separated syllables.
type Dictionary struct {
	words        map[string]struct{}
	maxSyllables int
}

// LoadDictionary reads one word per line. Blank lines and lines starting with
// '#' are skipped.
func LoadDictionary(r io.Reader) (*Dictionary, error) {
	d := &Dictionary{words: make(map[string]struct{})}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		syllables := strings.Fields(strings.ToLower(norm.NFC.String(line)))
		if len(syllables) < 2 {
			continue
		}
		d.words[strings.Join(syllables, " ")] = struct{}{}
		d.maxSyllables = max(d.maxSyllables, len(syllables))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	return d, nil
}

// DefaultDictionary loads the word list compiled into the binary.
func DefaultDictionary() (*Dictionary, error) {
	return LoadDictionary(strings.NewReader(defaultDictionary))
}

// Len returns the number of words in the dictionary.
func (d *Dictionary) Len() int { return len(d.words) }

func (d *Dictionary) contains(syllables []string) bool {
	_, ok := d.words[strings.Join(syllables, " ")]
	return ok
}

// Segmenter splits Vietnamese text into word tokens. Syllables forming a
// dictionary word are merged with WordJoiner using greedy longest match;
// punctuation becomes separate tokens. Original casing is kept.
//
// A Segmenter is read-only after construction and safe for concurrent use.
type Segmenter struct {
	dict *Dictionary
}

// NewSegmenter creates a Segmenter over dict.
func NewSegmenter(dict *Dictionary) *Segmenter {
	return &Segmenter{dict: dict}
}

// Segment returns the segmented text with tokens separated by single spaces.
func (s *Segmenter) Segment(text string) string {
	return strings.Join(s.Tokens(text), " ")
}

// Tokens returns the segmented tokens of text.
func (s *Segmenter) Tokens(text string) []string {
	raw := splitRaw(norm.NFC.String(text))
	out := make([]string, 0, len(raw))

	for i := 0; i < len(raw); {
		if !raw[i].word {
			out = append(out, raw[i].text)
			i++
			continue
		}
		n := s.longestMatch(raw[i:])
		parts := make([]string, n)
		for k := range n {
			parts[k] = raw[i+k].text
		}
		out = append(out, strings.Join(parts, WordJoiner))
		i += n
	}
	return out
}

// longestMatch returns how many leading syllables of toks form the longest
// dictionary word, or 1 when none do.
func (s *Segmenter) longestMatch(toks []rawToken) int {
	limit := 0
	for limit < len(toks) && limit < s.dict.maxSyllables && toks[limit].word {
		limit++
	}
	lower := make([]string, limit)
	for k := range limit {
		lower[k] = strings.ToLower(toks[k].text)
	}
	for n := limit; n >= 2; n-- {
		if s.dict.contains(lower[:n]) {
			return n
		}
	}
	return 1
}

type rawToken struct {
	text string
	word bool
}

// splitRaw cuts text into syllables and single punctuation marks. A '.', ','
// or '/' between two digits stays inside the number.
func splitRaw(text string) []rawToken {
	var toks []rawToken
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			toks = append(toks, rawToken{text: cur.String(), word: true})
			cur.Reset()
		}
	}

	var prev rune
	for i, r := range text {
		switch {
		case isSyllableRune(r):
			cur.WriteRune(r)
		case unicode.IsSpace(r):
			flush()
		case isNumberSeparator(r) && unicode.IsDigit(prev) && nextIsDigit(text, i+utf8.RuneLen(r)):
			cur.WriteRune(r)
		default:
			flush()
			toks = append(toks, rawToken{text: string(r)})
		}
		prev = r
	}
	flush()
	return toks
}

func isSyllableRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

func isNumberSeparator(r rune) bool { return r == '.' || r == ',' || r == '/' }

func nextIsDigit(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsDigit(r)
}
