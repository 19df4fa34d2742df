// Package phrase recognises command phrases ("bye", "stop", ...) in
// transcripts.
//
// Matching proceeds in two stages:
//
//  1. Substring: a phrase matches when it occurs anywhere in the transcript,
//     case-insensitively.
//
//  2. Phonetic (optional): when no substring matches, every transcript token
//     is compared with every phrase token. A token pair matches when their
//     Double Metaphone codes overlap and their Jaro-Winkler similarity is at
//     least the configured threshold. This catches mis-transcriptions such as
//     "by" for "bye" or "quid" for "quit".
package phrase

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const defaultPhoneticThreshold = 0.80

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhonetic enables the phonetic fallback with the given minimum
// Jaro-Winkler score. A threshold of 0 selects the default of 0.80.
func WithPhonetic(threshold float64) Option {
	return func(m *Matcher) {
		m.phonetic = true
		if threshold > 0 {
			m.threshold = threshold
		}
	}
}

// Matcher matches transcripts against a fixed phrase list. It is read-only
// after construction and safe for concurrent use.
type Matcher struct {
	phrases   []entry
	phonetic  bool
	threshold float64
}

type entry struct {
	original string
	lower    string
	tokens   []string
	codes    map[string]struct{}
}

// New returns a Matcher for phrases. Blank phrases are ignored.
func New(phrases []string, opts ...Option) *Matcher {
	m := &Matcher{threshold: defaultPhoneticThreshold}
	for _, o := range opts {
		o(m)
	}
	for _, p := range phrases {
		lower := strings.ToLower(strings.TrimSpace(p))
		if lower == "" {
			continue
		}
		toks := tokens(lower)
		m.phrases = append(m.phrases, entry{
			original: p,
			lower:    lower,
			tokens:   toks,
			codes:    codesForTokens(toks),
		})
	}
	return m
}

// Phrases returns the configured phrases.
func (m *Matcher) Phrases() []string {
	out := make([]string, len(m.phrases))
	for i, e := range m.phrases {
		out[i] = e.original
	}
	return out
}

// Match reports whether transcript contains one of the phrases and returns
// the first phrase that matched.
func (m *Matcher) Match(transcript string) (string, bool) {
	lower := strings.ToLower(transcript)
	if strings.TrimSpace(lower) == "" {
		return "", false
	}
	for _, e := range m.phrases {
		if strings.Contains(lower, e.lower) {
			return e.original, true
		}
	}
	if !m.phonetic {
		return "", false
	}

	words := tokens(lower)
	for _, e := range m.phrases {
		if m.phoneticMatch(words, e) {
			return e.original, true
		}
	}
	return "", false
}

// phoneticMatch requires every phrase token to have a phonetically similar
// transcript token.
func (m *Matcher) phoneticMatch(words []string, e entry) bool {
	if len(e.tokens) == 0 {
		return false
	}
	for _, pt := range e.tokens {
		ptCodes := codesForTokens([]string{pt})
		found := false
		for _, w := range words {
			if !codesOverlap(ptCodes, codesForTokens([]string{w})) {
				continue
			}
			if matchr.JaroWinkler(w, pt, false) >= m.threshold {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// tokens splits s on anything that is not a letter or digit.
func tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(toks []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(toks)*2)
	for _, t := range toks {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
