// Package match holds the content-matching policy used against catalog keys.
package match

import (
	"regexp"
)

// WholeWord compiles key into a case-insensitive pattern that only matches
// when the key is bounded by the text edge or by a rune that is not a
// letter, digit or underscore. Unlike \b this works for Cyrillic keys.
func WholeWord(key string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(key) + `(?:$|[^\p{L}\p{N}_])`)
}

type entry struct {
	key string
	re  *regexp.Regexp
}

// Index is an ordered, immutable set of compiled keys. It is safe for
// concurrent use.
type Index struct {
	entries []entry
}

// NewIndex compiles keys in the order given. Empty keys are dropped.
func NewIndex(keys []string) (*Index, error) {
	idx := &Index{entries: make([]entry, 0, len(keys))}
	for _, k := range keys {
		if k == "" {
			continue
		}
		re, err := WholeWord(k)
		if err != nil {
			return nil, err
		}
		idx.entries = append(idx.entries, entry{key: k, re: re})
	}
	return idx, nil
}

// First returns the first key, in index order, found in text as a whole word.
func (x *Index) First(text string) (string, bool) {
	if x == nil || text == "" {
		return "", false
	}
	for _, e := range x.entries {
		if e.re.MatchString(text) {
			return e.key, true
		}
	}
	return "", false
}

func (x *Index) Len() int {
	if x == nil {
		return 0
	}
	return len(x.entries)
}
