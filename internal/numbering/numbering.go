// Package numbering assigns the inventory sequence and can stamp it onto
// copies of the documents.
package numbering

import (
	"regexp"
	"strconv"

	"github.com/MalithGihan/opis-service/pkg/types"
)

type Options struct {
	// PrefixNames rewrites DisplayName as "{n}. {name}".
	PrefixNames bool
}

var numberPrefix = regexp.MustCompile(`^\d+\.\s+`)

// StripPrefix removes a leading "{digits}. " from name.
func StripPrefix(name string) string {
	return numberPrefix.ReplaceAllString(name, "")
}

// AssignSequence returns a copy of records numbered 1..N in their given
// order. Running it on its own output yields the same result.
func AssignSequence(records []types.DocumentRecord, opts Options) []types.DocumentRecord {
	out := make([]types.DocumentRecord, len(records))
	for i, r := range records {
		r.Sequence = i + 1
		if opts.PrefixNames {
			r.DisplayName = strconv.Itoa(r.Sequence) + ". " + StripPrefix(r.DisplayName)
		}
		out[i] = r
	}
	return out
}
