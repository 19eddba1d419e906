// Package kparams reconciles kernel command-line parameters.
//
// A parameter is a single token, either KEY or KEY=VALUE. Two parameters with
// the same KEY never coexist after an Add: the requested one replaces every
// existing sibling regardless of value. Serialized parameter sets are sorted
// and joined by a single space so that reconciliation is deterministic.
package kparams

import (
	"fmt"
	"sort"
	"strings"

	"passthru/internal/errdefs"
	"passthru/pkg/logging"
)

const subsystem = "Reconciler"

// Key returns the identity of a parameter: everything before the first '='.
func Key(param string) string {
	if i := strings.IndexByte(param, '='); i >= 0 {
		return param[:i]
	}
	return param
}

// Diff is the outcome of reconciling a parameter set
type Diff struct {
	// Params is the resulting set in sorted order.
	Params []string
	// Changed is true if the set must be written back.
	Changed bool
	// Added lists requested parameters that were inserted.
	Added []string
	// Removed lists existing parameters that were dropped.
	Removed []string
}

// String returns the serialized result
func (d Diff) String() string {
	return Serialize(d.Params)
}

// Add inserts every requested parameter into current, replacing existing
// parameters with the same key. A request whose exact token is already the
// only parameter under its key leaves the set untouched.
func Add(current, requested []string) Diff {
	params := normalize(current)
	var diff Diff

	for _, req := range requested {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		key := Key(req)

		var siblings []string
		exact := false
		for _, p := range params {
			if Key(p) == key {
				siblings = append(siblings, p)
				if p == req {
					exact = true
				}
			}
		}
		if exact && len(siblings) == 1 {
			logging.Debug(subsystem, "Parameter %s already present", req)
			continue
		}

		kept := params[:0:0]
		for _, p := range params {
			if Key(p) == key {
				diff.Removed = append(diff.Removed, p)
				continue
			}
			kept = append(kept, p)
		}
		params = append(kept, req)
		diff.Added = append(diff.Added, req)
		diff.Changed = true
	}

	sort.Strings(params)
	diff.Params = params
	return diff
}

// Remove drops every existing parameter that equals a requested entry or
// shares its key. Changed is true only if the set shrank.
func Remove(current, requested []string) Diff {
	params := normalize(current)
	initial := len(params)
	var diff Diff

	for _, req := range requested {
		req = strings.TrimSpace(req)
		if req == "" {
			continue
		}
		key := Key(req)

		kept := params[:0:0]
		for _, p := range params {
			if p == req || Key(p) == key {
				diff.Removed = append(diff.Removed, p)
				continue
			}
			kept = append(kept, p)
		}
		params = kept
	}

	sort.Strings(params)
	diff.Params = params
	diff.Changed = len(params) < initial
	return diff
}

// Serialize sorts params and joins them with a single space.
func Serialize(params []string) string {
	sorted := append([]string(nil), params...)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

// normalize copies current, drops empty tokens and collapses exact duplicates.
func normalize(current []string) []string {
	seen := make(map[string]bool, len(current))
	out := make([]string, 0, len(current))
	for _, p := range current {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Split tokenizes a kernel command line. Whitespace separates tokens except
// inside single or double quotes, which are kept verbatim so that a
// parameter such as dyndbg="file x +p" survives a round trip.
func Split(line string) ([]string, error) {
	var (
		tokens []string
		cur    strings.Builder
		quote  rune
		inTok  bool
	)

	for _, r := range line {
		switch {
		case quote != 0:
			cur.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'':
			quote = r
			inTok = true
			cur.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inTok {
				tokens = append(tokens, cur.String())
				cur.Reset()
				inTok = false
			}
		default:
			inTok = true
			cur.WriteRune(r)
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in %q: %w", quote, line, errdefs.ErrInvalidData)
	}
	if inTok {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}
