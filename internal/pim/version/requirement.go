package version

import (
	"log"
	"strings"
	"sync"
)

// Operator is one comparison term of a VersionRequirement.
type Operator string

const (
	OpGTE      Operator = ">="
	OpLTE      Operator = "<="
	OpGT       Operator = ">"
	OpLT       Operator = "<"
	OpEQ       Operator = "="
	OpWildcard Operator = "*"
)

type term struct {
	op  Operator
	val Version
}

// Requirement is a predicate over Version: a comma-separated conjunction of
// operator/version terms, e.g. ">=1.2.0,<2.0.0". An unparseable requirement
// degrades to "accept any" per spec, with the failure logged once per
// distinct raw string.
type Requirement struct {
	raw   string
	terms []term
	any   bool
}

var (
	loggedMu sync.Mutex
	logged   = map[string]bool{}
)

// ParseRequirement parses s into a Requirement. It never returns an error;
// malformed input degrades to an always-accepting Requirement.
func ParseRequirement(s string) Requirement {
	raw := strings.TrimSpace(s)
	if raw == "" || raw == "*" {
		return Requirement{raw: raw, any: true}
	}

	parts := strings.Split(raw, ",")
	terms := make([]term, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t, ok := parseTerm(p)
		if !ok {
			logOnce(raw)
			return Requirement{raw: raw, any: true}
		}
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return Requirement{raw: raw, any: true}
	}
	return Requirement{raw: raw, terms: terms}
}

func logOnce(raw string) {
	loggedMu.Lock()
	defer loggedMu.Unlock()
	if logged[raw] {
		return
	}
	logged[raw] = true
	log.Printf("pim/version: unparseable version requirement %q, treating as accept-any", raw)
}

func parseTerm(p string) (term, bool) {
	if p == "*" {
		return term{op: OpWildcard}, true
	}
	for _, op := range []Operator{OpGTE, OpLTE, OpGT, OpLT, OpEQ} {
		if strings.HasPrefix(p, string(op)) {
			rest := strings.TrimSpace(strings.TrimPrefix(p, string(op)))
			if rest == "" || strings.ContainsAny(rest, " \t~^!<>=") {
				return term{}, false
			}
			return term{op: op, val: Parse(rest)}, true
		}
	}
	// A bare version string is treated as an exact-match term; one carrying
	// an unknown operator or embedded whitespace is unparseable.
	if strings.ContainsAny(p, " \t~^!<>=") {
		return term{}, false
	}
	return term{op: OpEQ, val: Parse(p)}, true
}

// Accepts reports whether v satisfies every term of the requirement.
func (r Requirement) Accepts(v Version) bool {
	if r.any {
		return true
	}
	for _, t := range r.terms {
		if !acceptsTerm(t, v) {
			return false
		}
	}
	return true
}

func acceptsTerm(t term, v Version) bool {
	switch t.op {
	case OpWildcard:
		return true
	case OpGTE:
		return v.Compare(t.val) >= 0
	case OpLTE:
		return v.Compare(t.val) <= 0
	case OpGT:
		return v.Compare(t.val) > 0
	case OpLT:
		return v.Compare(t.val) < 0
	case OpEQ:
		return v.Equal(t.val)
	default:
		return true
	}
}

// String returns the original requirement string.
func (r Requirement) String() string { return r.raw }

// IsAny reports whether this requirement degraded to accept-any, either
// because it was empty/"*" or because it failed to parse.
func (r Requirement) IsAny() bool { return r.any }
