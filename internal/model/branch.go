// Package model defines the canonical tables, snapshot, and shared result
// contract consumed and produced by the decision engines.
package model

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Branch is the canonical identifier of a café branch.
type Branch string

const (
	BranchConut            Branch = "Conut"
	BranchConutTyre        Branch = "Conut - Tyre"
	BranchConutJnah        Branch = "Conut Jnah"
	BranchMainStreetCoffee Branch = "Main Street Coffee"

	// AllBranches selects every branch. It is a selector, not a branch, and
	// never appears in a table row.
	AllBranches Branch = "all"
)

var canonicalBranches = []Branch{
	BranchConut,
	BranchConutTyre,
	BranchConutJnah,
	BranchMainStreetCoffee,
}

// branchAliases maps normalized spellings to canonical branches.
var branchAliases = map[string]Branch{
	"conut":              BranchConut,
	"conut tyre":         BranchConutTyre,
	"tyre":               BranchConutTyre,
	"conut jnah":         BranchConutJnah,
	"jnah":               BranchConutJnah,
	"main street coffee": BranchMainStreetCoffee,
	"main street":        BranchMainStreetCoffee,
	"msc":                BranchMainStreetCoffee,
	"all":                AllBranches,
	"all branches":       AllBranches,
	"every branch":       AllBranches,
	"*":                  AllBranches,
}

// Branches returns the canonical branch enumeration in display order.
func Branches() []Branch {
	out := make([]Branch, len(canonicalBranches))
	copy(out, canonicalBranches)
	return out
}

// IsAll reports whether b is the all-branches selector.
func (b Branch) IsAll() bool { return b == AllBranches }

// Valid reports whether b is one of the four canonical branches.
func (b Branch) Valid() bool {
	for _, c := range canonicalBranches {
		if b == c {
			return true
		}
	}
	return false
}

func (b Branch) String() string { return string(b) }

// ParseBranch resolves free text to a canonical branch or the AllBranches
// selector. Case, Unicode width, dashes and repeated spaces are ignored.
func ParseBranch(s string) (Branch, error) {
	key := normalizeName(s)
	if key == "" {
		return "", &InputError{Kind: KindUnknownBranch, Field: "branch", Value: s, Reason: "branch is required"}
	}
	if b, ok := branchAliases[key]; ok {
		return b, nil
	}
	return "", &InputError{
		Kind:   KindUnknownBranch,
		Field:  "branch",
		Value:  s,
		Reason: "expected one of " + joinBranches(canonicalBranches) + " or all",
	}
}

// ParseSingleBranch is ParseBranch but rejects the all-branches selector.
func ParseSingleBranch(s string) (Branch, error) {
	b, err := ParseBranch(s)
	if err != nil {
		return "", err
	}
	if b.IsAll() {
		return "", &InputError{Kind: KindInvalidParameter, Field: "branch", Value: s, Reason: "a single branch is required"}
	}
	return b, nil
}

func normalizeName(s string) string {
	s = norm.NFKC.String(s)
	s = cases.Fold().String(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', '–', '—', '/':
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func joinBranches(bs []Branch) string {
	names := make([]string, len(bs))
	for i, b := range bs {
		names[i] = string(b)
	}
	return strings.Join(names, ", ")
}
