// Package semgraph answers the fixed building-model queries (levels, spaces,
// column and beam dimensions) against a read-only triple store.
package semgraph

import (
	"strconv"
	"strings"
)

// TermKind distinguishes the three RDF term forms.
type TermKind uint8

const (
	// Any is the zero kind. A zero Term in a Pattern matches every term.
	Any TermKind = iota
	KindIRI
	KindLiteral
	KindBlank
)

func (k TermKind) String() string {
	switch k {
	case KindIRI:
		return "iri"
	case KindLiteral:
		return "literal"
	case KindBlank:
		return "blank"
	}
	return "any"
}

// ParseTermKind is the inverse of TermKind.String.
func ParseTermKind(s string) (TermKind, bool) {
	switch s {
	case "iri":
		return KindIRI, true
	case "literal":
		return KindLiteral, true
	case "blank":
		return KindBlank, true
	}
	return Any, false
}

// Term is an RDF node. Literals keep only their lexical form; datatype and
// language tags play no part in the building queries.
type Term struct {
	Kind  TermKind
	Value string
}

// IRI returns an IRI term.
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Literal returns a literal term.
func Literal(v string) Term { return Term{Kind: KindLiteral, Value: v} }

// Blank returns a blank node term.
func Blank(id string) Term { return Term{Kind: KindBlank, Value: id} }

// IsZero reports whether t is the wildcard term.
func (t Term) IsZero() bool { return t.Kind == Any }

// String renders t in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindLiteral:
		return strconv.Quote(t.Value)
	case KindBlank:
		return "_:" + t.Value
	}
	return "*"
}

// Local returns the part of an IRI after its last '#' or '/', which is how
// building elements are usually labelled. Other terms return their value.
func (t Term) Local() string {
	if t.Kind != KindIRI {
		return t.Value
	}
	if i := strings.LastIndexAny(t.Value, "#/"); i >= 0 && i < len(t.Value)-1 {
		return t.Value[i+1:]
	}
	return t.Value
}

// Triple is one (subject, predicate, object) fact.
type Triple struct {
	S, P, O Term
}

func (t Triple) String() string {
	return t.S.String() + " " + t.P.String() + " " + t.O.String() + " ."
}

// Pattern selects triples. Zero-valued positions are wildcards.
type Pattern struct {
	S, P, O Term
}

// Matches reports whether tr satisfies the pattern.
func (p Pattern) Matches(tr Triple) bool {
	return (p.S.IsZero() || p.S == tr.S) &&
		(p.P.IsZero() || p.P == tr.P) &&
		(p.O.IsZero() || p.O == tr.O)
}
