package semgraph

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/knakk/rdf"

	"github.com/greenresilience/orchestration/engine/domain"
)

// FormatFor picks an RDF syntax from a file extension: .nt is N-Triples,
// anything else is read as Turtle.
func FormatFor(path string) rdf.Format {
	if strings.EqualFold(filepath.Ext(path), ".nt") {
		return rdf.NTriples
	}
	return rdf.Turtle
}

// Decode reads every triple from r.
func Decode(r io.Reader, format rdf.Format) ([]Triple, error) {
	raw, err := rdf.NewTripleDecoder(r, format).DecodeAll()
	if err != nil {
		return nil, &domain.GraphAccessError{Op: "decode", Err: err}
	}
	out := make([]Triple, 0, len(raw))
	for _, t := range raw {
		out = append(out, Triple{S: fromRDF(t.Subj), P: fromRDF(t.Pred), O: fromRDF(t.Obj)})
	}
	return out, nil
}

// LoadFile reads a Turtle or N-Triples file into a new MemoryStore.
func LoadFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &domain.GraphAccessError{Op: "open " + path, Err: err}
	}
	defer f.Close()
	ts, err := Decode(f, FormatFor(path))
	if err != nil {
		return nil, err
	}
	return NewMemoryStore(ts...), nil
}

func fromRDF(t rdf.Term) Term {
	switch t.Type() {
	case rdf.TermIRI:
		return IRI(t.String())
	case rdf.TermBlank:
		return Blank(strings.TrimPrefix(t.String(), "_:"))
	default:
		return Literal(t.String())
	}
}

func toRDF(t Term) (rdf.Term, error) {
	switch t.Kind {
	case KindIRI:
		return rdf.NewIRI(t.Value)
	case KindBlank:
		return rdf.NewBlank(t.Value)
	case KindLiteral:
		return rdf.NewLiteral(t.Value)
	}
	return nil, fmt.Errorf("semgraph: wildcard term cannot be encoded")
}

// Encode writes ts to w as N-Triples.
func Encode(w io.Writer, ts []Triple) error {
	enc := rdf.NewTripleEncoder(w, rdf.NTriples)
	for _, t := range ts {
		s, err := toRDF(t.S)
		if err != nil {
			return err
		}
		p, err := toRDF(t.P)
		if err != nil {
			return err
		}
		o, err := toRDF(t.O)
		if err != nil {
			return err
		}
		if err := enc.Encode(rdf.Triple{Subj: s.(rdf.Subject), Pred: p.(rdf.Predicate), Obj: o.(rdf.Object)}); err != nil {
			return fmt.Errorf("semgraph: encode %s: %w", t, err)
		}
	}
	return enc.Close()
}
