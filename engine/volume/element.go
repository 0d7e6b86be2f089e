package volume

import (
	"strings"

	"github.com/greenresilience/orchestration/engine/domain"
)

// Kind is the structural role of an element.
type Kind int

const (
	KindUnknown Kind = iota
	KindColumn
	KindBeam
)

func (k Kind) String() string {
	switch k {
	case KindColumn:
		return "Column"
	case KindBeam:
		return "Beam"
	}
	return "Unknown"
}

// Element is one parsed dimension literal.
type Element struct {
	Kind   Kind
	Class  string // IFC class from the element repr, e.g. IfcColumn
	Name   string // family:type:id, e.g. W Shapes:W14X22:587548
	ID     string
	Fields map[string][]string
}

// Family selects the volume formula.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyWideFlangeColumn
	FamilyWideFlangeBeam
	FamilyRectColumn
	FamilyRectBeam
)

func (f Family) String() string {
	switch f {
	case FamilyWideFlangeColumn:
		return "wide-flange column"
	case FamilyWideFlangeBeam:
		return "wide-flange beam"
	case FamilyRectColumn:
		return "rectangular column"
	case FamilyRectBeam:
		return "rectangular beam"
	}
	return "unknown"
}

const wideFlangeFamily = "W Shapes"

// Section returns the wide-flange section designation (the second
// colon-separated part of the name) when the element is a W shape.
func (e Element) Section() (string, bool) {
	if !strings.Contains(e.Name, wideFlangeFamily) {
		return "", false
	}
	parts := strings.Split(e.Name, ":")
	if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}

// Family classifies the element.
func (e Element) Family() Family {
	_, wf := e.Section()
	switch {
	case e.Kind == KindColumn && wf:
		return FamilyWideFlangeColumn
	case e.Kind == KindBeam && wf:
		return FamilyWideFlangeBeam
	case e.Kind == KindColumn:
		return FamilyRectColumn
	case e.Kind == KindBeam:
		return FamilyRectBeam
	}
	return FamilyUnknown
}

// ParseElement reads a dimension literal. Field values are kept as strings;
// numeric conversion happens when a formula needs them.
func ParseElement(literal string) (Element, error) {
	root, err := parseLiteral(literal)
	if err != nil {
		return Element{}, &domain.ParseError{Field: "literal", Value: abbreviate(literal)}
	}
	e := Element{Fields: make(map[string][]string)}
	walk(root, func(n *node) {
		switch {
		case n.kind == tokAngle && e.Class == "":
			e.Class = elementClass(n.text)
		case n.kind == tokLParen && len(n.children) == 2 && n.children[1].kind == tokString:
			head := n.children[0]
			switch n.children[1].text {
			case "name":
				if head.kind == tokString {
					e.Name = head.text
				}
			case "id":
				if head.kind == tokString {
					e.ID = head.text
				}
			case "coors":
				if head.kind == tokLBracket {
					collectFields(head, e.Fields)
				}
			}
		}
	})
	e.Kind = kindOf(e.Class, e.Name)
	if e.Kind == KindUnknown && e.Name == "" && len(e.Fields) == 0 {
		return Element{}, &domain.ParseError{Field: "literal", Value: abbreviate(literal)}
	}
	return e, nil
}

func walk(n *node, f func(*node)) {
	f(n)
	for _, c := range n.children {
		walk(c, f)
	}
}

// collectFields reads [('key', value), ...] where value is a string, a list
// of strings, or a bare word.
func collectFields(list *node, fields map[string][]string) {
	for _, pair := range list.children {
		if pair.kind != tokLParen || len(pair.children) != 2 || pair.children[0].kind != tokString {
			continue
		}
		key, val := pair.children[0].text, pair.children[1]
		if val.isContainer() {
			vals := make([]string, 0, len(val.children))
			for _, v := range val.children {
				if !v.isContainer() {
					vals = append(vals, v.text)
				}
			}
			fields[key] = vals
			continue
		}
		fields[key] = []string{val.text}
	}
}

// elementClass extracts IfcColumn from
// "Element {http://...}IfcColumn at 0x136b6808".
func elementClass(repr string) string {
	s := repr
	if i := strings.LastIndexByte(s, '}'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "Element ")
	}
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

func kindOf(class, name string) Kind {
	for _, s := range []string{class, name} {
		switch {
		case strings.Contains(s, "Column"):
			return KindColumn
		case strings.Contains(s, "Beam"):
			return KindBeam
		}
	}
	return KindUnknown
}

func abbreviate(s string) string {
	const max = 80
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
