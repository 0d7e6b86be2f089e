package semgraph

// Namespaces used by the building ontology.
const (
	RDFNS = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	UBONS = "http://www.sw.org/UBO#"
)

// Well-known terms.
var (
	RDFType        = IRI(RDFNS + "type")
	HasType        = IRI(UBONS + "hasType")
	HasValue       = IRI(UBONS + "hasValue")
	HasProperty    = IRI(UBONS + "hasProperty")
	HasSpaceMember = IRI(UBONS + "hasSpaceMember")
	SpaceBoundary  = IRI(UBONS + "SpaceBoundary")

	ColumnType = Literal("Column")
	BeamType   = Literal("Beam")
)
