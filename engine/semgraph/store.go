package semgraph

import "context"

// Store is a read-only triple source. Match returns triples in a stable order
// so repeated queries over an unchanged store give identical results.
type Store interface {
	Match(ctx context.Context, p Pattern) ([]Triple, error)
}
