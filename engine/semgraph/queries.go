package semgraph

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/greenresilience/orchestration/engine/domain"
	"github.com/greenresilience/orchestration/pkg/metrics"
)

// LevelRow is one match of the level query: a space boundary, the property
// node hanging off it, and that property's value.
type LevelRow struct {
	Boundary Term
	Property Term
	Value    Term
}

// MemberRow is one (subject, object) match of a single-hop query.
type MemberRow struct {
	Subject Term
	Object  Term
}

// Queries runs the fixed building queries. Each call returns fresh maps; nothing
// is cached between calls.
type Queries struct {
	Store   Store
	Metrics *metrics.Registry // optional
	Logger  *slog.Logger
}

// NewQueries wraps a store.
func NewQueries(store Store, m *metrics.Registry, log *slog.Logger) *Queries {
	return &Queries{Store: store, Metrics: m, Logger: log}
}

func (q *Queries) logger() *slog.Logger {
	if q.Logger == nil {
		return slog.Default()
	}
	return q.Logger
}

func (q *Queries) match(ctx context.Context, op string, p Pattern) ([]Triple, error) {
	ts, err := q.Store.Match(ctx, p)
	if err != nil {
		var gae *domain.GraphAccessError
		if errors.As(err, &gae) {
			return nil, err
		}
		return nil, &domain.GraphAccessError{Op: op, Err: err}
	}
	return ts, nil
}

func (q *Queries) observe(name string, start time.Time, n int, err error) {
	q.Metrics.ObserveGraphQuery(name, start, err)
	if err != nil {
		q.logger().Error("graph query failed", "query", name, "error", err)
		return
	}
	q.logger().Debug("graph query", "query", name, "rows", n, "took", time.Since(start))
}

// LevelRows matches (s type SpaceBoundary), (s hasProperty p), (p hasValue v).
func (q *Queries) LevelRows(ctx context.Context) (rows []LevelRow, err error) {
	defer func(start time.Time) { q.observe("levels", start, len(rows), err) }(time.Now())

	boundaries, err := q.match(ctx, "levels", Pattern{P: RDFType, O: SpaceBoundary})
	if err != nil {
		return nil, err
	}
	for _, b := range boundaries {
		props, err := q.match(ctx, "levels", Pattern{S: b.S, P: HasProperty})
		if err != nil {
			return nil, err
		}
		for _, p := range props {
			values, err := q.match(ctx, "levels", Pattern{S: p.O, P: HasValue})
			if err != nil {
				return nil, err
			}
			for _, v := range values {
				rows = append(rows, LevelRow{Boundary: b.S, Property: p.O, Value: v.O})
			}
		}
	}
	return rows, nil
}

// GetLevels maps each space boundary to its property values in match order.
func (q *Queries) GetLevels(ctx context.Context) (map[Term][]Term, error) {
	rows, err := q.LevelRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[Term][]Term)
	for _, r := range rows {
		out[r.Boundary] = append(out[r.Boundary], r.Value)
	}
	return out, nil
}

// SpaceRows matches (s hasSpaceMember o).
func (q *Queries) SpaceRows(ctx context.Context) (rows []MemberRow, err error) {
	defer func(start time.Time) { q.observe("spaces", start, len(rows), err) }(time.Now())

	ts, err := q.match(ctx, "spaces", Pattern{P: HasSpaceMember})
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		rows = append(rows, MemberRow{Subject: t.S, Object: t.O})
	}
	return rows, nil
}

// GetSpaces maps each space collection to its members.
func (q *Queries) GetSpaces(ctx context.Context) (map[Term][]Term, error) {
	rows, err := q.SpaceRows(ctx)
	if err != nil {
		return nil, err
	}
	return group(rows), nil
}

// DimensionRows matches (s hasType kind), (s hasValue v) for a literal kind
// such as "Column" or "Beam".
func (q *Queries) DimensionRows(ctx context.Context, kind Term) (rows []MemberRow, err error) {
	name := "dimensions_" + kind.Value
	defer func(start time.Time) { q.observe(name, start, len(rows), err) }(time.Now())

	typed, err := q.match(ctx, name, Pattern{P: HasType, O: kind})
	if err != nil {
		return nil, err
	}
	for _, t := range typed {
		values, err := q.match(ctx, name, Pattern{S: t.S, P: HasValue})
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			rows = append(rows, MemberRow{Subject: t.S, Object: v.O})
		}
	}
	return rows, nil
}

// GetColumnDimensions maps each column element to its dimension literals.
func (q *Queries) GetColumnDimensions(ctx context.Context) (map[Term][]Term, error) {
	rows, err := q.DimensionRows(ctx, ColumnType)
	if err != nil {
		return nil, err
	}
	return group(rows), nil
}

// GetBeamDimensions maps each beam element to its dimension literals.
func (q *Queries) GetBeamDimensions(ctx context.Context) (map[Term][]Term, error) {
	rows, err := q.DimensionRows(ctx, BeamType)
	if err != nil {
		return nil, err
	}
	return group(rows), nil
}

// AllTriples returns every triple in the store.
func (q *Queries) AllTriples(ctx context.Context) (ts []Triple, err error) {
	defer func(start time.Time) { q.observe("all", start, len(ts), err) }(time.Now())
	return q.match(ctx, "all", Pattern{})
}

func group(rows []MemberRow) map[Term][]Term {
	out := make(map[Term][]Term)
	for _, r := range rows {
		out[r.Subject] = append(out[r.Subject], r.Object)
	}
	return out
}

// Literals returns the lexical values of the literal terms in ts.
func Literals(ts []Term) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		if t.Kind == KindLiteral {
			out = append(out, t.Value)
		}
	}
	return out
}
