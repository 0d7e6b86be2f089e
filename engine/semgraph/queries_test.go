package semgraph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenresilience/orchestration/engine/domain"
	"github.com/greenresilience/orchestration/pkg/metrics"
)

func TestQueriesEmptyStore(t *testing.T) {
	q := NewQueries(NewMemoryStore(), nil, nil)
	ctx := context.Background()

	for name, run := range map[string]func(context.Context) (map[Term][]Term, error){
		"levels":  q.GetLevels,
		"spaces":  q.GetSpaces,
		"columns": q.GetColumnDimensions,
		"beams":   q.GetBeamDimensions,
	} {
		got, err := run(ctx)
		require.NoError(t, err, name)
		assert.NotNil(t, got, name)
		assert.Empty(t, got, name)
	}
}

func TestGetLevelsSingleBoundary(t *testing.T) {
	store := NewMemoryStore(
		Triple{s1, RDFType, SpaceBoundary},
		Triple{s1, HasProperty, p1},
		Triple{p1, HasValue, Literal("10.5")},
	)
	got, err := NewQueries(store, metrics.New(), nil).GetLevels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Term][]Term{s1: {Literal("10.5")}}, got)
}

func TestGetLevelsAccumulatesInOrder(t *testing.T) {
	p2 := IRI("http://example.org/oms#P2")
	other := IRI("http://example.org/oms#NotABoundary")
	store := NewMemoryStore(
		Triple{s1, RDFType, SpaceBoundary},
		Triple{s1, HasProperty, p1},
		Triple{s1, HasProperty, p2},
		Triple{p1, HasValue, Literal("10.5")},
		Triple{p2, HasValue, Literal("Level 1")},
		Triple{other, HasProperty, p1},
	)
	got, err := NewQueries(store, nil, nil).GetLevels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[Term][]Term{s1: {Literal("10.5"), Literal("Level 1")}}, got)
}

func TestQueriesFromTurtle(t *testing.T) {
	store, err := LoadFile("testdata/building.ttl")
	require.NoError(t, err)
	q := NewQueries(store, nil, nil)
	ctx := context.Background()
	ex := func(local string) Term { return IRI("http://example.org/oms#" + local) }

	levels, err := q.GetLevels(ctx)
	require.NoError(t, err)
	assert.Len(t, levels, 3)
	assert.Equal(t, []Term{Literal("10.5"), Literal("Level 1")}, levels[ex("SB1")])
	assert.Equal(t, []Term{Literal("22.0")}, levels[ex("SB2")])

	spaces, err := q.GetSpaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[Term][]Term{ex("Storey1"): {ex("Room101"), ex("Room102")}}, spaces)

	cols, err := q.GetColumnDimensions(ctx)
	require.NoError(t, err)
	require.Len(t, cols[ex("C14")], 1)
	assert.Contains(t, cols[ex("C14")][0].Value, "Concrete-Square-Column")

	beams, err := q.GetBeamDimensions(ctx)
	require.NoError(t, err)
	require.Len(t, beams[ex("B22")], 1)
	assert.Contains(t, beams[ex("B22")][0].Value, "W Shapes:W14X22")

	all, err := q.AllTriples(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.Len(), len(all))
}

func TestQueriesIdempotent(t *testing.T) {
	store, err := LoadFile("testdata/building.ttl")
	require.NoError(t, err)
	q := NewQueries(store, nil, nil)
	first, err := q.GetLevels(context.Background())
	require.NoError(t, err)
	second, err := q.GetLevels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Results are fresh maps.
	delete(first, IRI("http://example.org/oms#SB1"))
	assert.Len(t, second, 3)
}

type brokenStore struct{ err error }

func (b brokenStore) Match(context.Context, Pattern) ([]Triple, error) { return nil, b.err }

func TestQueriesStoreFailure(t *testing.T) {
	q := NewQueries(brokenStore{err: errors.New("connection refused")}, nil, nil)
	_, err := q.GetLevels(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrGraphAccess))
	var gae *domain.GraphAccessError
	require.True(t, errors.As(err, &gae))
	assert.Equal(t, "levels", gae.Op)

	_, err = q.GetBeamDimensions(context.Background())
	assert.True(t, errors.Is(err, domain.ErrGraphAccess))
}

func TestLiterals(t *testing.T) {
	assert.Equal(t, []string{"10.5", "x"}, Literals([]Term{Literal("10.5"), s1, Literal("x")}))
}
