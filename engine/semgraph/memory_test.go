package semgraph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	s1 = IRI("http://example.org/oms#S1")
	p1 = IRI("http://example.org/oms#P1")
)

func TestMemoryStoreMatch(t *testing.T) {
	m := NewMemoryStore(
		Triple{s1, RDFType, SpaceBoundary},
		Triple{s1, HasProperty, p1},
		Triple{p1, HasValue, Literal("10.5")},
		Triple{s1, HasProperty, p1}, // duplicate
	)
	ctx := context.Background()
	assert.Equal(t, 3, m.Len())

	all, err := m.Match(ctx, Pattern{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	bySubject, err := m.Match(ctx, Pattern{S: s1})
	require.NoError(t, err)
	assert.Equal(t, []Triple{{s1, RDFType, SpaceBoundary}, {s1, HasProperty, p1}}, bySubject)

	byObject, err := m.Match(ctx, Pattern{O: Literal("10.5")})
	require.NoError(t, err)
	assert.Equal(t, []Triple{{p1, HasValue, Literal("10.5")}}, byObject)

	exact, err := m.Match(ctx, Pattern{S: s1, P: HasProperty, O: p1})
	require.NoError(t, err)
	assert.Len(t, exact, 1)

	none, err := m.Match(ctx, Pattern{P: HasSpaceMember})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStoreLiteralAndIRIDiffer(t *testing.T) {
	m := NewMemoryStore(Triple{s1, HasType, Literal("Column")})
	got, err := m.Match(context.Background(), Pattern{O: IRI("Column")})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryStore().Match(ctx, Pattern{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTermString(t *testing.T) {
	assert.Equal(t, "<http://www.sw.org/UBO#hasType>", HasType.String())
	assert.Equal(t, `"Column"`, ColumnType.String())
	assert.Equal(t, "_:b0", Blank("b0").String())
	assert.Equal(t, "hasType", HasType.Local())
	assert.Equal(t, "Column", ColumnType.Local())
}
