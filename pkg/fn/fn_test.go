package fn

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFit = errors.New("fit failed")

func TestResultConstructors(t *testing.T) {
	v, err := Ok(3.5).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	r := Err[float64](fmt.Errorf("location %q: %w", "Chicago IL", errFit))
	assert.True(t, r.IsErr())
	assert.False(t, r.IsOk())
	_, err = r.Unwrap()
	assert.ErrorIs(t, err, errFit)
	assert.EqualError(t, err, `location "Chicago IL": fit failed`)
}

func TestFromPair(t *testing.T) {
	v, err := FromPair(strconv.ParseFloat("0.05", 64)).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 0.05, v)

	assert.True(t, FromPair(strconv.ParseFloat("Level 1", 64)).IsErr())
}

func TestCollect(t *testing.T) {
	all, err := Collect([]Result[string]{Ok("PGA"), Ok("SA1P0")}).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []string{"PGA", "SA1P0"}, all)

	first := errors.New("first")
	_, err = Collect([]Result[string]{Ok("PGA"), Err[string](first), Err[string](errFit)}).Unwrap()
	assert.ErrorIs(t, err, first)

	empty, err := Collect[string](nil).Unwrap()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestSliceHelpers(t *testing.T) {
	feet := []float64{0, 10.5}
	assert.Equal(t, []float64{0, 126}, Map(feet, func(f float64) float64 { return f * 12 }))

	parsed := FilterMap([]string{"10.5", "Level 1", "0"}, func(s string) (float64, bool) {
		v, err := strconv.ParseFloat(s, 64)
		return v, err == nil
	})
	assert.Equal(t, []float64{10.5, 0}, parsed)

	assert.Equal(t, []float64{10.5, 0}, Unique([]float64{10.5, 0, 10.5, 0}))
	assert.Equal(t, []string{"a", "b", "c"}, FlatMap([][]string{{"a"}, nil, {"b", "c"}}, func(s []string) []string { return s }))
}

func TestChunk(t *testing.T) {
	cases := []struct {
		name string
		n    int
		want [][]int
	}{
		{"even", 2, [][]int{{1, 2}, {3, 4}}},
		{"remainder", 3, [][]int{{1, 2, 3}, {4}}},
		{"larger than input", 10, [][]int{{1, 2, 3, 4}}},
		{"non-positive", 0, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Chunk([]int{1, 2, 3, 4}, tc.n))
		})
	}
}

func TestParMapPreservesOrder(t *testing.T) {
	for _, workers := range []int{0, 1, 3, 100} {
		got := ParMap([]int{1, 2, 3, 4, 5}, workers, func(v int) int { return v * v })
		assert.Equal(t, []int{1, 4, 9, 16, 25}, got, "workers=%d", workers)
	}
	assert.Empty(t, ParMap([]int{}, 4, func(v int) int { return v }))
}

func TestParMapBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	ParMap(make([]int, 20), 2, func(int) int {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		running.Add(-1)
		return 0
	})
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFanOutResult(t *testing.T) {
	v, err := FanOutResult(
		func() Result[int] { return Ok(1) },
		func() Result[int] { return Ok(2) },
	).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, v)

	_, err = FanOutResult(
		func() Result[int] { return Ok(1) },
		func() Result[int] { return Err[int](errFit) },
	).Unwrap()
	assert.ErrorIs(t, err, errFit)
}

func TestPipelineShortCircuits(t *testing.T) {
	var ran []string
	stage := func(name string, fail bool) Stage[int, int] {
		return func(_ context.Context, v int) Result[int] {
			ran = append(ran, name)
			if fail {
				return Err[int](errFit)
			}
			return Ok(v + 1)
		}
	}

	v, err := Pipeline(stage("load", false), stage("fit", false))(context.Background(), 0).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	ran = nil
	_, err = Pipeline(stage("load", false), stage("fit", true), stage("sample", false))(context.Background(), 0).Unwrap()
	assert.ErrorIs(t, err, errFit)
	assert.Equal(t, []string{"load", "fit"}, ran)
}

func TestTracedStagePassesThrough(t *testing.T) {
	ok := TracedStage("sample_curves", Stage[int, int](func(_ context.Context, v int) Result[int] { return Ok(v * 2) }))
	v, err := ok(context.Background(), 21).Unwrap()
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	bad := TracedStage("fit_curves", Stage[int, int](func(context.Context, int) Result[int] { return Err[int](errFit) }))
	_, err = bad(context.Background(), 1).Unwrap()
	assert.ErrorIs(t, err, errFit)
}
