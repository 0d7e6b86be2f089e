package domain

import (
	"errors"
	"math"
	"testing"
)

func TestValidateCurve_Valid(t *testing.T) {
	c := Curve{X: []float64{0.01, 0.1, 1.0}, Y: []float64{0.002, 0.01, 0.05}}
	if err := ValidateCurve("CityA", PGA, c, 2); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}

func TestValidateCurve_Invalid(t *testing.T) {
	cases := map[string]Curve{
		"length mismatch": {X: []float64{1, 2, 3}, Y: []float64{1, 2}},
		"duplicate x":     {X: []float64{1, 1, 2}, Y: []float64{1, 2, 3}},
		"negative":        {X: []float64{1, 2, 3}, Y: []float64{1, -2, 3}},
		"nan":             {X: []float64{1, math.NaN(), 3}, Y: []float64{1, 2, 3}},
		"too few":         {X: []float64{1}, Y: []float64{1}},
	}
	for name, c := range cases {
		err := ValidateCurve("CityA", PGA, c, 2)
		if !errors.Is(err, ErrCurveFit) {
			t.Errorf("%s: expected ErrCurveFit, got %v", name, err)
		}
	}
}

func TestDatasetPutGet(t *testing.T) {
	d := Dataset{}
	d.Put("CityA", PGA, Curve{X: []float64{1, 2}, Y: []float64{3, 4}})
	d.Put("CityA", SA1P0, Curve{X: []float64{1, 2}, Y: []float64{5, 6}})
	d.Put("CityB", PGA, Curve{})
	if d.Pairs() != 3 {
		t.Fatalf("expected 3 pairs, got %d", d.Pairs())
	}
	c, ok := d.Get("CityA", SA1P0)
	if !ok || c.Y[1] != 6 {
		t.Fatalf("wrong curve: %+v", c)
	}
	if _, ok := d.Get("CityC", PGA); ok {
		t.Fatal("expected miss")
	}
}
