package domain

import (
	"errors"
	"io/fs"
	"strings"
	"testing"
)

func TestDataFormatErrorKinds(t *testing.T) {
	err := error(&DataFormatError{Model: "PGA", Path: "PGA/total.csv", Msg: "open", Err: fs.ErrNotExist})
	if !errors.Is(err, ErrDataFormat) {
		t.Fatal("expected ErrDataFormat")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatal("expected wrapped fs.ErrNotExist")
	}
	var dfe *DataFormatError
	if !errors.As(err, &dfe) || dfe.Model != "PGA" {
		t.Fatalf("errors.As failed: %v", err)
	}
}

func TestDataFormatErrorRowInMessage(t *testing.T) {
	err := &DataFormatError{Model: "SA1P0", Path: "x.csv", Row: 4, Msg: "3 values, header has 5"}
	if !strings.Contains(err.Error(), "row 4") {
		t.Fatalf("missing row in %q", err.Error())
	}
}

func TestCurveFitErrorNamesPair(t *testing.T) {
	err := NewCurveFitError("Chicago IL", "PGA", "need %d points", 4)
	if !errors.Is(err, ErrCurveFit) {
		t.Fatal("expected ErrCurveFit")
	}
	if !strings.Contains(err.Error(), "Chicago IL/PGA") {
		t.Fatalf("pair missing from %q", err.Error())
	}
}

func TestGraphAccessErrorWraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &GraphAccessError{Op: "match", Err: cause}
	if !errors.Is(err, ErrGraphAccess) || !errors.Is(err, cause) {
		t.Fatal("expected both sentinel and cause")
	}
}

func TestLookupAndParseErrors(t *testing.T) {
	if !errors.Is(&LookupError{Table: "sections", Key: "W99X1"}, ErrLookup) {
		t.Fatal("expected ErrLookup")
	}
	pe := &ParseError{Field: "depth", Value: "None"}
	if !errors.Is(pe, ErrParse) {
		t.Fatal("expected ErrParse")
	}
	if !strings.Contains(pe.Error(), `"None"`) {
		t.Fatalf("value missing from %q", pe.Error())
	}
}
