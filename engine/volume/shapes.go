package volume

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/greenresilience/orchestration/engine/domain"
)

// ShapeTableName labels lookup errors from the section table.
const ShapeTableName = "ISectionAreas"

// ShapeTable maps a wide-flange section designation (W14X22) to its
// cross-sectional area in square inches.
type ShapeTable map[string]float64

// Area looks up a section. Designations compare case-insensitively.
func (t ShapeTable) Area(section string) (float64, error) {
	if a, ok := t[normalizeSection(section)]; ok {
		return a, nil
	}
	return 0, &domain.LookupError{Table: ShapeTableName, Key: section}
}

func normalizeSection(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ReadShapeTable parses CSV with a header naming Section and Area columns.
func ReadShapeTable(r io.Reader) (ShapeTable, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("shape table header: %w", err)
	}
	si, ai := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "section":
			si = i
		case "area":
			ai = i
		}
	}
	if si < 0 || ai < 0 {
		return nil, fmt.Errorf("shape table header %v: need Section and Area columns", header)
	}

	t := make(ShapeTable)
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("shape table row %d: %w", row, err)
		}
		area, err := strconv.ParseFloat(strings.TrimSpace(rec[ai]), 64)
		if err != nil {
			return nil, fmt.Errorf("shape table row %d: %w", row, &domain.ParseError{Field: "Area", Value: rec[ai]})
		}
		t[normalizeSection(rec[si])] = area
	}
	return t, nil
}

// LoadShapeTable reads a shape table file.
func LoadShapeTable(path string) (ShapeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadShapeTable(f)
}
