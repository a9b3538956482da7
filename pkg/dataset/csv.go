// Package dataset loads the training table from CSV files, local or
// downloaded from Kaggle.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// ReadCSV reads a CSV table with a header row into a columnar dataset.
// Empty, NA and unparseable cells become NaN.
func ReadCSV(r io.Reader) (*models.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	columns := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if seen[name] {
			return nil, fmt.Errorf("csv header repeats column %q", name)
		}
		seen[name] = true
		columns[i] = name
	}

	cols := make([][]float64, len(columns))
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read csv line %d: %w", line, err)
		}
		for i := range columns {
			v := math.NaN()
			if i < len(record) {
				v = parseCell(record[i])
			}
			cols[i] = append(cols[i], v)
		}
	}

	values := make(map[string][]float64, len(columns))
	for i, c := range columns {
		if cols[i] == nil {
			cols[i] = []float64{}
		}
		values[c] = cols[i]
	}
	return models.NewDataset(columns, values)
}

func parseCell(s string) float64 {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "n/a", "nan", "null":
		return math.NaN()
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(v, 0) {
		return math.NaN()
	}
	return v
}
