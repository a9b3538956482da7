package models

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// DefaultVariables are the columns of the simulated tire wear dataset.
// The spellings match the dataset headers.
var DefaultVariables = VariableSet{
	"Speed",
	"Throttle",
	"Brake",
	"Surface_Roughness",
	"front_surface_temp",
	"rear_surface_temp",
	"force_on_tire",
	"Tire_wear",
	"Tire degreadation",
	"cumilative_Tire_Wear",
}

// VariableSet is the fixed, ordered list of modeled variables. Every member
// is a target of its own model and a feature of all the others.
type VariableSet []string

// ParseVariableSet splits a comma separated list of variable names
func ParseVariableSet(s string) VariableSet {
	var vars VariableSet
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			vars = append(vars, name)
		}
	}
	return vars
}

// Validate checks the set is non-empty and has no blank or duplicate names
func (vs VariableSet) Validate() error {
	if len(vs) < 2 {
		return fmt.Errorf("variable set needs at least 2 variables, got %d", len(vs))
	}
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("variable set contains a blank name")
		}
		if seen[v] {
			return fmt.Errorf("variable %q is listed twice", v)
		}
		seen[v] = true
	}
	return nil
}

// Contains reports whether name is a member of the set
func (vs VariableSet) Contains(name string) bool {
	for _, v := range vs {
		if v == name {
			return true
		}
	}
	return false
}

// Without returns the feature list for target: the set minus target, in order
func (vs VariableSet) Without(target string) []string {
	features := make([]string, 0, len(vs))
	for _, v := range vs {
		if v != target {
			features = append(features, v)
		}
	}
	return features
}

// Dataset is a rectangular numeric table stored by column.
// Missing cells are NaN.
type Dataset struct {
	Columns []string
	Values  map[string][]float64
	Rows    int
}

// NewDataset builds a dataset from equally sized columns
func NewDataset(columns []string, values map[string][]float64) (*Dataset, error) {
	rows := -1
	for _, c := range columns {
		col, ok := values[c]
		if !ok {
			return nil, fmt.Errorf("column %q has no values", c)
		}
		if rows >= 0 && len(col) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", c, len(col), rows)
		}
		rows = len(col)
	}
	if rows < 0 {
		rows = 0
	}
	return &Dataset{Columns: columns, Values: values, Rows: rows}, nil
}

// HasColumn reports whether the dataset has a column named name
func (d *Dataset) HasColumn(name string) bool {
	_, ok := d.Values[name]
	return ok
}

// Column returns the values of a column
func (d *Dataset) Column(name string) ([]float64, bool) {
	col, ok := d.Values[name]
	return col, ok
}

// FilledColumn returns a copy of the column with NaN replaced by 0
func (d *Dataset) FilledColumn(name string) ([]float64, bool) {
	col, ok := d.Values[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(col))
	for i, v := range col {
		if !math.IsNaN(v) {
			out[i] = v
		}
	}
	return out, true
}

// Sample returns a new dataset holding int(Rows*fraction) rows picked
// uniformly without replacement. The receiver is left untouched.
func (d *Dataset) Sample(fraction float64, seed int64) (*Dataset, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, fmt.Errorf("sample fraction must be in (0,1], got %v", fraction)
	}
	n := int(float64(d.Rows) * fraction)
	if n == 0 && d.Rows > 0 {
		n = 1
	}
	idx := rand.New(rand.NewSource(seed)).Perm(d.Rows)[:n]

	values := make(map[string][]float64, len(d.Values))
	for _, c := range d.Columns {
		src := d.Values[c]
		dst := make([]float64, n)
		for i, j := range idx {
			dst[i] = src[j]
		}
		values[c] = dst
	}
	columns := append([]string(nil), d.Columns...)
	return &Dataset{Columns: columns, Values: values, Rows: n}, nil
}
