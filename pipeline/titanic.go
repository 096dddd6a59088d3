// Package pipeline turns raw passenger rows into a numeric training matrix.
package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"gonum.org/v1/gonum/stat"

	"mlserve/dataset"
)

const (
	SiblingsSourceColumn = "Siblings/Spouses Aboard"
	LabelColumn          = "Survived"
)

// FeatureColumns is the order of the values in every feature vector.
var FeatureColumns = []string{"Pclass", "Sex", "Age", "SibSp"}

// Table is a numeric projection of a frame; NaN marks a missing value.
type Table struct {
	Columns []string
	Values  [][]float64
}

func (t *Table) index(name string) int {
	for i, column := range t.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// Result is the training input produced by Preprocess.
type Result struct {
	Features [][]float64
	Labels   []int
}

// Preprocess renames the sibling column, keeps only the survival columns,
// encodes Sex, and fills missing values with the column mean of this frame.
func Preprocess(frame *dataset.Frame) (*Result, error) {
	renamed := Rename(frame, SiblingsSourceColumn, "SibSp")
	projected, err := Project(renamed, append([]string{LabelColumn}, FeatureColumns...))
	if err != nil {
		return nil, err
	}
	table, err := Encode(projected)
	if err != nil {
		return nil, err
	}
	labelIdx := table.index(LabelColumn)
	for i, row := range table.Values {
		if math.IsNaN(row[labelIdx]) {
			return nil, fmt.Errorf("row %d: missing %s label", i+1, LabelColumn)
		}
	}
	filled, err := FillMissingMean(table)
	if err != nil {
		return nil, err
	}
	return Matrix(filled, FeatureColumns, LabelColumn)
}

// Rename returns a copy of frame with the column from renamed to to.
func Rename(frame *dataset.Frame, from, to string) *dataset.Frame {
	columns := make([]string, len(frame.Columns))
	for i, column := range frame.Columns {
		if column == from {
			column = to
		}
		columns[i] = column
	}
	return &dataset.Frame{Columns: columns, Rows: frame.Rows}
}

// Project keeps only the named columns, in the given order.
func Project(frame *dataset.Frame, columns []string) (*dataset.Frame, error) {
	indices := make([]int, len(columns))
	for i, column := range columns {
		idx := frame.Index(column)
		if idx < 0 {
			return nil, fmt.Errorf("missing column %q", column)
		}
		indices[i] = idx
	}
	rows := make([][]string, len(frame.Rows))
	for r, row := range frame.Rows {
		projected := make([]string, len(indices))
		for i, idx := range indices {
			if idx >= len(row) {
				return nil, fmt.Errorf("row %d: too few fields", r+1)
			}
			projected[i] = row[idx]
		}
		rows[r] = projected
	}
	return &dataset.Frame{Columns: append([]string(nil), columns...), Rows: rows}, nil
}

// Encode converts every cell to a float: Sex through EncodeSex, everything
// else as a number. Empty cells become NaN.
func Encode(frame *dataset.Frame) (*Table, error) {
	table := &Table{
		Columns: append([]string(nil), frame.Columns...),
		Values:  make([][]float64, len(frame.Rows)),
	}
	for r, row := range frame.Rows {
		values := make([]float64, len(row))
		for c, cell := range row {
			cell = strings.TrimSpace(cell)
			switch {
			case frame.Columns[c] == "Sex":
				values[c] = EncodeSex(cell)
			case cell == "":
				values[c] = math.NaN()
			default:
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d column %s: %w", r+1, frame.Columns[c], err)
				}
				values[c] = v
			}
		}
		table.Values[r] = values
	}
	return table, nil
}

// EncodeSex maps "male" in any letter case to 0 and anything else to 1.
func EncodeSex(value string) float64 {
	if cases.Fold().String(strings.TrimSpace(value)) == "male" {
		return 0
	}
	return 1
}

// FillMissingMean replaces NaN cells with the mean of the non-missing values
// in the same column. The input table is left untouched.
func FillMissingMean(table *Table) (*Table, error) {
	means := make([]float64, len(table.Columns))
	for c, column := range table.Columns {
		present := make([]float64, 0, len(table.Values))
		for _, row := range table.Values {
			if !math.IsNaN(row[c]) {
				present = append(present, row[c])
			}
		}
		if len(present) == 0 {
			return nil, fmt.Errorf("column %s has no values to average", column)
		}
		means[c] = stat.Mean(present, nil)
	}

	filled := &Table{Columns: table.Columns, Values: make([][]float64, len(table.Values))}
	for r, row := range table.Values {
		values := append([]float64(nil), row...)
		for c := range values {
			if math.IsNaN(values[c]) {
				values[c] = means[c]
			}
		}
		filled.Values[r] = values
	}
	return filled, nil
}

// Matrix splits a table into feature vectors and integer labels.
func Matrix(table *Table, featureColumns []string, labelColumn string) (*Result, error) {
	labelIdx := table.index(labelColumn)
	if labelIdx < 0 {
		return nil, fmt.Errorf("missing label column %q", labelColumn)
	}
	featureIdx := make([]int, len(featureColumns))
	for i, column := range featureColumns {
		featureIdx[i] = table.index(column)
		if featureIdx[i] < 0 {
			return nil, fmt.Errorf("missing feature column %q", column)
		}
	}
	if len(table.Values) == 0 {
		return nil, errors.New("no rows to train on")
	}

	result := &Result{
		Features: make([][]float64, len(table.Values)),
		Labels:   make([]int, len(table.Values)),
	}
	for r, row := range table.Values {
		label := row[labelIdx]
		if label != math.Trunc(label) || label < 0 {
			return nil, fmt.Errorf("row %d: label %v is not a class index", r+1, label)
		}
		vector := make([]float64, len(featureIdx))
		for i, idx := range featureIdx {
			vector[i] = row[idx]
		}
		result.Features[r] = vector
		result.Labels[r] = int(label)
	}
	return result, nil
}
