// Package dataset provides the bundled tabular datasets the classifiers learn from.
package dataset

import (
	"embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
)

//go:embed data/iris.csv data/titanic.csv
var bundled embed.FS

// Dataset is an immutable feature matrix with parallel class labels.
type Dataset struct {
	Features     [][]float64
	Labels       []int
	LabelNames   []string
	FeatureNames []string
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// LabelName maps a class index back to its name.
func (d *Dataset) LabelName(label int) (string, error) {
	if label < 0 || label >= len(d.LabelNames) {
		return "", fmt.Errorf("label index %d out of range", label)
	}
	return d.LabelNames[label], nil
}

// LoadIris parses the bundled iris flower dataset. The last column holds the
// species; class indices follow the order in which species first appear.
func LoadIris() (*Dataset, error) {
	file, err := bundled.Open("data/iris.csv")
	if err != nil {
		return nil, fmt.Errorf("open iris dataset: %w", err)
	}
	defer file.Close()

	frame, err := ReadFrame(file)
	if err != nil {
		return nil, fmt.Errorf("read iris dataset: %w", err)
	}
	if len(frame.Columns) < 2 {
		return nil, errors.New("iris dataset needs at least one feature column")
	}

	featureCount := len(frame.Columns) - 1
	ds := &Dataset{
		Features:     make([][]float64, 0, len(frame.Rows)),
		Labels:       make([]int, 0, len(frame.Rows)),
		FeatureNames: append([]string(nil), frame.Columns[:featureCount]...),
	}
	classes := make(map[string]int)
	for i, row := range frame.Rows {
		vector := make([]float64, featureCount)
		for j := 0; j < featureCount; j++ {
			value, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("iris row %d column %s: %w", i+1, frame.Columns[j], err)
			}
			vector[j] = value
		}
		species := row[featureCount]
		label, ok := classes[species]
		if !ok {
			label = len(ds.LabelNames)
			classes[species] = label
			ds.LabelNames = append(ds.LabelNames, species)
		}
		ds.Features = append(ds.Features, vector)
		ds.Labels = append(ds.Labels, label)
	}
	if ds.Len() == 0 {
		return nil, errors.New("iris dataset is empty")
	}
	return ds, nil
}

// Frame is a raw CSV table keyed by header names.
type Frame struct {
	Columns []string
	Rows    [][]string
}

// Index returns the position of the named column or -1.
func (f *Frame) Index(name string) int {
	for i, column := range f.Columns {
		if column == name {
			return i
		}
	}
	return -1
}

// ReadFrame reads a CSV stream whose first record is the header.
func ReadFrame(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, err
	}
	frame := &Frame{Columns: header}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		frame.Rows = append(frame.Rows, record)
	}
	return frame, nil
}
