// Package ml holds the learning algorithms behind the classifier stores.
package ml

import "errors"

// ErrNotTrained is returned when predicting with a model that has no nodes.
var ErrNotTrained = errors.New("model not trained")

// MLModel is a multi-class classifier over fixed-length float vectors.
type MLModel interface {
	Train(features [][]float64, labels []int) error
	// Predict returns the class label and the share of training evidence
	// behind it.
	Predict(features []float64) (int, float64, error)
}
