package ml

import "errors"

// Accuracy is the fraction of testY that model predicts correctly.
func Accuracy(model MLModel, testX [][]float64, testY []int) (float64, error) {
	if len(testX) == 0 {
		return 0, errors.New("empty evaluation set")
	}
	if len(testX) != len(testY) {
		return 0, errors.New("features and labels size mismatch")
	}

	var correct int
	for i, feature := range testX {
		label, _, err := model.Predict(feature)
		if err != nil {
			return 0, err
		}
		if label == testY[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(testX)), nil
}
