package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"mlserve/classifier"
	"mlserve/pipeline"
)

var (
	flowerFields    = []string{"sepal_length", "sepal_width", "petal_length", "petal_width"}
	passengerFields = []string{"Pclass", "Sex", "Age", "SibSp"}

	errMissingFeatures = errors.New(msgMissingFeatures)
	errInvalidJSON     = errors.New(msgInvalidJSON)
)

// invalidInputError reports a field whose value cannot be used as given.
type invalidInputError struct {
	field  string
	reason string
}

func (e *invalidInputError) Error() string {
	return fmt.Sprintf("Invalid value for %s: %s", e.field, e.reason)
}

// decodeFields reads a JSON object and checks every required field is
// present and not null.
func decodeFields(r *http.Request, required []string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return nil, err
		}
		return nil, errInvalidJSON
	}
	if fields == nil {
		return nil, errInvalidJSON
	}
	for _, name := range required {
		raw, ok := fields[name]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return nil, errMissingFeatures
		}
	}
	return fields, nil
}

// parseNumber accepts a JSON number or a string holding one.
func parseNumber(field string, raw json.RawMessage) (float64, error) {
	var value float64
	if err := json.Unmarshal(raw, &value); err != nil {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, &invalidInputError{field: field, reason: "must be a number"}
		}
		value, err = strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return 0, &invalidInputError{field: field, reason: "must be a number"}
		}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, &invalidInputError{field: field, reason: "must be finite"}
	}
	return value, nil
}

func parseInteger(field string, raw json.RawMessage) (float64, error) {
	value, err := parseNumber(field, raw)
	if err != nil {
		return 0, err
	}
	if value != math.Trunc(value) {
		return 0, &invalidInputError{field: field, reason: "must be an integer"}
	}
	return value, nil
}

func parsePassenger(fields map[string]json.RawMessage) (classifier.Passenger, error) {
	var (
		p   classifier.Passenger
		err error
	)
	if p.Pclass, err = parseInteger("Pclass", fields["Pclass"]); err != nil {
		return p, err
	}
	var sex string
	if err := json.Unmarshal(fields["Sex"], &sex); err != nil {
		return p, &invalidInputError{field: "Sex", reason: "must be a string"}
	}
	p.Sex = pipeline.EncodeSex(sex)
	if p.Age, err = parseInteger("Age", fields["Age"]); err != nil {
		return p, err
	}
	if p.SibSp, err = parseInteger("SibSp", fields["SibSp"]); err != nil {
		return p, err
	}
	return p, nil
}

// respondRequestError writes the 400 for a request rejected before any
// store call.
func respondRequestError(w http.ResponseWriter, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		respondError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	respondError(w, http.StatusBadRequest, err.Error())
}
