package classifier

import "errors"

var (
	// ErrModelNotTrained is returned by Predict and Save before any
	// successful Train or Load.
	ErrModelNotTrained = errors.New("model has not been trained yet")
	// ErrArtifactNotFound is returned by Load when no artifact file exists.
	ErrArtifactNotFound = errors.New("model artifact not found")
	// ErrArtifactCorrupt is returned by Load when the artifact cannot be decoded.
	ErrArtifactCorrupt = errors.New("model artifact is corrupt")
)
