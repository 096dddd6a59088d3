package classifier

import (
	"fmt"
	"time"
)

// FitStatus is the lifecycle state of a store. A store never returns to
// Untrained once it has been trained or loaded.
type FitStatus int

const (
	Untrained FitStatus = iota
	Trained
)

func (s FitStatus) String() string {
	switch s {
	case Untrained:
		return "untrained"
	case Trained:
		return "trained"
	default:
		return fmt.Sprintf("FitStatus(%d)", int(s))
	}
}

func (s FitStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *FitStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "untrained":
		*s = Untrained
	case "trained":
		*s = Trained
	default:
		return fmt.Errorf("unknown fit status %q", text)
	}
	return nil
}

// Kind names the algorithm a store trains.
type Kind string

const (
	DecisionTree Kind = "decision_tree"
	RandomForest Kind = "random_forest"
	SurvivalTree Kind = "survival_tree"
)

// Snapshot is a consistent read of a store's lifecycle state.
type Snapshot struct {
	Name       string     `json:"name"`
	Kind       Kind       `json:"kind"`
	Status     FitStatus  `json:"status"`
	Accuracy   *float64   `json:"accuracy"`
	Source     string     `json:"source,omitempty"`
	TrainedAt  *time.Time `json:"trained_at,omitempty"`
	Generation uint64     `json:"generation"`
}
