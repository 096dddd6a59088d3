package dataset

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// TitanicSource reads the raw passenger-survival table. An empty Path selects
// the bundled excerpt.
type TitanicSource struct {
	Path string
}

// Frame reads the table from its source on every call so each training run
// sees the current file contents.
func (s TitanicSource) Frame() (*Frame, error) {
	var (
		r   io.ReadCloser
		err error
	)
	if s.Path == "" {
		r, err = bundled.Open("data/titanic.csv")
	} else {
		r, err = os.Open(filepath.Clean(s.Path))
	}
	if err != nil {
		return nil, fmt.Errorf("open titanic dataset: %w", err)
	}
	defer r.Close()

	frame, err := ReadFrame(r)
	if err != nil {
		return nil, fmt.Errorf("read titanic dataset: %w", err)
	}
	if len(frame.Rows) == 0 {
		return nil, fmt.Errorf("titanic dataset %q has no rows", s.Name())
	}
	return frame, nil
}

// Name describes where the table is read from.
func (s TitanicSource) Name() string {
	if s.Path == "" {
		return "bundled:titanic.csv"
	}
	return s.Path
}
