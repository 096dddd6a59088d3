package ml

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrCorruptArtifact marks an artifact that exists but cannot be decoded.
var ErrCorruptArtifact = errors.New("corrupt model artifact")

func init() {
	gob.Register(&DecisionTree{})
	gob.Register(&RandomForest{})
}

type artifact struct {
	Model MLModel
}

// SaveModel gob-encodes model to path, replacing any previous file in one
// rename.
func SaveModel(path string, model MLModel) error {
	if model == nil {
		return errors.New("model is nil")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := gob.NewEncoder(tmp).Encode(artifact{Model: model}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadModel decodes a model written by SaveModel. A missing file yields an
// error matching fs.ErrNotExist; undecodable content yields ErrCorruptArtifact.
func LoadModel(path string) (MLModel, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var a artifact
	if err := gob.NewDecoder(file).Decode(&a); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}
	switch m := a.Model.(type) {
	case *DecisionTree:
		if err := validateNodes(m.Nodes); err != nil {
			return nil, fmt.Errorf("%w: decision tree: %v", ErrCorruptArtifact, err)
		}
	case *RandomForest:
		if len(m.Trees) == 0 {
			return nil, fmt.Errorf("%w: random forest has no trees", ErrCorruptArtifact)
		}
		for i, tree := range m.Trees {
			if tree == nil {
				return nil, fmt.Errorf("%w: forest tree %d is missing", ErrCorruptArtifact, i)
			}
			if err := validateNodes(tree.Nodes); err != nil {
				return nil, fmt.Errorf("%w: forest tree %d: %v", ErrCorruptArtifact, i, err)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported model type %T", ErrCorruptArtifact, a.Model)
	}
	return a.Model, nil
}

// validateNodes checks that every internal node points forward to nodes
// inside the slice, so prediction always reaches a leaf.
func validateNodes(nodes []TreeNode) error {
	if len(nodes) == 0 {
		return errors.New("no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			continue
		}
		if node.FeatureIdx < 0 {
			return fmt.Errorf("node %d has feature index %d", i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(nodes) {
				return fmt.Errorf("node %d has child %d outside (%d, %d)", i, child, i, len(nodes))
			}
		}
	}
	return nil
}
