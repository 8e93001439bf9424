package model

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/spf13/afero"
)

// Missing-value directions for a split
const (
	GoLeft  = "left"
	GoRight = "right"
)

// Node is one node of a decision tree. Leaves carry a Label; splits carry
// either a numeric Threshold (value <= threshold goes left) or a set of
// Categories (member goes left).
type Node struct {
	Label string `json:"label,omitempty"`

	Feature    string   `json:"feature,omitempty"`
	Threshold  *float64 `json:"threshold,omitempty"`
	Categories []string `json:"categories,omitempty"`
	// Missing is where records lacking the feature go; defaults to left
	Missing string `json:"missing,omitempty"`

	Left  *Node `json:"left,omitempty"`
	Right *Node `json:"right,omitempty"`
}

func (n *Node) isLeaf() bool {
	return n.Left == nil && n.Right == nil
}

// TreeModel is a serialized decision-tree classifier
type TreeModel struct {
	Name     string   `json:"name"`
	Version  string   `json:"version"`
	Features []string `json:"features"`
	Classes  []string `json:"classes"`
	Root     *Node    `json:"root"`

	path  string
	nodes int
	depth int
}

// LoadTree reads and validates a tree model file
func LoadTree(fs afero.Fs, path string) (*TreeModel, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	var m TreeModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid model %s: %w", path, err)
	}
	m.path = path
	return &m, nil
}

// validate checks the feature schema and the shape of every node
func (m *TreeModel) validate() error {
	if !slices.Equal(m.Features, FeatureNames) {
		return fmt.Errorf("feature schema %v does not match %v", m.Features, FeatureNames)
	}
	if m.Root == nil {
		return fmt.Errorf("missing root node")
	}
	return m.walk(m.Root, 1)
}

func (m *TreeModel) walk(n *Node, depth int) error {
	m.nodes++
	if depth > m.depth {
		m.depth = depth
	}

	if n.isLeaf() {
		if n.Label == "" {
			return fmt.Errorf("leaf without label at depth %d", depth)
		}
		return nil
	}

	if n.Left == nil || n.Right == nil {
		return fmt.Errorf("split on %q needs two children", n.Feature)
	}
	if !slices.Contains(FeatureNames, n.Feature) {
		return fmt.Errorf("split on unknown feature %q", n.Feature)
	}
	if (n.Threshold == nil) == (len(n.Categories) == 0) {
		return fmt.Errorf("split on %q needs exactly one of threshold or categories", n.Feature)
	}
	if n.Missing != "" && n.Missing != GoLeft && n.Missing != GoRight {
		return fmt.Errorf("split on %q has invalid missing direction %q", n.Feature, n.Missing)
	}

	if err := m.walk(n.Left, depth+1); err != nil {
		return err
	}
	return m.walk(n.Right, depth+1)
}

// Predict walks the tree for one record
func (m *TreeModel) Predict(ctx context.Context, features FeatureRecord) (string, error) {
	n := m.Root
	for !n.isLeaf() {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		v, err := features.Lookup(n.Feature)
		if err != nil {
			return "", err
		}

		left, err := n.goesLeft(v)
		if err != nil {
			return "", err
		}
		if left {
			n = n.Left
		} else {
			n = n.Right
		}
	}
	return n.Label, nil
}

func (n *Node) goesLeft(v Value) (bool, error) {
	if v.Missing {
		return n.Missing != GoRight, nil
	}

	if n.Threshold != nil {
		if v.Categorical {
			return false, fmt.Errorf("feature %q is categorical but split is numeric", n.Feature)
		}
		return v.Number <= *n.Threshold, nil
	}

	if !v.Categorical {
		return false, fmt.Errorf("feature %q is numeric but split is categorical", n.Feature)
	}
	return slices.Contains(n.Categories, v.Text), nil
}

// Info returns model metadata
func (m *TreeModel) Info() map[string]interface{} {
	return map[string]interface{}{
		"available": true,
		"name":      m.Name,
		"version":   m.Version,
		"path":      m.path,
		"features":  m.Features,
		"classes":   m.Classes,
		"nodes":     m.nodes,
		"depth":     m.depth,
	}
}
