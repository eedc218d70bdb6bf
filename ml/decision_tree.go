package ml

import (
	"errors"
	"fmt"
)

// DecisionTree walks nodes stored in a flat slice; the root is node 0.
type DecisionTree struct {
	NFeatures int        `json:"n_features"`
	Nodes     []TreeNode `json:"nodes"`
}

type TreeNode struct {
	FeatureIdx  int     `json:"feature_idx"`
	Threshold   float64 `json:"threshold"`
	LeftChild   int     `json:"left_child"`
	RightChild  int     `json:"right_child"`
	IsLeaf      bool    `json:"is_leaf"`
	Probability float64 `json:"probability"`
}

func (dt *DecisionTree) Width() int { return dt.NFeatures }

func (dt *DecisionTree) PredictProba(features []float64) (float64, error) {
	if len(features) != dt.NFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", dt.NFeatures, len(features))
	}
	return walkTree(dt.Nodes, features)
}

func (dt *DecisionTree) validate() error {
	return validateNodes(dt.Nodes, dt.NFeatures)
}

// RandomForest averages the leaf probabilities of its trees.
type RandomForest struct {
	NFeatures int          `json:"n_features"`
	Trees     [][]TreeNode `json:"trees"`
}

func (rf *RandomForest) Width() int { return rf.NFeatures }

func (rf *RandomForest) PredictProba(features []float64) (float64, error) {
	if len(features) != rf.NFeatures {
		return 0, fmt.Errorf("expected %d features, got %d", rf.NFeatures, len(features))
	}
	sum := 0.0
	for i, nodes := range rf.Trees {
		p, err := walkTree(nodes, features)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += p
	}
	return sum / float64(len(rf.Trees)), nil
}

func (rf *RandomForest) validate() error {
	if len(rf.Trees) == 0 {
		return errors.New("random forest has no trees")
	}
	for i, nodes := range rf.Trees {
		if err := validateNodes(nodes, rf.NFeatures); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

func walkTree(nodes []TreeNode, features []float64) (float64, error) {
	if len(nodes) == 0 {
		return 0, errors.New("model not trained")
	}
	idx := 0
	for {
		node := nodes[idx]
		if node.IsLeaf {
			return node.Probability, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(features) {
			return 0, errors.New("feature index out of range")
		}
		if features[node.FeatureIdx] <= node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
}

// validateNodes requires children to point forward so every walk terminates.
func validateNodes(nodes []TreeNode, width int) error {
	if width <= 0 {
		return errors.New("n_features must be positive")
	}
	if len(nodes) == 0 {
		return errors.New("tree has no nodes")
	}
	for i, node := range nodes {
		if node.IsLeaf {
			if node.Probability < 0 || node.Probability > 1 {
				return fmt.Errorf("node %d: leaf probability %g outside [0,1]", i, node.Probability)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= width {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		for _, child := range []int{node.LeftChild, node.RightChild} {
			if child <= i || child >= len(nodes) {
				return fmt.Errorf("node %d: child %d out of range", i, child)
			}
		}
	}
	return nil
}
