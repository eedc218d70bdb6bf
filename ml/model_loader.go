package ml

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

type artifactFile struct {
	Name      string          `json:"name"`
	Version   string          `json:"version"`
	Features  FeatureSchema   `json:"features"`
	Threshold *float64        `json:"threshold"`
	Scaler    json.RawMessage `json:"scaler"`
	Model     json.RawMessage `json:"model"`
}

type kindHeader struct {
	Kind string `json:"kind"`
}

// LoadBundle reads and validates the artifact at path.
func LoadBundle(path string) (*Bundle, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	bundle, err := DecodeBundle(payload)
	if err != nil {
		var loadErr *ArtifactLoadError
		if errors.As(err, &loadErr) {
			loadErr.Path = path
		}
		return nil, err
	}
	return bundle, nil
}

// DecodeBundle parses an artifact document. Every failure is an *ArtifactLoadError.
func DecodeBundle(payload []byte) (*Bundle, error) {
	var file artifactFile
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&file); err != nil {
		return nil, &ArtifactLoadError{Err: fmt.Errorf("decode: %w", err)}
	}

	classifier, err := loadClassifier(file.Model)
	if err != nil {
		return nil, &ArtifactLoadError{Err: fmt.Errorf("model: %w", err)}
	}

	sum := sha256.Sum256(payload)
	opts := []BundleOption{WithMetadata(file.Name, file.Version, hex.EncodeToString(sum[:]))}
	if len(file.Scaler) > 0 && string(file.Scaler) != "null" {
		scaler, err := loadScaler(file.Scaler)
		if err != nil {
			return nil, &ArtifactLoadError{Err: fmt.Errorf("scaler: %w", err)}
		}
		opts = append(opts, WithScaler(scaler))
	}
	if file.Threshold != nil {
		opts = append(opts, WithThreshold(*file.Threshold))
	}

	bundle, err := NewBundle(file.Features, classifier, opts...)
	if err != nil {
		return nil, &ArtifactLoadError{Err: err}
	}
	return bundle, nil
}

func loadClassifier(raw json.RawMessage) (Classifier, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, errors.New("missing")
	}
	var header kindHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, err
	}
	switch header.Kind {
	case "logistic_regression":
		var body struct {
			kindHeader
			LogisticRegression
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		model := body.LogisticRegression
		if err := model.validate(); err != nil {
			return nil, err
		}
		return &model, nil
	case "decision_tree":
		var body struct {
			kindHeader
			DecisionTree
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		model := body.DecisionTree
		if err := model.validate(); err != nil {
			return nil, err
		}
		return &model, nil
	case "random_forest":
		var body struct {
			kindHeader
			RandomForest
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		model := body.RandomForest
		if err := model.validate(); err != nil {
			return nil, err
		}
		return &model, nil
	default:
		return nil, fmt.Errorf("unsupported model type %q", header.Kind)
	}
}

func loadScaler(raw json.RawMessage) (Scaler, error) {
	var header kindHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, err
	}
	switch header.Kind {
	case "standard":
		var body struct {
			kindHeader
			StandardScaler
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		scaler := body.StandardScaler
		if err := scaler.validate(); err != nil {
			return nil, err
		}
		return &scaler, nil
	case "minmax":
		var body struct {
			kindHeader
			MinMaxScaler
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		scaler := body.MinMaxScaler
		if err := scaler.validate(); err != nil {
			return nil, err
		}
		return &scaler, nil
	default:
		return nil, fmt.Errorf("unsupported scaler type %q", header.Kind)
	}
}
