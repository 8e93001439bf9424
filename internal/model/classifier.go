package model

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/afero"
)

// ErrUnavailable is returned when no model is loaded
var ErrUnavailable = errors.New("model unavailable")

// Feature names in the order the model expects them
const (
	FeatureTotalCost     = "totalCost"
	FeatureSME           = "SME"
	FeatureNumberOrg     = "numberOrg"
	FeatureStartMonth    = "startMonth"
	FeatureDuration      = "duration"
	FeatureFundingScheme = "fundingScheme"
	FeatureCountry       = "country"
)

// FeatureNames is the fixed feature schema shared with the model file
var FeatureNames = []string{
	FeatureTotalCost,
	FeatureSME,
	FeatureNumberOrg,
	FeatureStartMonth,
	FeatureDuration,
	FeatureFundingScheme,
	FeatureCountry,
}

// FeatureRecord is the single row submitted to a classifier. Nil numbers
// and empty codes are missing values; they are never replaced by zero.
type FeatureRecord struct {
	TotalCost     *float64 `json:"totalCost"`
	SME           *bool    `json:"SME"`
	NumberOrg     *float64 `json:"numberOrg"`
	StartMonth    *float64 `json:"startMonth"`
	Duration      *float64 `json:"duration"`
	FundingScheme string   `json:"fundingScheme"`
	Country       string   `json:"country"`
}

// Value is one feature of a record
type Value struct {
	Number      float64
	Text        string
	Categorical bool
	Missing     bool
}

// Lookup returns the named feature
func (f FeatureRecord) Lookup(name string) (Value, error) {
	switch name {
	case FeatureTotalCost:
		return number(f.TotalCost), nil
	case FeatureSME:
		if f.SME == nil {
			return Value{Missing: true}, nil
		}
		if *f.SME {
			return Value{Number: 1}, nil
		}
		return Value{Number: 0}, nil
	case FeatureNumberOrg:
		return number(f.NumberOrg), nil
	case FeatureStartMonth:
		return number(f.StartMonth), nil
	case FeatureDuration:
		return number(f.Duration), nil
	case FeatureFundingScheme:
		return text(f.FundingScheme), nil
	case FeatureCountry:
		return text(f.Country), nil
	}
	return Value{}, fmt.Errorf("unknown feature %q", name)
}

func number(v *float64) Value {
	if v == nil {
		return Value{Missing: true}
	}
	return Value{Number: *v}
}

func text(s string) Value {
	return Value{Text: s, Categorical: true, Missing: s == ""}
}

// Classifier predicts a single label for one feature record
type Classifier interface {
	Predict(ctx context.Context, features FeatureRecord) (string, error)
	Info() map[string]interface{}
}

// Unavailable stands in when no model could be loaded
type Unavailable struct {
	Reason string
}

// Predict always fails with ErrUnavailable
func (u Unavailable) Predict(context.Context, FeatureRecord) (string, error) {
	return "", fmt.Errorf("%w: %s", ErrUnavailable, u.Reason)
}

// Info reports why no model is available
func (u Unavailable) Info() map[string]interface{} {
	return map[string]interface{}{
		"available": false,
		"message":   u.Reason,
	}
}

// Open loads the tree model at path, falling back to Unavailable so the rest
// of the application keeps working without a model.
func Open(fs afero.Fs, path string) Classifier {
	if path == "" {
		return Unavailable{Reason: "no model configured"}
	}
	m, err := LoadTree(fs, path)
	if err != nil {
		log.Printf("Warning: prediction disabled: %v", err)
		return Unavailable{Reason: err.Error()}
	}
	log.Printf("Loaded model %s (%d nodes)", path, m.nodes)
	return m
}
