// Package predict turns user-submitted project attributes into a single
// classifier call and a display label.
package predict

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/kartoza/funding-explorer/internal/dataset"
	"github.com/kartoza/funding-explorer/internal/model"
)

var (
	// ErrEmptyLabel is returned when the classifier produces no label
	ErrEmptyLabel = errors.New("classifier returned an empty label")
	// ErrInvalidInput is returned for values outside their domain
	ErrInvalidInput = errors.New("invalid prediction input")
)

// Label is a capitalized classifier output
type Label string

// PredictionInput is the fixed set of attributes a user submits. Null
// numbers are missing. Duration and start month may instead be derived
// from StartDate/EndDate.
type PredictionInput struct {
	TotalCost         *float64 `json:"totalCost"`
	SME               *bool    `json:"sme"`
	OrganizationCount *float64 `json:"organizationCount"`
	StartMonth        *int     `json:"startMonth"`
	DurationDays      *float64 `json:"durationDays"`
	StartDate         string   `json:"startDate,omitempty"`
	EndDate           string   `json:"endDate,omitempty"`
	FundingScheme     string   `json:"fundingScheme"`
	Country           string   `json:"country"`
}

// Classifier is the part of model.Classifier the adapter needs
type Classifier interface {
	Predict(ctx context.Context, features model.FeatureRecord) (string, error)
}

// Adapter wraps an opaque classifier
type Adapter struct {
	classifier Classifier
}

// NewAdapter creates an adapter around c
func NewAdapter(c Classifier) *Adapter {
	return &Adapter{classifier: c}
}

// Predict builds one feature record from in and returns the classifier's
// label, capitalized.
func (a *Adapter) Predict(ctx context.Context, in PredictionInput) (Label, error) {
	features, err := Features(in)
	if err != nil {
		return "", err
	}

	raw, err := a.classifier.Predict(ctx, features)
	if err != nil {
		return "", fmt.Errorf("prediction failed: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		return "", ErrEmptyLabel
	}
	return Capitalize(raw), nil
}

// Features maps in onto the model's feature schema. Values that cannot be
// determined stay missing.
func Features(in PredictionInput) (model.FeatureRecord, error) {
	if in.TotalCost != nil && *in.TotalCost < 0 {
		return model.FeatureRecord{}, fmt.Errorf("%w: totalCost must not be negative", ErrInvalidInput)
	}
	if in.OrganizationCount != nil && *in.OrganizationCount < 0 {
		return model.FeatureRecord{}, fmt.Errorf("%w: organizationCount must not be negative", ErrInvalidInput)
	}
	if in.StartMonth != nil && (*in.StartMonth < 1 || *in.StartMonth > 12) {
		return model.FeatureRecord{}, fmt.Errorf("%w: startMonth must be between 1 and 12", ErrInvalidInput)
	}
	if in.DurationDays != nil && *in.DurationDays < 0 {
		return model.FeatureRecord{}, fmt.Errorf("%w: durationDays must not be negative", ErrInvalidInput)
	}

	rec := model.FeatureRecord{
		TotalCost:     in.TotalCost,
		SME:           in.SME,
		NumberOrg:     in.OrganizationCount,
		Duration:      in.DurationDays,
		FundingScheme: strings.TrimSpace(in.FundingScheme),
		Country:       strings.ToUpper(strings.TrimSpace(in.Country)),
	}
	if in.StartMonth != nil {
		m := float64(*in.StartMonth)
		rec.StartMonth = &m
	}

	start := dataset.ParseDate(in.StartDate, false)
	end := dataset.ParseDate(in.EndDate, false)
	if rec.StartMonth == nil && start != nil {
		m := float64(start.Month())
		rec.StartMonth = &m
	}
	if rec.Duration == nil && start != nil && end != nil {
		if d := end.Sub(*start); d >= 0 {
			days := d.Hours() / 24
			rec.Duration = &days
		} else {
			log.Printf("Warning: end date %s before start date %s, duration left missing",
				end.Format(time.DateOnly), start.Format(time.DateOnly))
		}
	}
	return rec, nil
}

// Capitalize upper-cases the first letter and lower-cases the rest
func Capitalize(s string) Label {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return Label(s)
	}
	return Label(string(unicode.ToUpper(r)) + strings.ToLower(s[size:]))
}
