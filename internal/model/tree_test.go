package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const testTree = `{
  "name": "fundability",
  "version": "1",
  "features": ["totalCost", "SME", "numberOrg", "startMonth", "duration", "fundingScheme", "country"],
  "classes": ["funded", "rejected", "review"],
  "root": {
    "feature": "totalCost",
    "threshold": 100000,
    "missing": "right",
    "left": {
      "feature": "country",
      "categories": ["BE", "NL"],
      "left": {"label": "funded"},
      "right": {"label": "review"}
    },
    "right": {
      "feature": "SME",
      "threshold": 0.5,
      "left": {"label": "rejected"},
      "right": {"label": "funded"}
    }
  }
}`

func f64(v float64) *float64 { return &v }

func loadTestTree(t *testing.T, body string) (*TreeModel, error) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/models/tree.json", []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return LoadTree(fs, "/models/tree.json")
}

func TestLoadTree(t *testing.T) {
	m, err := loadTestTree(t, testTree)
	if err != nil {
		t.Fatalf("LoadTree failed: %v", err)
	}

	info := m.Info()
	if info["available"] != true {
		t.Error("Expected loaded model to be available")
	}
	if info["nodes"] != 7 {
		t.Errorf("Expected 7 nodes, got %v", info["nodes"])
	}
	if info["depth"] != 3 {
		t.Errorf("Expected depth 3, got %v", info["depth"])
	}
}

func TestTreePredict(t *testing.T) {
	m, err := loadTestTree(t, testTree)
	if err != nil {
		t.Fatal(err)
	}
	yes, no := true, false

	tests := []struct {
		name string
		rec  FeatureRecord
		want string
	}{
		{"cheap in listed country", FeatureRecord{TotalCost: f64(50000), Country: "BE"}, "funded"},
		{"cheap elsewhere", FeatureRecord{TotalCost: f64(50000), Country: "FR"}, "review"},
		{"threshold inclusive", FeatureRecord{TotalCost: f64(100000), Country: "NL"}, "funded"},
		{"missing country goes left", FeatureRecord{TotalCost: f64(1)}, "funded"},
		{"expensive SME", FeatureRecord{TotalCost: f64(2e6), SME: &yes}, "funded"},
		{"expensive non-SME", FeatureRecord{TotalCost: f64(2e6), SME: &no}, "rejected"},
		{"missing cost goes right", FeatureRecord{SME: &yes}, "funded"},
		{"nothing known", FeatureRecord{}, "rejected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Predict(context.Background(), tt.rec)
			if err != nil {
				t.Fatalf("Predict failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestTreePredictCancelled(t *testing.T) {
	m, err := loadTestTree(t, testTree)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := m.Predict(ctx, FeatureRecord{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestLoadTreeRejectsBadModels(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{"root":`, "failed to parse"},
		{"schema mismatch", `{"features": ["country"], "root": {"label": "x"}}`, "feature schema"},
		{"no root", `{"features": ["totalCost", "SME", "numberOrg", "startMonth", "duration", "fundingScheme", "country"]}`, "missing root"},
		{"empty leaf", `{"features": ["totalCost", "SME", "numberOrg", "startMonth", "duration", "fundingScheme", "country"], "root": {}}`, "leaf without label"},
		{"one child", `{"features": ["totalCost", "SME", "numberOrg", "startMonth", "duration", "fundingScheme", "country"], "root": {"feature": "SME", "threshold": 1, "left": {"label": "a"}}}`, "two children"},
		{"unknown feature", `{"features": ["totalCost", "SME", "numberOrg", "startMonth", "duration", "fundingScheme", "country"], "root": {"feature": "colour", "threshold": 1, "left": {"label": "a"}, "right": {"label": "b"}}}`, "unknown feature"},
		{"bad missing", `{"features": ["totalCost", "SME", "numberOrg", "startMonth", "duration", "fundingScheme", "country"], "root": {"feature": "SME", "threshold": 1, "missing": "up", "left": {"label": "a"}, "right": {"label": "b"}}}`, "missing direction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadTestTree(t, tt.body)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadTreeMissingFile(t *testing.T) {
	if _, err := LoadTree(afero.NewMemMapFs(), "/nope.json"); err == nil {
		t.Error("Expected error for missing model file")
	}
}

func TestFeatureRecordLookup(t *testing.T) {
	yes := true
	rec := FeatureRecord{TotalCost: f64(10), SME: &yes, FundingScheme: "RIA"}
	values := make([]Value, len(FeatureNames))
	for i, name := range FeatureNames {
		v, err := rec.Lookup(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		values[i] = v
	}
	if values[0].Number != 10 || values[0].Missing {
		t.Errorf("totalCost: unexpected %+v", values[0])
	}
	if values[1].Number != 1 {
		t.Errorf("SME: expected 1, got %+v", values[1])
	}
	for _, i := range []int{2, 3, 4, 6} {
		if !values[i].Missing {
			t.Errorf("%s: expected missing, got %+v", FeatureNames[i], values[i])
		}
	}
	if !values[5].Categorical || values[5].Text != "RIA" {
		t.Errorf("fundingScheme: unexpected %+v", values[5])
	}

	if _, err := rec.Lookup("colour"); err == nil {
		t.Error("Expected error for unknown feature")
	}
}

func TestUnavailable(t *testing.T) {
	u := Unavailable{Reason: "no model configured"}
	_, err := u.Predict(context.Background(), FeatureRecord{})
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if u.Info()["available"] != false {
		t.Error("Expected unavailable info")
	}
}

func TestOpenFallsBack(t *testing.T) {
	fs := afero.NewMemMapFs()

	if _, ok := Open(fs, "").(Unavailable); !ok {
		t.Error("Expected Unavailable without a path")
	}
	if _, ok := Open(fs, "/missing.json").(Unavailable); !ok {
		t.Error("Expected Unavailable for a missing file")
	}

	if err := afero.WriteFile(fs, "/tree.json", []byte(testTree), 0644); err != nil {
		t.Fatal(err)
	}
	if _, ok := Open(fs, "/tree.json").(*TreeModel); !ok {
		t.Error("Expected a loaded tree model")
	}
}
