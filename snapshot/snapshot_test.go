package snapshot

import (
	"strings"
	"testing"
)

func TestParseValid(t *testing.T) {
	data := []byte(`{
		"product_name": "Acme CRM",
		"company_name": "Acme Inc",
		"website": "https://acme.example",
		"founding_year": 2015,
		"industry": ["Sales", "CRM"],
		"features": [{"name": "Pipelines", "description": "Visual deal pipelines"}],
		"pricing": {
			"overview": "Per-seat pricing with a free tier.",
			"pricing_plans": [
				{"plan": "Free", "amount": "0", "currency": "USD", "period": "Month", "is_free": true}
			]
		}
	}`)

	snap, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if snap.ProductName != "Acme CRM" {
		t.Errorf("ProductName = %q, want Acme CRM", snap.ProductName)
	}
	if snap.FoundingYear != 2015 {
		t.Errorf("FoundingYear = %d, want 2015", snap.FoundingYear)
	}
	if len(snap.Features) != 1 || snap.Features[0].Name != "Pipelines" {
		t.Errorf("unexpected features: %+v", snap.Features)
	}
	if len(snap.Pricing.PricingPlans) != 1 {
		t.Fatalf("expected 1 pricing plan, got %d", len(snap.Pricing.PricingPlans))
	}
	if plan := snap.Pricing.PricingPlans[0]; plan.IsFree == nil || !*plan.IsFree {
		t.Errorf("expected free plan, got %+v", plan)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte(`{"product_name": "x", "not_a_field": 1}`)); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsNonJSON(t *testing.T) {
	if _, err := Parse([]byte("I could not extract the product details.")); err == nil {
		t.Fatal("expected error for prose input")
	}
}

func TestParseLoose(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{
			name:  "fenced",
			input: "```json\n{\"product_name\": \"Acme\"}\n```",
		},
		{
			name:  "prose wrapped",
			input: "Here is the extracted record:\n{\"product_name\": \"Acme\"}\nLet me know if you need more.",
		},
		{
			name:    "no object",
			input:   "nothing to see here",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := ParseLoose(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLoose failed: %v", err)
			}
			if snap.ProductName != "Acme" {
				t.Errorf("ProductName = %q, want Acme", snap.ProductName)
			}
		})
	}
}

func TestSchemaShape(t *testing.T) {
	schema := Schema()
	if schema["type"] != "object" {
		t.Fatalf("root type = %v, want object", schema["type"])
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatal("missing properties map")
	}

	for _, key := range []string{"product_name", "features", "pricing", "company_info", "reviews"} {
		if _, ok := props[key]; !ok {
			t.Errorf("schema missing property %q", key)
		}
	}

	features, ok := props["features"].(map[string]any)
	if !ok || features["type"] != "array" {
		t.Fatalf("features schema = %v, want array", props["features"])
	}
	items, ok := features["items"].(map[string]any)
	if !ok || items["type"] != "object" {
		t.Fatalf("features items schema = %v, want object", features["items"])
	}
	required, _ := items["required"].([]string)
	if len(required) != 1 || required[0] != "name" {
		t.Errorf("feature required = %v, want [name]", required)
	}
}

func TestSchemaFieldNamesMatchTags(t *testing.T) {
	props := Schema()["properties"].(map[string]any)
	for name := range props {
		if strings.ContainsAny(name, " ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
			t.Errorf("property %q is not snake_case", name)
		}
	}
}
