package connector_test

import (
	"encoding/json"
	"testing"

	"github.com/canectors/fundsync/pkg/connector"
)

func TestFilterSpec_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		spec connector.FilterSpec
		want bool
	}{
		{"zero value", connector.FilterSpec{}, true},
		{"operator only", connector.FilterSpec{Operator: connector.OperatorGt}, true},
		{"empty map", connector.FilterSpec{Fields: map[string]interface{}{}}, true},
		{"one field", connector.FilterSpec{Fields: map[string]interface{}{"Tipo_Fundo": "FII"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.spec.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilterSpec_EffectiveOperator(t *testing.T) {
	if got := (connector.FilterSpec{}).EffectiveOperator(); got != connector.OperatorEquals {
		t.Errorf("default operator = %q, want %q", got, connector.OperatorEquals)
	}
	if got := (connector.FilterSpec{Operator: connector.OperatorBetween}).EffectiveOperator(); got != connector.OperatorBetween {
		t.Errorf("operator = %q, want %q", got, connector.OperatorBetween)
	}
}

func TestSubmissionResultJSON(t *testing.T) {
	result := connector.SubmissionResult{
		Cards: []connector.CreatedCard{{ID: "123", CreatedAt: "2024-05-01T12:00:00.5Z"}},
		Count: 1,
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	want := `{"cards":[{"id":"123","created_at":"2024-05-01T12:00:00.5Z"}],"count":1}`
	if string(data) != want {
		t.Errorf("JSON = %s, want %s", data, want)
	}
}

func TestExecutionResultJSON_OmitsEmptyParts(t *testing.T) {
	data, err := json.Marshal(connector.ExecutionResult{ExecutionID: "e1", RecordsLoaded: 3})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	for _, key := range []string{"dry_run", "matched", "submission"} {
		if _, present := fields[key]; present {
			t.Errorf("expected %q to be omitted: %s", key, data)
		}
	}
	for _, key := range []string{"execution_id", "records_loaded", "records_matched"} {
		if _, present := fields[key]; !present {
			t.Errorf("expected %q to be present: %s", key, data)
		}
	}
}
