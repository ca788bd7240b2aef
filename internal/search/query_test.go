package search

import (
	"encoding/json"
	"testing"
)

func Test_BuildHybridQuery_Shape(t *testing.T) {
	t.Parallel()
	payload, err := buildHybridQuery("text", "embedding", "how do I reset my password", []float32{0.1, 0.2, 0.3}, 4)
	if err != nil {
		t.Fatalf("buildHybridQuery: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}

	// The embedding field must be excluded from returned sources.
	source, ok := body["_source"].(map[string]any)
	if !ok {
		t.Fatalf("missing _source object")
	}
	exclude, ok := source["exclude"].([]any)
	if !ok || len(exclude) != 1 || exclude[0] != "embedding" {
		t.Errorf("_source.exclude = %v, want [embedding]", source["exclude"])
	}

	// Exactly two clauses: one match, one knn, in that order.
	queries := body["query"].(map[string]any)["hybrid"].(map[string]any)["queries"].([]any)
	if len(queries) != 2 {
		t.Fatalf("want exactly 2 hybrid clauses, got %d", len(queries))
	}
	first := queries[0].(map[string]any)
	if _, ok := first["match"]; !ok {
		t.Errorf("first clause is not a match clause: %v", first)
	}
	second := queries[1].(map[string]any)
	knn, ok := second["knn"].(map[string]any)
	if !ok {
		t.Fatalf("second clause is not a knn clause: %v", second)
	}

	// The knn clause targets the vector field with k = size.
	params := knn["embedding"].(map[string]any)
	if got := params["k"].(float64); got != 4 {
		t.Errorf("knn k = %v, want 4", got)
	}
	if got := len(params["vector"].([]any)); got != 3 {
		t.Errorf("knn vector length = %d, want 3", got)
	}

	if got := body["size"].(float64); got != 4 {
		t.Errorf("size = %v, want 4", got)
	}
}

func Test_BuildHybridQuery_MatchCarriesQueryText(t *testing.T) {
	t.Parallel()
	payload, err := buildHybridQuery("content", "vec", "quarterly report", []float32{1}, 1)
	if err != nil {
		t.Fatalf("buildHybridQuery: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	queries := body["query"].(map[string]any)["hybrid"].(map[string]any)["queries"].([]any)
	match := queries[0].(map[string]any)["match"].(map[string]any)
	params, ok := match["content"].(map[string]any)
	if !ok {
		t.Fatalf("match clause does not target the text field: %v", match)
	}
	if params["query"] != "quarterly report" {
		t.Errorf("match query = %v, want %q", params["query"], "quarterly report")
	}
}
