package search

import (
	"encoding/json"
	"fmt"
)

// hybridBody is the JSON search request submitted to the engine. The stored
// embedding field is always excluded from returned sources — vectors are
// large and never needed by the caller.
type hybridBody struct {
	// Source restricts which stored fields the engine returns per hit.
	Source sourceFilter `json:"_source"`

	// Query holds the hybrid clause pair.
	Query hybridQuery `json:"query"`

	// Size is the maximum number of hits to return.
	Size int `json:"size"`
}

// sourceFilter excludes stored fields from returned hit sources.
type sourceFilter struct {
	Exclude []string `json:"exclude"`
}

// hybridQuery wraps the engine's hybrid query container.
type hybridQuery struct {
	Hybrid hybridClauses `json:"hybrid"`
}

// hybridClauses holds the sub-queries the engine fuses into one ranking:
// always exactly one lexical match clause and one k-NN clause.
type hybridClauses struct {
	Queries []any `json:"queries"`
}

// matchClause is the lexical full-text sub-query over the text field.
type matchClause struct {
	Match map[string]matchParams `json:"match"`
}

// matchParams carries the query text for a match clause.
type matchParams struct {
	Query string `json:"query"`
}

// knnClause is the nearest-neighbour sub-query over the vector field.
type knnClause struct {
	KNN map[string]knnParams `json:"knn"`
}

// knnParams carries the query vector and neighbour count for a knn clause.
type knnParams struct {
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
}

// buildHybridQuery composes the hybrid search request body: one match clause
// over textField, one knn clause over vectorField, with vectorField excluded
// from returned sources. size bounds both the knn neighbour count and the
// result count.
func buildHybridQuery(textField, vectorField, query string, vector []float32, size int) ([]byte, error) {
	body := hybridBody{
		Source: sourceFilter{Exclude: []string{vectorField}},
		Query: hybridQuery{
			Hybrid: hybridClauses{
				Queries: []any{
					matchClause{Match: map[string]matchParams{
						textField: {Query: query},
					}},
					knnClause{KNN: map[string]knnParams{
						vectorField: {Vector: vector, K: size},
					}},
				},
			},
		},
		Size: size,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("search: marshal query: %w", err)
	}
	return payload, nil
}
