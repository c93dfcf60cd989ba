// Package domain defines core domain types, constants, and validation for the
// CareWell retrieval pipeline. It acts as the validation gate at pipeline
// entry points.
package domain

// Query represents a caregiver question submitted for retrieval.
type Query struct {
	Text string `json:"text"`
	K    int    `json:"k,omitempty"`
}

// DefaultTopK is the neighbor count used when a query does not specify one.
const DefaultTopK = 5

// MaxTopK caps the neighbor count a caller may request.
const MaxTopK = 50
