// Package masking scrubs secrets out of text before it is logged,
// persisted to a learning store, or sent to the LLM provider: target
// repos the worker reads as context may carry .env files, credential
// fixtures, or Kubernetes manifests with embedded Secret resources. A
// pattern-based masker handles the generic sweep, and a structural
// YAML/JSON masker handles field-aware masking that isn't limited to
// one resource kind.
package masking

// Masker is a structurally-aware masker that parses content (YAML/JSON)
// rather than matching it with a single regex.
type Masker interface {
	// Name returns the unique identifier for this masker.
	Name() string

	// AppliesTo performs a lightweight check on whether this masker
	// should process the data. Should be fast (string contains, not parsing).
	AppliesTo(data string) bool

	// Mask applies masking logic and returns the masked result. Must be
	// defensive: return the original data on parse/processing errors.
	Mask(data string) string
}
