package masking

import (
	"bytes"
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaskedSecretValue is the replacement string for masked structured
// secret-bearing fields.
const MaskedSecretValue = "[MASKED_SECRET_DATA]"

var (
	yamlSecretPattern = regexp.MustCompile(`(?m)^kind:\s*Secret\s*$`)
	jsonSecretPattern = regexp.MustCompile(`"kind"\s*:\s*"Secret"`)
)

// secretFieldNames are map keys whose values are masked outright wherever
// they appear in a parsed document, independent of resource kind: this
// covers target repos' arbitrary YAML/JSON fixtures (credentials.yaml,
// CI config), not just Kubernetes-style `kind: Secret` manifests.
var secretFieldNames = map[string]bool{
	"password":     true,
	"secret":       true,
	"token":        true,
	"apiKey":       true,
	"api_key":      true,
	"privateKey":   true,
	"private_key":  true,
	"clientSecret": true,
}

// secretKindFieldNames are only masked when the enclosing document is a
// Kubernetes Secret (or SecretList): unlike secretFieldNames, a bare
// "data" or "stringData" key is too generic to mask unconditionally (a
// ConfigMap's "data" holds ordinary config, not credentials).
var secretKindFieldNames = map[string]bool{
	"data":       true,
	"stringData": true,
}

// StructuredSecretMasker parses YAML/JSON documents and masks fields known
// to carry secret material, whether or not the document happens to be a
// Kubernetes Secret resource.
type StructuredSecretMasker struct{}

func (m *StructuredSecretMasker) Name() string { return "structured_secret" }

func (m *StructuredSecretMasker) AppliesTo(data string) bool {
	if yamlSecretPattern.MatchString(data) || jsonSecretPattern.MatchString(data) {
		return true
	}
	lower := strings.ToLower(data)
	for name := range secretFieldNames {
		if strings.Contains(lower, strings.ToLower(name)+":") {
			return true
		}
	}
	return false
}

// isSecretKind reports whether a parsed document is a Kubernetes Secret
// or SecretList, gating the unconditional-elsewhere data/stringData mask.
func isSecretKind(doc map[string]any) bool {
	kind, _ := doc["kind"].(string)
	return kind == "Secret" || kind == "SecretList"
}

func (m *StructuredSecretMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		if masked := m.maskJSON(data); masked != data {
			return masked
		}
	}
	if masked := m.maskYAML(data); masked != data {
		return masked
	}
	return data
}

func (m *StructuredSecretMasker) maskYAML(data string) string {
	decoder := yaml.NewDecoder(strings.NewReader(data))
	var documents []map[string]any
	anyMasked := false

	for {
		var doc map[string]any
		err := decoder.Decode(&doc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return data
		}
		if doc == nil {
			continue
		}
		if maskDocument(doc) {
			anyMasked = true
		}
		documents = append(documents, doc)
	}

	if !anyMasked || len(documents) == 0 {
		return data
	}

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	for _, doc := range documents {
		if err := encoder.Encode(doc); err != nil {
			return data
		}
	}
	if err := encoder.Close(); err != nil {
		return data
	}

	result := strings.TrimRight(buf.String(), "\n")
	if strings.HasSuffix(data, "\n") {
		result += "\n"
	}
	return result
}

func (m *StructuredSecretMasker) maskJSON(data string) string {
	var obj map[string]any
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return data
	}
	if !maskDocument(obj) {
		return data
	}
	result, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return data
	}
	output := string(result)
	if strings.HasSuffix(data, "\n") {
		output += "\n"
	}
	return output
}

// maskDocument walks one parsed document (and any "items" list it carries,
// à la a Kubernetes List) and masks every field in secretFieldNames.
// Returns true if anything was masked.
func maskDocument(doc map[string]any) bool {
	masked := false

	if isSecretKind(doc) {
		for field := range secretKindFieldNames {
			fieldVal, ok := doc[field]
			if !ok {
				continue
			}
			if m, ok := fieldVal.(map[string]any); ok {
				for k := range m {
					m[k] = MaskedSecretValue
				}
				masked = true
			}
		}
	}

	for key, val := range doc {
		if secretFieldNames[key] {
			if m, ok := val.(map[string]any); ok {
				for k := range m {
					m[k] = MaskedSecretValue
				}
			} else {
				doc[key] = MaskedSecretValue
			}
			masked = true
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			if maskDocument(nested) {
				masked = true
			}
		}
	}

	if items, ok := doc["items"].([]any); ok {
		for _, item := range items {
			if itemMap, ok := item.(map[string]any); ok {
				if maskDocument(itemMap) {
					masked = true
				}
			}
		}
	}

	return masked
}
