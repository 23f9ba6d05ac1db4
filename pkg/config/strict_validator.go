package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// ValidationSeverity indicates whether an issue is an error or warning.
type ValidationSeverity string

const (
	SeverityError   ValidationSeverity = "error"
	SeverityWarning ValidationSeverity = "warning"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	Field       string
	Message     string
	Suggestions []string
	Severity    ValidationSeverity
	Context     string
}

// StrictValidationResult collects validation errors from strict unmarshaling.
type StrictValidationResult struct {
	UnknownFields []FieldError
	TypeErrors    []FieldError
	Warnings      []FieldError
}

// Valid reports whether there are no validation errors (warnings are allowed).
func (r *StrictValidationResult) Valid() bool {
	return len(r.UnknownFields) == 0 && len(r.TypeErrors) == 0
}

// HasIssues reports whether there are any errors or warnings at all.
func (r *StrictValidationResult) HasIssues() bool {
	return len(r.UnknownFields) > 0 || len(r.TypeErrors) > 0 || len(r.Warnings) > 0
}

// FormatErrors renders a human-readable validation report.
func (r *StrictValidationResult) FormatErrors() string {
	if !r.HasIssues() {
		return ""
	}

	var sb strings.Builder
	if !r.Valid() {
		sb.WriteString("configuration validation failed:\n\n")
	}

	if len(r.UnknownFields) > 0 {
		sb.WriteString("unknown fields (not part of the configuration surface):\n")
		for _, f := range r.UnknownFields {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", f.Field, f.Message))
			if len(f.Suggestions) > 0 {
				sb.WriteString(fmt.Sprintf("    did you mean: %s?\n", strings.Join(f.Suggestions, ", ")))
			}
		}
		sb.WriteString("\n")
	}

	if len(r.TypeErrors) > 0 {
		sb.WriteString("type errors:\n")
		for _, e := range r.TypeErrors {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", e.Field, e.Message))
		}
		sb.WriteString("\n")
	}

	if len(r.Warnings) > 0 {
		sb.WriteString("warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s: %s\n", w.Field, w.Message))
		}
	}

	return sb.String()
}

// ValidateConfigStructure decodes rawMap into a Config using strict
// unmarshaling (ErrorUnused) so typos and unrecognised keys are reported
// before startup proceeds, per the "unknown options are rejected at
// startup" rule (§6).
func ValidateConfigStructure(rawMap map[string]interface{}) (*StrictValidationResult, error) {
	result := &StrictValidationResult{}

	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		ErrorUnused:      true,
		TagName:          "yaml",
		WeaklyTypedInput: false,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("config: failed to build strict decoder: %w", err)
	}

	if err := decoder.Decode(rawMap); err != nil {
		collectValidationErrors(err, result)
	}

	return result, nil
}

func collectValidationErrors(err error, result *StrictValidationResult) {
	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "has invalid keys:"):
		result.UnknownFields = append(result.UnknownFields, extractUnknownFields(errStr)...)
	case strings.Contains(errStr, "expected type") || strings.Contains(errStr, "cannot unmarshal") || strings.Contains(errStr, "cannot decode"):
		result.TypeErrors = append(result.TypeErrors, parseTypeError(errStr))
	default:
		result.TypeErrors = append(result.TypeErrors, FieldError{
			Field:    "config",
			Message:  errStr,
			Severity: SeverityError,
		})
	}
}

// extractUnknownFields parses a mapstructure "has invalid keys:" error into
// one FieldError per offending key, with nearest-valid-field suggestions.
func extractUnknownFields(errMsg string) []FieldError {
	idx := strings.Index(errMsg, "has invalid keys:")
	if idx == -1 {
		return []FieldError{{Field: "config", Message: errMsg, Severity: SeverityError}}
	}

	beforeKeys := errMsg[:idx]
	parentPath := ""
	if lastQuote := strings.LastIndex(beforeKeys, "'"); lastQuote > 0 {
		if openingQuote := strings.LastIndex(beforeKeys[:lastQuote], "'"); openingQuote != -1 {
			parentPath = beforeKeys[openingQuote+1 : lastQuote]
		}
	}

	keysStr := strings.TrimSpace(errMsg[idx+len("has invalid keys:"):])
	validFields := validFieldNames(reflect.TypeOf(Config{}))

	var fieldErrors []FieldError
	for _, key := range strings.Split(keysStr, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fullPath := key
		if parentPath != "" {
			fullPath = parentPath + "." + key
		}

		suggestions := nearestFields(fullPath, validFields, 2)
		if len(suggestions) == 0 {
			suggestions = nearestFields(key, validFields, 2)
		}

		fieldErrors = append(fieldErrors, FieldError{
			Field:       fullPath,
			Message:     "field is not part of the recognised configuration surface",
			Suggestions: suggestions,
			Severity:    SeverityError,
		})
	}

	if len(fieldErrors) == 0 {
		fieldErrors = []FieldError{{Field: "config", Message: errMsg, Severity: SeverityError}}
	}
	return fieldErrors
}

func parseTypeError(errStr string) FieldError {
	fieldName := "config"
	if start := strings.Index(errStr, "'"); start != -1 {
		if end := strings.Index(errStr[start+1:], "'"); end != -1 {
			fieldName = errStr[start+1 : start+1+end]
		}
	}
	return FieldError{
		Field:    fieldName,
		Message:  errStr,
		Severity: SeverityError,
		Context:  "value type does not match the field's declared type",
	}
}

// validFieldNames walks a struct type and returns its yaml-tagged field
// paths, recursing into nested structs so suggestions can span levels.
func validFieldNames(t reflect.Type) []string {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var fields []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		yamlTag := field.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		name := strings.TrimSpace(strings.Split(yamlTag, ",")[0])
		if name == "" {
			continue
		}
		fields = append(fields, name)

		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if ft.Kind() == reflect.Struct {
			for _, nested := range validFieldNames(ft) {
				fields = append(fields, name+"."+nested)
			}
		}
	}
	return fields
}

func nearestFields(typo string, validFields []string, maxDistance int) []string {
	type scored struct {
		field    string
		distance int
	}
	typoLower := strings.ToLower(typo)

	var candidates []scored
	for _, vf := range validFields {
		vfLower := strings.ToLower(vf)
		d := levenshteinDistance(typoLower, vfLower)
		if d <= maxDistance || strings.Contains(vfLower, typoLower) || strings.Contains(typoLower, vfLower) {
			candidates = append(candidates, scored{vf, d})
		}
	}

	for i := 0; i < len(candidates) && i < 3; i++ {
		min := i
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].distance < candidates[min].distance {
				min = j
			}
		}
		candidates[i], candidates[min] = candidates[min], candidates[i]
	}

	var out []string
	for i := 0; i < len(candidates) && i < 3; i++ {
		out = append(out, candidates[i].field)
	}
	return out
}

func levenshteinDistance(s1, s2 string) int {
	if len(s1) == 0 {
		return len(s2)
	}
	if len(s2) == 0 {
		return len(s1)
	}

	matrix := make([][]int, len(s1)+1)
	for i := range matrix {
		matrix[i] = make([]int, len(s2)+1)
		matrix[i][0] = i
	}
	for j := range matrix[0] {
		matrix[0][j] = j
	}

	for i := 1; i <= len(s1); i++ {
		for j := 1; j <= len(s2); j++ {
			cost := 1
			if s1[i-1] == s2[j-1] {
				cost = 0
			}
			del := matrix[i-1][j] + 1
			ins := matrix[i][j-1] + 1
			sub := matrix[i-1][j-1] + cost
			best := del
			if ins < best {
				best = ins
			}
			if sub < best {
				best = sub
			}
			matrix[i][j] = best
		}
	}

	return matrix[len(s1)][len(s2)]
}
