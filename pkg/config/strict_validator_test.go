package config

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateConfigStructureAcceptsKnownFields(t *testing.T) {
	raw := map[string]interface{}{
		"quality": map[string]interface{}{
			"min_chunk_quality": 0.5,
		},
	}
	result, err := ValidateConfigStructure(raw)
	require.NoError(t, err)
	assert.True(t, result.Valid())
}

func TestValidateConfigStructureRejectsUnknownField(t *testing.T) {
	raw := map[string]interface{}{
		"qualty": map[string]interface{}{ // typo
			"min_chunk_quality": 0.5,
		},
	}
	result, err := ValidateConfigStructure(raw)
	require.NoError(t, err)
	assert.False(t, result.Valid())
	require.NotEmpty(t, result.UnknownFields)
}

func TestStrictValidationResultFormatErrorsIncludesSuggestions(t *testing.T) {
	raw := map[string]interface{}{
		"qualty": map[string]interface{}{"min_chunk_quality": 0.5},
	}
	result, err := ValidateConfigStructure(raw)
	require.NoError(t, err)
	formatted := result.FormatErrors()
	assert.Contains(t, formatted, "unknown fields")
	assert.Contains(t, formatted, "did you mean: quality")
}

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance("quality", "quality"))
	assert.Equal(t, 1, levenshteinDistance("qualty", "quality"))
	assert.Equal(t, 7, levenshteinDistance("", "quality"))
}

func TestNearestFieldsFindsClosestMatch(t *testing.T) {
	valid := []string{"quality", "chunking", "embedding"}
	got := nearestFields("qualty", valid, 2)
	require.NotEmpty(t, got)
	assert.Equal(t, "quality", got[0])
}

func TestValidFieldNamesIncludesNestedPaths(t *testing.T) {
	fields := validFieldNames(reflect.TypeOf(Config{}))
	assert.Contains(t, fields, "quality")
	assert.Contains(t, fields, "quality.min_chunk_quality")
}
