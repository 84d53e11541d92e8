package schema

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsShared(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestValidateAcceptsMinimalConfig(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)

	doc := map[string]interface{}{
		"version": "1.0",
		"server":  map[string]interface{}{"address": "127.0.0.1:8787"},
	}
	assert.NoError(t, v.Validate(doc))
}

func TestValidateReportsViolations(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)

	doc := map[string]interface{}{
		"version":   "1.0",
		"artifacts": map[string]interface{}{"location": "elsewhere"},
	}
	err = v.Validate(doc)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.NotEmpty(t, verr.Violations)
	assert.Equal(t, "/artifacts/location", verr.Violations[0].Path)
	assert.Contains(t, err.Error(), "/artifacts/location")
}

func TestValidateRejectsUnknownKeys(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)

	err = v.Validate(map[string]interface{}{
		"version":   "1.0",
		"artifacts": map[string]interface{}{"bogus": true},
	})
	assert.Error(t, err)
}
