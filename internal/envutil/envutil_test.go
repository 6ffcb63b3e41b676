package envutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDev(t *testing.T) {
	for value, want := range map[string]bool{
		"":            false,
		"production":  false,
		"dev":         true,
		"Development": true,
	} {
		t.Setenv("SITECMS_ENV", value)
		assert.Equal(t, want, IsDev(), "SITECMS_ENV=%q", value)
	}
}
