// ABOUTME: Tests for version constants
// ABOUTME: Guards against empty identification strings
package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentityDefined(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.NotEmpty(t, Product)
	assert.NotEmpty(t, Manufacturer)
}

func TestVersionLooksLikeSemver(t *testing.T) {
	assert.Regexp(t, `^\d+\.\d+\.\d+$`, Version)
}
