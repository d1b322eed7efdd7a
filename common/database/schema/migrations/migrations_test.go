package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAll_VersionsAreUniqueAndOrdered(t *testing.T) {
	for i, m := range All {
		assert.Equal(t, i+1, m.Version)
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down)
	}
}
