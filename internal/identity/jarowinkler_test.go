package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaroWinkler(t *testing.T) {
	assert.Equal(t, 1.0, JaroWinkler("MARTHA", "MARTHA"))
	assert.Equal(t, 0.0, JaroWinkler("", "MARTHA"))
	assert.Equal(t, 0.0, JaroWinkler("ABC", "XYZ"))
	assert.InDelta(t, 0.9611, JaroWinkler("MARTHA", "MARHTA"), 1e-4)
	assert.InDelta(t, 0.8400, JaroWinkler("DWAYNE", "DUANE"), 1e-4)
	assert.InDelta(t, 0.8133, JaroWinkler("DIXON", "DICKSONX"), 1e-4)
}

func TestJaroWinkler_Symmetric(t *testing.T) {
	pairs := [][2]string{{"BEZERRA", "BEZERA"}, {"FIGUEIREDO", "FIGUEREDO"}, {"MAIA", "MAYA"}}
	for _, p := range pairs {
		assert.InDelta(t, JaroWinkler(p[0], p[1]), JaroWinkler(p[1], p[0]), 1e-12)
	}
}
