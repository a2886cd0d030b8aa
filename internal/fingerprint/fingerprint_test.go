package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sentinela/internal/core/domain"
)

func TestRecord_IgnoresFieldOrder(t *testing.T) {
	a := domain.Payload{{Name: "nome", Value: "ANA"}, {Name: "valor", Value: "10,00"}}
	b := domain.Payload{{Name: "valor", Value: "10,00"}, {Name: "nome", Value: "ANA"}}

	ha, err := Record(a)
	require.NoError(t, err)
	hb, err := Record(b)
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Len(t, ha, 64)
}

func TestRecord_IgnoresSurroundingWhitespace(t *testing.T) {
	ha, err := Record(domain.Payload{{Name: "nome", Value: " ANA "}})
	require.NoError(t, err)
	hb, err := Record(domain.Payload{{Name: "nome", Value: "ANA"}})
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestRecord_DiffersOnValue(t *testing.T) {
	ha, _ := Record(domain.Payload{{Name: "valor", Value: "10,00"}})
	hb, _ := Record(domain.Payload{{Name: "valor", Value: "10,01"}})
	assert.NotEqual(t, ha, hb)
}

func TestCanonical_SortsKeys(t *testing.T) {
	out, err := Canonical(map[string]any{"b": 1, "a": "<x>"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":1}`, string(out))
}

func TestOf_OrderMatters(t *testing.T) {
	assert.Equal(t, Of("a", "b"), Of("a", "b"))
	assert.NotEqual(t, Of("a", "b"), Of("b", "a"))
	assert.NotEqual(t, Of("ab"), Of("a", "b"))
}
