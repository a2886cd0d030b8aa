package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalEntity_Aliases(t *testing.T) {
	e := CanonicalEntity{Identifier: FullIdentifier("52998224725")}
	seq := SequentialIdentifier("tse", "10001")

	assert.True(t, e.HasAlias(FullIdentifier("52998224725")))
	assert.False(t, e.HasAlias(seq))
	assert.False(t, e.HasAlias(Identifier{}))

	e.AddAlias(seq)
	e.AddAlias(seq)
	e.AddAlias(FullIdentifier("52998224725"))
	e.AddAlias(Identifier{})

	assert.Equal(t, []Identifier{seq}, e.Aliases)
	assert.True(t, e.HasAlias(seq))
}

func TestSnapshot_SetPart(t *testing.T) {
	var s Snapshot

	s.SetPart("1", 100000)
	s.SetPart("2", 50000.5)
	assert.InDelta(t, 150000.5, s.DeclaredValue, 1e-9)

	s.SetPart("1", 20000)
	assert.InDelta(t, 70000.5, s.DeclaredValue, 1e-9)
	assert.Len(t, s.Parts, 2)
}
