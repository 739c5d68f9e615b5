package ids

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7_Generate(t *testing.T) {
	g := UUIDv7{}
	a := g.Generate()
	b := g.Generate()

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestFixed_TokensThenSequence(t *testing.T) {
	g := NewFixed("sub", "first", "second")

	assert.Equal(t, "first", g.Generate())
	assert.Equal(t, "second", g.Generate())
	assert.Equal(t, "sub-3", g.Generate())
	assert.Equal(t, "sub-4", g.Generate())
}

func TestFixed_NoTokens(t *testing.T) {
	g := NewFixed("n")
	assert.Equal(t, "n-1", g.Generate())
	assert.Equal(t, "n-10", func() string {
		for i := 0; i < 8; i++ {
			g.Generate()
		}
		return g.Generate()
	}())
}
