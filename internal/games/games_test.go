package games

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGameFits(t *testing.T) {
	g := Game{Code: "estatebuyer", MinPlayers: 2, MaxPlayers: 6}

	tcases := []struct {
		capacity int
		fits     bool
	}{
		{capacity: 1, fits: false},
		{capacity: 2, fits: true},
		{capacity: 6, fits: true},
		{capacity: 7, fits: false},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.fits, g.Fits(tc.capacity), "capacity %d", tc.capacity)
	}
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	chess, ok := c.Get("chess")
	assert.True(t, ok, "expected chess in the default catalog")
	assert.Equal(t, 2, chess.MinPlayers)
	assert.Equal(t, 2, chess.MaxPlayers)

	_, ok = c.Get("does-not-exist")
	assert.False(t, ok)

	list := c.List()
	assert.NotEmpty(t, list)
	list[0].Code = "mutated"
	_, ok = c.Get("mutated")
	assert.False(t, ok, "List must return a copy")
}
