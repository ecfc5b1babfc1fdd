// Package games holds the catalog of games a room can be created for.
//
// The built-in catalog lives in catalog_gen.go and is regenerated from the
// definitions under defs/ with cmd/codegen.
package games

//go:generate go run ../../cmd/codegen

type Game struct {
	Code       string `yaml:"code"`
	Name       string `yaml:"name"`
	MinPlayers int    `yaml:"minPlayers"`
	MaxPlayers int    `yaml:"maxPlayers"`
}

// Fits reports whether a room of the given capacity can play the game.
func (g Game) Fits(capacity int) bool {
	return capacity >= g.MinPlayers && capacity <= g.MaxPlayers
}

type Catalog struct {
	games  []Game
	byCode map[string]Game
}

func NewCatalog(games []Game) *Catalog {
	c := &Catalog{
		games:  make([]Game, len(games)),
		byCode: make(map[string]Game, len(games)),
	}
	copy(c.games, games)
	for _, g := range games {
		c.byCode[g.Code] = g
	}
	return c
}

// Default returns the generated built-in catalog.
func Default() *Catalog {
	return NewCatalog(generatedGames)
}

func (c *Catalog) Get(code string) (Game, bool) {
	g, ok := c.byCode[code]
	return g, ok
}

func (c *Catalog) List() []Game {
	out := make([]Game, len(c.games))
	copy(out, c.games)
	return out
}
