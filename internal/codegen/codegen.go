// Package codegen regenerates the built-in game catalog from the game
// definitions checked into internal/games/defs.
package codegen

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"

	"github.com/freeboardgames/fbg-lobby/internal/games"
	"gopkg.in/yaml.v3"
)

const (
	DefsDir    = "internal/games/defs"
	OutputFile = "internal/games/catalog_gen.go"

	gameFile   = "game.yaml"
	configFile = "config.json"
	unordered  = 9999
)

var ErrGameNotFound = errors.New("game not found")

// MissingGameError names the requested game whose directory is absent.
type MissingGameError struct {
	Game string
}

func (e *MissingGameError) Error() string {
	return e.Game + ": Game not found."
}

func (e *MissingGameError) Unwrap() error {
	return ErrGameNotFound
}

var catalogTmpl = template.Must(template.New("catalog").Parse(`// Code generated by cmd/codegen. DO NOT EDIT.

package games

var generatedGames = []Game{
{{- range . }}
	{Code: {{ printf "%q" .Code }}, Name: {{ printf "%q" .Name }}, MinPlayers: {{ .MinPlayers }}, MaxPlayers: {{ .MaxPlayers }}},
{{- end }}
}
`))

type config struct {
	Order []string `json:"order"`
}

// DecodeCsv splits a comma-separated list of game codes.
func DecodeCsv(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FindRoot walks up from dir until it finds the directory holding go.mod.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}

// Generate writes the catalog for the named games, or for every game
// directory when names is empty, and returns the games written in order.
func Generate(root string, names []string) ([]games.Game, error) {
	defs := filepath.Join(root, DefsDir)

	for _, name := range names {
		if !dirExists(filepath.Join(defs, name)) {
			return nil, &MissingGameError{Game: name}
		}
	}

	if len(names) == 0 {
		all, err := listGames(defs)
		if err != nil {
			return nil, err
		}
		names = all
	}

	ordered, err := orderGames(defs, names)
	if err != nil {
		return nil, err
	}

	catalog := make([]games.Game, 0, len(ordered))
	for _, name := range ordered {
		g, err := readGame(filepath.Join(defs, name))
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, g)
	}

	src, err := Render(catalog)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(root, OutputFile), src, 0o644); err != nil {
		return nil, fmt.Errorf("write catalog: %w", err)
	}

	return catalog, nil
}

// Render produces the gofmt'ed catalog source.
func Render(catalog []games.Game) ([]byte, error) {
	var buf bytes.Buffer
	if err := catalogTmpl.Execute(&buf, catalog); err != nil {
		return nil, fmt.Errorf("render catalog: %w", err)
	}

	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format catalog: %w", err)
	}

	return src, nil
}

func listGames(defs string) ([]string, error) {
	entries, err := os.ReadDir(defs)
	if err != nil {
		return nil, fmt.Errorf("read games dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// orderGames sorts games by their index in config.json; games missing from
// the order list go last, by name.
func orderGames(defs string, names []string) ([]string, error) {
	raw, err := os.ReadFile(filepath.Join(defs, configFile))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	rank := func(name string) int {
		if i := slices.Index(cfg.Order, name); i >= 0 {
			return i
		}
		return unordered
	}

	out := slices.Clone(names)
	slices.SortStableFunc(out, func(a, b string) int {
		if d := rank(a) - rank(b); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})

	return out, nil
}

func readGame(dir string) (games.Game, error) {
	raw, err := os.ReadFile(filepath.Join(dir, gameFile))
	if err != nil {
		return games.Game{}, fmt.Errorf("read game: %w", err)
	}

	var g games.Game
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return games.Game{}, fmt.Errorf("parse %s: %w", dir, err)
	}

	if g.Code == "" {
		g.Code = filepath.Base(dir)
	}
	if g.Name == "" {
		g.Name = g.Code
	}
	if g.MinPlayers < 1 || g.MaxPlayers < g.MinPlayers {
		return games.Game{}, fmt.Errorf("%s: invalid player bounds %d..%d", g.Code, g.MinPlayers, g.MaxPlayers)
	}

	return g, nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
