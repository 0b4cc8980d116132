package player

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/waypointgames/waypoint/pkg/engine"
	"github.com/waypointgames/waypoint/pkg/geo"
	"github.com/waypointgames/waypoint/pkg/page"
	"github.com/waypointgames/waypoint/pkg/session"
)

const defaultMaxSteps = 1000

// Script describes a scripted play-through: which game to play and the
// input to give each page.
type Script struct {
	Game    string `yaml:"game"`
	Chapter string `yaml:"chapter"`
	// Replay supersedes the current session and starts over.
	Replay bool `yaml:"replay"`
	// Position is the simulated device position used by GPS pages that
	// have no position of their own.
	Position *geo.Coordinate `yaml:"position"`
	// MaxSteps bounds the number of pages played.
	MaxSteps int `yaml:"max_steps"`
	// Inputs maps page ids to the input given on that page. Pages without
	// an entry get the zero input.
	Inputs map[string]page.Input `yaml:"inputs"`
}

// LoadScript reads a script file.
func LoadScript(path string) (*Script, error) {
	// #nosec G304 -- path is from CLI args
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	return ParseScript(data)
}

// ParseScript parses and validates a YAML script.
func ParseScript(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	if s.Game == "" {
		return nil, errors.New("script: game is required")
	}
	if s.Position != nil {
		if err := geo.ValidateCoordinate(*s.Position); err != nil {
			return nil, fmt.Errorf("script position: %w", err)
		}
	}
	if s.MaxSteps <= 0 {
		s.MaxSteps = defaultMaxSteps
	}
	return &s, nil
}

// Options returns the engine options for the script. The user comes from
// the credentials, not the script.
func (s *Script) Options() engine.Options {
	return engine.Options{
		Key:      session.Key{GameID: s.Game, ChapterID: s.Chapter},
		ForceNew: s.Replay,
	}
}
