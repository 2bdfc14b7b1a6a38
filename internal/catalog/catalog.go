// Package catalog loads tutorial and scenario definitions from YAML.
package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/plant-trainer/internal/scenario"
	"github.com/signalsfoundry/plant-trainer/internal/tutorial"
)

//go:embed defaults/*.yaml
var defaults embed.FS

const (
	tutorialsFile = "tutorials.yaml"
	scenariosFile = "scenarios.yaml"
)

// Catalog is the full set of definitions offered to trainees.
type Catalog struct {
	Tutorials []tutorial.Definition `yaml:"tutorials"`
	Scenarios []scenario.Definition `yaml:"scenarios"`
}

// Default returns the embedded catalog.
func Default() (Catalog, error) {
	sub, err := fs.Sub(defaults, "defaults")
	if err != nil {
		return Catalog{}, err
	}
	return LoadFS(sub)
}

// Load reads tutorials.yaml and scenarios.yaml from dir. An empty dir
// selects the embedded catalog; a missing file leaves that half empty.
func Load(dir string) (Catalog, error) {
	if dir == "" {
		return Default()
	}
	return LoadFS(os.DirFS(filepath.Clean(dir)))
}

// LoadFS reads the catalog files from fsys.
func LoadFS(fsys fs.FS) (Catalog, error) {
	var c Catalog
	var tut struct {
		Tutorials []tutorial.Definition `yaml:"tutorials"`
	}
	if err := decode(fsys, tutorialsFile, &tut); err != nil {
		return Catalog{}, err
	}
	var scn struct {
		Scenarios []scenario.Definition `yaml:"scenarios"`
	}
	if err := decode(fsys, scenariosFile, &scn); err != nil {
		return Catalog{}, err
	}
	c.Tutorials = tut.Tutorials
	c.Scenarios = scn.Scenarios
	return c, nil
}

func decode(fsys fs.FS, name string, out any) error {
	data, err := fs.ReadFile(fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("catalog: read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("catalog: parse %s: %w", name, err)
	}
	return nil
}

// Entry is one selection card in the combined listing.
type Entry struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Count is the step count for tutorials and the feature count for scenarios.
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty,omitempty"`
}

// Entries lists tutorials then scenarios in file order.
func (c Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.Tutorials)+len(c.Scenarios))
	for _, t := range c.Tutorials {
		s := t.Summary()
		out = append(out, Entry{Kind: "tutorial", ID: s.ID, Title: s.Title, Description: s.Description, Count: s.StepCount})
	}
	for _, d := range c.Scenarios {
		s := d.Summary()
		out = append(out, Entry{
			Kind:        "scenario",
			ID:          s.ID,
			Title:       s.Title,
			Description: s.Description,
			Count:       s.FeatureCount,
			Difficulty:  string(s.Difficulty),
		})
	}
	return out
}
