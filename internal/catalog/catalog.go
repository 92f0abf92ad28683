// Package catalog holds the exercises the coach can open. The catalog is
// read-only once built and safe for concurrent use.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrDuplicateID = errors.New("duplicate exercise id")

type Exercise struct {
	ID           string   `yaml:"id" json:"id"`
	Title        string   `yaml:"title" json:"title"`
	Description  string   `yaml:"description" json:"description"`
	Duration     string   `yaml:"duration" json:"duration"`
	Intensity    string   `yaml:"intensity" json:"intensity"`
	Category     string   `yaml:"category" json:"category"`
	VideoURL     string   `yaml:"video_url" json:"videoUrl"`
	ThumbnailURL string   `yaml:"thumbnail_url" json:"thumbnailUrl"`
	Steps        []string `yaml:"steps" json:"steps"`
}

type Catalog struct {
	exercises []Exercise
	byID      map[string]int
}

// New builds a catalog preserving the given order.
func New(exercises []Exercise) (*Catalog, error) {
	c := &Catalog{
		exercises: make([]Exercise, 0, len(exercises)),
		byID:      make(map[string]int, len(exercises)),
	}
	for _, ex := range exercises {
		ex.ID = strings.TrimSpace(ex.ID)
		if ex.ID == "" {
			return nil, fmt.Errorf("exercise %q: missing id", ex.Title)
		}
		if _, ok := c.byID[ex.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, ex.ID)
		}
		if ex.Title == "" {
			ex.Title = ex.ID
		}
		c.byID[ex.ID] = len(c.exercises)
		c.exercises = append(c.exercises, ex)
	}
	return c, nil
}

// LoadFile reads a YAML catalog of the form `exercises: [...]`.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var file struct {
		Exercises []Exercise `yaml:"exercises"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Exercises) == 0 {
		return nil, fmt.Errorf("parse catalog: %s has no exercises", path)
	}
	return New(file.Exercises)
}

func (c *Catalog) Get(id string) (Exercise, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Exercise{}, false
	}
	return c.exercises[i], true
}

// IDs returns exercise ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.exercises))
	for i, ex := range c.exercises {
		ids[i] = ex.ID
	}
	return ids
}

func (c *Catalog) All() []Exercise {
	out := make([]Exercise, len(c.exercises))
	copy(out, c.exercises)
	return out
}

func (c *Catalog) Len() int { return len(c.exercises) }
