package storage

import (
	"compress/gzip"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	jsoniter "github.com/json-iterator/go"

	"github.com/looploom/looploom/internal/grid"
	"github.com/looploom/looploom/internal/layer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const dataFile = "data.json.gz"

// State is the plain structured shape handed to persistence: the layers,
// the grid, and the tempo. No behavior crosses this boundary.
type State struct {
	BPM    float64        `json:"bpm"`
	Layers []*layer.Layer `json:"layers"`
	Grid   *grid.Pattern  `json:"grid"`
}

// Store saves and loads project state under one directory.
type Store struct {
	dir       string
	debounced func(func())
}

func New(dir string) *Store {
	return &Store{
		dir:       dir,
		debounced: debounce.New(2 * time.Second),
	}
}

// Save writes the state as gzipped JSON, creating the project directory
// if needed.
func (s *Store) Save(st *State) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create project dir: %w", err)
	}
	path := filepath.Join(s.dir, dataFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(st); err != nil {
		gz.Close()
		return fmt.Errorf("encode state: %w", err)
	}
	return gz.Close()
}

// Load reads a previously saved state.
func (s *Store) Load() (*State, error) {
	path := filepath.Join(s.dir, dataFile)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip %s: %w", path, err)
	}
	defer gz.Close()

	var st State
	if err := json.NewDecoder(gz).Decode(&st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	return &st, nil
}

// AutoSave schedules a debounced save. Rapid edits collapse into a single
// write two seconds after the last one.
func (s *Store) AutoSave(snapshot func() *State) {
	s.debounced(func() {
		if err := s.Save(snapshot()); err != nil {
			log.Printf("storage: autosave failed: %v", err)
		}
	})
}
