package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dora/internal/model"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

const locationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["node", "category", "describe"],
    "properties": {
      "node":             {"type": "string", "minLength": 1},
      "category":         {"type": "string"},
      "describe":         {"type": "string"},
      "connections":      {"type": "array", "items": {"type": "string"}},
      "front":            {"type": "string"},
      "back":             {"type": "string"},
      "left":             {"type": "string"},
      "right":            {"type": "string"},
      "voice_hint":       {"type": "string"},
      "landmarks_nearby": {"type": "array", "items": {"type": "string"}},
      "accessibility": {
        "oneOf": [
          {"type": "string"},
          {"type": "array", "items": {"type": "string"}}
        ]
      },
      "coords": {
        "type": "object",
        "required": ["lat", "lng"],
        "properties": {
          "lat": {"type": "number"},
          "lng": {"type": "number"}
        }
      }
    }
  }
}`

const eventSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["title", "date", "category"],
    "properties": {
      "title":       {"type": "string", "minLength": 1},
      "date":        {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
      "category":    {"type": "string"},
      "location":    {"type": "string"},
      "organizer":   {"type": "string"},
      "contact":     {"type": "string"},
      "description": {"type": "string"}
    }
  }
}`

// locationEntry is the on-disk shape of a campus location
type locationEntry struct {
	Node            string             `json:"node"`
	Category        string             `json:"category"`
	Describe        string             `json:"describe"`
	Connections     []string           `json:"connections"`
	Front           string             `json:"front"`
	Back            string             `json:"back"`
	Left            string             `json:"left"`
	Right           string             `json:"right"`
	VoiceHint       string             `json:"voice_hint"`
	LandmarksNearby []string           `json:"landmarks_nearby"`
	Accessibility   model.StringList   `json:"accessibility"`
	Coords          *model.Coordinates `json:"coords"`
}

func (e locationEntry) toRecord() model.LocationRecord {
	return model.LocationRecord{
		Name:                     strings.TrimSpace(e.Node),
		Category:                 e.Category,
		Description:              e.Describe,
		NeighboringLocationNames: e.Connections,
		DirectionalHints: model.DirectionalHints{
			Front: e.Front,
			Back:  e.Back,
			Left:  e.Left,
			Right: e.Right,
		},
		VoiceHint:          e.VoiceHint,
		NearbyLandmarks:    e.LandmarksNearby,
		AccessibilityNotes: e.Accessibility,
		Coordinates:        e.Coords,
	}
}

// DatasetRepository reads the static campus datasets from disk. Files ending
// in .yaml or .yml are parsed as YAML, everything else as JSON. Both are
// validated against a JSON schema before decoding.
type DatasetRepository struct {
	locationsPath  string
	eventsPath     string
	locationSchema *gojsonschema.Schema
	eventSchema    *gojsonschema.Schema
}

// NewDatasetRepository creates a dataset reader for the given files
func NewDatasetRepository(locationsPath, eventsPath string) (*DatasetRepository, error) {
	ls, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(locationSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile location schema: %w", err)
	}
	es, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile event schema: %w", err)
	}
	return &DatasetRepository{
		locationsPath:  locationsPath,
		eventsPath:     eventsPath,
		locationSchema: ls,
		eventSchema:    es,
	}, nil
}

// LoadLocations reads, validates and decodes the location dataset. Any
// failure wraps model.ErrDataUnavailable.
func (r *DatasetRepository) LoadLocations(ctx context.Context) ([]model.LocationRecord, error) {
	raw, err := r.readValidated(ctx, r.locationsPath, r.locationSchema)
	if err != nil {
		return nil, err
	}

	var entries []locationEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", model.ErrDataUnavailable, r.locationsPath, err)
	}

	records := make([]model.LocationRecord, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		rec := e.toRecord()
		if rec.Name == "" {
			return nil, fmt.Errorf("%w: %s: location %d has an empty name", model.ErrDataUnavailable, r.locationsPath, i)
		}
		key := strings.ToLower(rec.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate location name %q", model.ErrDataUnavailable, r.locationsPath, rec.Name)
		}
		seen[key] = struct{}{}
		records = append(records, rec)
	}
	return records, nil
}

// LoadEvents reads, validates and decodes the event catalog. An unset path
// yields an empty catalog.
func (r *DatasetRepository) LoadEvents(ctx context.Context) ([]model.Event, error) {
	if r.eventsPath == "" {
		return nil, nil
	}
	raw, err := r.readValidated(ctx, r.eventsPath, r.eventSchema)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", model.ErrDataUnavailable, r.eventsPath, err)
	}
	return events, nil
}

// readValidated returns the dataset as JSON bytes after schema validation
func (r *DatasetRepository) readValidated(ctx context.Context, path string, schema *gojsonschema.Schema) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrDataUnavailable, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %v", model.ErrDataUnavailable, path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return nil, fmt.Errorf("%w: convert %s: %v", model.ErrDataUnavailable, path, err)
		}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", model.ErrDataUnavailable, path, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("%w: %s failed validation: %s", model.ErrDataUnavailable, path, strings.Join(msgs, "; "))
	}
	return data, nil
}
