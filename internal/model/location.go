package model

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Coordinates is a WGS84 point
type Coordinates struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// DirectionalHints describes what lies on each side of a location
type DirectionalHints struct {
	Front string `json:"front,omitempty"`
	Back  string `json:"back,omitempty"`
	Left  string `json:"left,omitempty"`
	Right string `json:"right,omitempty"`
}

// LocationRecord represents one navigable campus place
type LocationRecord struct {
	Name                     string           `json:"name"`
	Category                 string           `json:"category"`
	Description              string           `json:"description"`
	NeighboringLocationNames []string         `json:"neighboringLocationNames"`
	DirectionalHints         DirectionalHints `json:"directionalHints"`
	VoiceHint                string           `json:"voiceHint,omitempty"`
	NearbyLandmarks          []string         `json:"nearbyLandmarks,omitempty"`
	AccessibilityNotes       StringList       `json:"accessibilityNotes,omitempty"`
	Coordinates              *Coordinates     `json:"coordinates,omitempty"`
}

// StringList decodes either a single string or a list of strings
type StringList []string

// UnmarshalJSON implements json.Unmarshaler
func (s *StringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	if single == "" {
		*s = nil
		return nil
	}
	*s = StringList{single}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
	case yaml.ScalarNode:
		if node.Value != "" {
			*s = StringList{node.Value}
		}
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
	return nil
}
