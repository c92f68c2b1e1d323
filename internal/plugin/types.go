// Package plugin runs external programs when a bound hand sign appears.
package plugin

import (
	"encoding/json"
	"time"
)

// ManifestFile is the file name of a plugin manifest inside its directory.
const ManifestFile = "plugin.json"

// Manifest describes a plugin's metadata and capabilities.
type Manifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Executable  string   `json:"executable"`
	Actions     []string `json:"actions"`
}

// DefaultAction returns the first declared action, or "trigger".
func (m Manifest) DefaultAction() string {
	if len(m.Actions) > 0 {
		return m.Actions[0]
	}
	return "trigger"
}

// Request is written as JSON to the plugin's stdin.
type Request struct {
	Action     string          `json:"action"`
	Sign       string          `json:"sign"`
	Handedness string          `json:"handedness,omitempty"`
	Distance   float64         `json:"distance"`
	Timestamp  time.Time       `json:"timestamp"`
	Params     json.RawMessage `json:"params,omitempty"`
}

// Response is read as JSON from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
