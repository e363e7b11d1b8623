// Package plugin discovers and runs workflow plugins: executables that
// take a JSON request on stdin and answer with JSON on stdout.
package plugin

import "encoding/json"

// Manifest is a plugin's plugin.json.
type Manifest struct {
	Name         string          `json:"name" validate:"required"`
	Version      string          `json:"version"`
	Description  string          `json:"description"`
	Executable   string          `json:"executable" validate:"required"`
	Actions      []string        `json:"actions" validate:"min=1,dive,required"`
	ConfigSchema json.RawMessage `json:"configSchema,omitempty"`
}

// Person is the face in focus when a workflow fires.
type Person struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Summary  string `json:"summary,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// Request is sent to the plugin on stdin.
type Request struct {
	Action     string          `json:"action"`
	Trigger    string          `json:"trigger"`
	Command    string          `json:"command,omitempty"`
	Person     *Person         `json:"person,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Config     json.RawMessage `json:"config,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Supports reports whether the plugin declares action.
func (p *Plugin) Supports(action string) bool {
	for _, a := range p.Manifest.Actions {
		if a == action {
			return true
		}
	}
	return false
}
