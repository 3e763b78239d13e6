// Package launchconfig reads the Go launch configurations of a VS Code
// launch.json file and turns them into Delve launch arguments.
package launchconfig

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string               `json:"version"`
	Configurations []DebugConfiguration `json:"configurations"`
}

// DebugConfiguration represents a single debug configuration in launch.json.
// Only the fields Delve understands for a launch request are kept.
type DebugConfiguration struct {
	Type    string `json:"type"`    // "go"
	Request string `json:"request"` // "launch"
	Name    string `json:"name"`

	Program     string            `json:"program,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`

	// Delve specific
	Mode       string `json:"mode,omitempty"`
	BuildFlags string `json:"buildFlags,omitempty"`
}

// ResolutionContext provides the values ${...} variables are replaced with.
type ResolutionContext struct {
	WorkspaceFolder string            // Root folder of the workspace
	CurrentFile     string            // For ${file} variables
	EnvOverrides    map[string]string // Takes precedence over the process environment
}

// IsLaunchRequest reports whether the configuration launches a program.
func (c *DebugConfiguration) IsLaunchRequest() bool {
	return c.Request == "launch"
}

// IsGo reports whether the configuration targets the Go debugger.
func (c *DebugConfiguration) IsGo() bool {
	return c.Type == "go"
}
