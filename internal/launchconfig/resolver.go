package launchconfig

import (
	"fmt"
)

// ResolveConfiguration returns a copy of cfg with all variables resolved.
func ResolveConfiguration(cfg *DebugConfiguration, ctx *ResolutionContext) (*DebugConfiguration, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if ctx == nil {
		ctx = &ResolutionContext{}
	}

	resolved := *cfg
	var err error

	for _, f := range []struct {
		name string
		ptr  *string
	}{
		{"program", &resolved.Program},
		{"cwd", &resolved.Cwd},
		{"buildFlags", &resolved.BuildFlags},
	} {
		if *f.ptr, err = ResolveVariables(*f.ptr, ctx); err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f.name, err)
		}
	}

	if resolved.Args, err = ResolveStringSlice(cfg.Args, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve args: %w", err)
	}
	if resolved.Env, err = ResolveStringMap(cfg.Env, ctx); err != nil {
		return nil, fmt.Errorf("failed to resolve env: %w", err)
	}

	return &resolved, nil
}

// ToLaunchArgs converts a resolved configuration to the arguments of a Delve
// launch request.
func (c *DebugConfiguration) ToLaunchArgs() map[string]interface{} {
	args := map[string]interface{}{
		"name":        c.Name,
		"stopOnEntry": c.StopOnEntry,
	}

	mode := c.Mode
	if mode == "" || mode == "auto" {
		mode = "debug"
	}
	args["mode"] = mode

	if c.Program != "" {
		args["program"] = c.Program
	}
	if len(c.Args) > 0 {
		args["args"] = c.Args
	}
	if c.Cwd != "" {
		args["cwd"] = c.Cwd
	}
	if c.Env != nil {
		args["env"] = c.Env
	}
	if c.BuildFlags != "" {
		args["buildFlags"] = c.BuildFlags
	}
	return args
}
