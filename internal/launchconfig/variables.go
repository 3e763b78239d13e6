package launchconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// variablePattern matches ${...} variable references.
var variablePattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables replaces all ${...} variables in text.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	var firstErr error
	result := variablePattern.ReplaceAllStringFunc(text, func(match string) string {
		if firstErr != nil {
			return match
		}
		expr := match[2 : len(match)-1]
		val, err := resolveVariable(expr, ctx)
		if err != nil {
			firstErr = err
			return match
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

func resolveVariable(expr string, ctx *ResolutionContext) (string, error) {
	switch expr {
	case "workspaceFolder", "workspaceRoot":
		if ctx.WorkspaceFolder == "" {
			return "", fmt.Errorf("${%s} is not available", expr)
		}
		return ctx.WorkspaceFolder, nil

	case "workspaceFolderBasename":
		if ctx.WorkspaceFolder == "" {
			return "", fmt.Errorf("${%s} is not available", expr)
		}
		return filepath.Base(ctx.WorkspaceFolder), nil

	case "file":
		return requireFile(expr, ctx, func(f string) string { return f })

	case "fileBasename":
		return requireFile(expr, ctx, filepath.Base)

	case "fileBasenameNoExtension":
		return requireFile(expr, ctx, func(f string) string {
			base := filepath.Base(f)
			return strings.TrimSuffix(base, filepath.Ext(base))
		})

	case "fileDirname":
		return requireFile(expr, ctx, filepath.Dir)

	case "fileExtname":
		return requireFile(expr, ctx, filepath.Ext)

	case "relativeFile":
		return requireFile(expr, ctx, func(f string) string {
			if ctx.WorkspaceFolder == "" {
				return f
			}
			if rel, err := filepath.Rel(ctx.WorkspaceFolder, f); err == nil {
				return rel
			}
			return f
		})

	case "cwd":
		return os.Getwd()

	case "userHome":
		return os.UserHomeDir()

	case "pathSeparator", "/":
		return string(filepath.Separator), nil
	}

	if name, ok := strings.CutPrefix(expr, "env:"); ok {
		if val, ok := ctx.EnvOverrides[name]; ok {
			return val, nil
		}
		return os.Getenv(name), nil
	}

	return "", fmt.Errorf("unknown variable: ${%s}", expr)
}

func requireFile(expr string, ctx *ResolutionContext, f func(string) string) (string, error) {
	if ctx.CurrentFile == "" {
		return "", fmt.Errorf("${%s} requires a current file", expr)
	}
	return f(ctx.CurrentFile), nil
}

// ResolveStringSlice resolves variables in all strings in a slice.
func ResolveStringSlice(values []string, ctx *ResolutionContext) ([]string, error) {
	if values == nil {
		return nil, nil
	}
	result := make([]string, len(values))
	for i, v := range values {
		resolved, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve element %d: %w", i, err)
		}
		result[i] = resolved
	}
	return result, nil
}

// ResolveStringMap resolves variables in all values (not keys) of a string map.
func ResolveStringMap(values map[string]string, ctx *ResolutionContext) (map[string]string, error) {
	if values == nil {
		return nil, nil
	}
	result := make(map[string]string, len(values))
	for k, v := range values {
		resolved, err := ResolveVariables(v, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve value for key %q: %w", k, err)
		}
		result[k] = resolved
	}
	return result, nil
}
