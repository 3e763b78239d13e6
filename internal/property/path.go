package property

import (
	"strings"

	"github.com/ctagard/dbgpd/internal/errors"
)

var keyReplacer = strings.NewReplacer(
	"['", ".",
	"']", ".",
	`["`, ".",
	`"]`, ".",
	"[", ".",
	"]", ".",
	"->", ".",
)

// Keys splits a property expression such as $x['a']->b into its key path.
func Keys(expr string) []string {
	parts := strings.Split(keyReplacer.Replace(strings.TrimPrefix(expr, "$")), ".")
	keys := parts[:0]
	for _, p := range parts {
		if p != "" {
			keys = append(keys, p)
		}
	}
	return keys
}

// Resolved is the outcome of a successful path lookup.
type Resolved struct {
	Value Value

	// Path is the expression with its leading sigil stripped.
	Path string

	// ChildPattern names the children of Value.
	ChildPattern string
}

// Resolve walks vars along expr. Any missing key fails the whole lookup with
// a PATH_NOT_FOUND error; no partial result is returned.
func Resolve(vars Value, expr string) (*Resolved, error) {
	cur := vars
	for _, key := range Keys(expr) {
		next, ok := cur.Child(key)
		if !ok {
			return nil, errors.PathNotFound(expr, key)
		}
		cur = next
	}
	cur = cur.Expanded()

	path := strings.TrimPrefix(expr, "$")
	pattern := path + "->%s"
	if cur.Indexable() {
		pattern = path + "['%s']"
	}

	return &Resolved{Value: cur, Path: path, ChildPattern: pattern}, nil
}

// Lookup resolves expr and serializes the result as a path-scoped tree.
func Lookup(vars Value, expr string) (Node, error) {
	r, err := Resolve(vars, expr)
	if err != nil {
		return Node{}, err
	}
	return SerializePath(r.Value, r.ChildPattern, r.Path), nil
}
