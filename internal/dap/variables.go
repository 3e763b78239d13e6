package dap

import (
	"log/slog"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/go-dap"

	"github.com/ctagard/dbgpd/internal/property"
)

// variableSource fetches the children of a variable reference.
type variableSource interface {
	Variables(variablesRef int) ([]dap.Variable, error)
}

// converter turns DAP variables into property values, following variable
// references up to a depth limit.
type converter struct {
	session  variableSource
	logger   *slog.Logger
	maxDepth int
}

var intTypes = map[string]bool{
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "byte": true, "rune": true,
}

// value converts v. depth is how many levels of children may still be
// fetched; containers beyond it are deferred.
func (c converter) value(v dap.Variable, depth int) property.Value {
	typ := v.Type

	switch {
	case v.Value == "nil" || strings.HasSuffix(v.Value, " nil"):
		return property.Null()
	case typ == "bool":
		return property.Bool(v.Value == "true")
	case intTypes[typ]:
		if i, err := strconv.ParseInt(firstField(v.Value), 0, 64); err == nil {
			return property.Int(i)
		}
		if u, err := strconv.ParseUint(firstField(v.Value), 0, 64); err == nil {
			return property.Uint(u)
		}
	case typ == "float32" || typ == "float64":
		if f, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return property.Float(f)
		}
	case typ == "string":
		if s, err := strconv.Unquote(v.Value); err == nil {
			return property.String(s)
		}
		return property.String(v.Value)
	}

	if v.VariablesReference == 0 {
		return property.String(v.Value)
	}
	if depth <= 0 {
		return c.deferred(v)
	}

	children := c.children(v, depth)
	kind, class := containerKind(typ)
	switch {
	case kind == property.KindSequence:
		items := make([]property.Value, 0, len(children))
		for _, m := range children {
			items = append(items, m.Value)
		}
		return property.Sequence(items...)
	case kind == property.KindMap:
		return property.Map(children...)
	case strings.HasPrefix(typ, "*") && len(children) == 1:
		// Pointers expose their target as the only child.
		return children[0].Value
	}
	for i := range children {
		children[i].Hidden = !exported(children[i].Key)
	}
	return property.Object(class, children...)
}

// deferred converts a container past the depth limit. Only its children are
// counted; they are converted with a fresh depth budget when a lookup walks
// into it.
func (c converter) deferred(v dap.Variable) property.Value {
	load := func() property.Value { return c.value(v, max(c.maxDepth, 1)) }
	kind, class := containerKind(v.Type)

	if kind != property.KindObject {
		if n := v.IndexedVariables + v.NamedVariables; n > 0 {
			return property.Deferred(kind, class, n, load)
		}
	}

	vars, err := c.session.Variables(v.VariablesReference)
	if err != nil {
		c.logger.Debug("failed to count children", "name", v.Name, "err", err)
		return property.Deferred(kind, class, 0, load)
	}
	if strings.HasPrefix(v.Type, "*") && len(vars) == 1 {
		if vars[0].VariablesReference == 0 {
			return c.value(vars[0], 0)
		}
		return c.deferred(vars[0])
	}

	n := 0
	for _, child := range vars {
		if kind != property.KindObject || exported(memberName(child.Name)) {
			n++
		}
	}
	return property.Deferred(kind, class, n, load)
}

func (c converter) children(v dap.Variable, depth int) []property.Member {
	vars, err := c.session.Variables(v.VariablesReference)
	if err != nil {
		c.logger.Debug("failed to expand variable", "name", v.Name, "err", err)
		return nil
	}

	members := make([]property.Member, 0, len(vars))
	for _, child := range vars {
		name := memberName(child.Name)
		members = append(members, property.Entry(name, c.value(child, depth-1)))
	}
	return members
}

// containerKind classifies a Go type name with children.
func containerKind(typ string) (property.Kind, string) {
	switch {
	case strings.HasPrefix(typ, "["):
		return property.KindSequence, ""
	case strings.HasPrefix(typ, "map["):
		return property.KindMap, ""
	}
	return property.KindObject, strings.TrimPrefix(typ, "*")
}

// memberName strips the decoration Delve puts on element and key names:
// [0] becomes 0 and a quoted map key is unquoted.
func memberName(name string) string {
	if strings.HasPrefix(name, "[") && strings.HasSuffix(name, "]") {
		name = name[1 : len(name)-1]
	}
	if s, err := strconv.Unquote(name); err == nil {
		return s
	}
	return name
}

// exported reports whether a struct field is accessible from outside its
// package.
func exported(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return !unicode.IsLower(r) && r != '_'
}

// firstField drops annotations such as the character Delve prints after a
// rune value.
func firstField(s string) string {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return s[:i]
	}
	return s
}
