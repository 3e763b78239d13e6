package property

import (
	"encoding/base64"
	"strconv"
	"strings"
)

// TopLevelPattern names context variables: "$" followed by the key.
const TopLevelPattern = "$%s"

// EncodingBase64 marks a base64 encoded value.
const EncodingBase64 = "base64"

// Node is one element of a property tree.
type Node struct {
	Name     string
	FullName string
	Type     string

	// ClassName is set for objects.
	ClassName string

	// Encoding and Size are set for strings; Size is the decoded byte length.
	Encoding string
	Size     int

	// Value is the encoded value. HasValue is false for null and containers.
	Value    string
	HasValue bool

	HasChildren bool
	NumChildren int
	Children    []Node
}

// Serialize describes every child of a variable mapping, one level deep.
func Serialize(vars Value) []Node {
	return serializeChildren(vars, TopLevelPattern)
}

// SerializePath describes a resolved value under rootLabel. Containers get a
// root node whose children are named with pattern; scalars become a single
// leaf node.
func SerializePath(v Value, pattern, rootLabel string) Node {
	v = v.Expanded()
	if !v.IsContainer() {
		return leaf(rootLabel, rootLabel, v)
	}

	root := Node{
		Name:        rootLabel,
		FullName:    rootLabel,
		Type:        typeTag(v),
		ClassName:   v.Class,
		HasChildren: true,
		NumChildren: v.Len(),
	}
	root.Children = serializeChildren(v, pattern)
	return root
}

func serializeChildren(v Value, pattern string) []Node {
	v = v.Expanded()
	nodes := make([]Node, 0, v.Len())
	v.Each(func(key string, child Value) {
		nodes = append(nodes, leaf(key, applyPattern(pattern, key), child))
	})
	return nodes
}

func leaf(name, fullName string, v Value) Node {
	n := Node{
		Name:     name,
		FullName: fullName,
		Type:     typeTag(v),
	}

	switch v.Kind {
	case KindSequence, KindMap:
		n.HasChildren = true
		n.NumChildren = v.Len()
	case KindObject:
		n.HasChildren = true
		n.NumChildren = v.Len()
		n.ClassName = v.Class
	case KindBool:
		n.Value = "0"
		if v.Bool {
			n.Value = "1"
		}
		n.HasValue = true
	case KindInt:
		n.Value = v.Literal()
		n.HasValue = true
	case KindFloat:
		n.Value = strconv.FormatFloat(v.Float, 'g', -1, 64)
		n.HasValue = true
	case KindString:
		n.Size = len(v.Text)
		n.Encoding = EncodingBase64
		n.Value = base64.StdEncoding.EncodeToString([]byte(v.Text))
		n.HasValue = true
	}
	return n
}

// typeTag is the runtime type name lower-cased; booleans are always "bool".
func typeTag(v Value) string {
	if v.Kind == KindBool {
		return KindBool.String()
	}
	if v.TypeName != "" {
		return strings.ToLower(v.TypeName)
	}
	return v.Kind.String()
}

// applyPattern substitutes key for the single %s in pattern. Patterns are
// built from IDE supplied paths, so they are not run through fmt.
func applyPattern(pattern, key string) string {
	return strings.Replace(pattern, "%s", key, 1)
}
