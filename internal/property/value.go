// Package property converts runtime values into DBGP property trees.
//
// Values are a closed tagged variant: null, bool, int, float, string,
// sequence, map and object. The serializer has exactly one encoding rule per
// kind, so providers translate their runtime's values into Value once and
// never hand the serializer anything it has to inspect reflectively.
package property

import (
	"math"
	"strconv"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindSequence
	KindMap
	KindObject
)

// String returns the DBGP type tag for the kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindSequence:
		return "array"
	case KindMap:
		return "hash"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Member is one keyed entry of a map or object.
type Member struct {
	Key   string
	Value Value

	// Hidden members (unexported fields, private properties) are not
	// enumerated and cannot be reached by path lookup.
	Hidden bool
}

// Loader fetches the children of a container that was not expanded when
// the value was built. It returns the expanded container.
type Loader func() Value

// Value is a host runtime value.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64

	// Text holds string contents, and the literal of integers outside the
	// int64 range.
	Text string

	// Items holds sequence elements.
	Items []Value

	// Members holds map entries and object fields in display order.
	Members []Member

	// Class is the class name of an object.
	Class string

	// TypeName optionally overrides the type tag with the runtime's own
	// type name (lower-cased on output).
	TypeName string

	// Load is set on containers whose children are fetched on demand.
	// Count is their number of enumerable children until then.
	Load  Loader
	Count int
}

// Null returns the null value.
func Null() Value { return Value{Kind: KindNull} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{Kind: KindInt, Int: i} }

// Uint returns an unsigned integer value. Values above the int64 range keep
// their literal.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{Kind: KindInt, Text: strconv.FormatUint(u, 10)}
}

// Float returns a floating point value.
func Float(f float64) Value { return Value{Kind: KindFloat, Float: f} }

// String returns a string value.
func String(s string) Value { return Value{Kind: KindString, Text: s} }

// Sequence returns a sequence of items.
func Sequence(items ...Value) Value { return Value{Kind: KindSequence, Items: items} }

// Map returns a map with the given entries.
func Map(members ...Member) Value { return Value{Kind: KindMap, Members: members} }

// Object returns an object of class with the given fields.
func Object(class string, members ...Member) Value {
	return Value{Kind: KindObject, Class: class, Members: members}
}

// Deferred returns an unexpanded container of kind with count children that
// load fetches when they are first needed.
func Deferred(kind Kind, class string, count int, load Loader) Value {
	return Value{Kind: kind, Class: class, Count: count, Load: load}
}

// Entry is shorthand for a visible Member.
func Entry(key string, v Value) Member { return Member{Key: key, Value: v} }

// Literal returns the decimal text of an integer value.
func (v Value) Literal() string {
	if v.Text != "" {
		return v.Text
	}
	return strconv.FormatInt(v.Int, 10)
}

// Expanded returns v with its children loaded.
func (v Value) Expanded() Value {
	if v.Load == nil {
		return v
	}
	return v.Load()
}

// IsContainer reports whether v has children.
func (v Value) IsContainer() bool {
	return v.Kind == KindSequence || v.Kind == KindMap || v.Kind == KindObject
}

// Indexable reports whether path lookup uses array-style keys on v.
func (v Value) Indexable() bool {
	return v.Kind == KindSequence || v.Kind == KindMap
}

// Len returns the number of enumerable children. It does not load deferred
// children.
func (v Value) Len() int {
	if v.Load != nil {
		return v.Count
	}
	switch v.Kind {
	case KindSequence:
		return len(v.Items)
	case KindMap, KindObject:
		n := 0
		for _, m := range v.Members {
			if !m.Hidden {
				n++
			}
		}
		return n
	default:
		return 0
	}
}

// Each calls fn for every enumerable child in display order.
func (v Value) Each(fn func(key string, child Value)) {
	v = v.Expanded()
	switch v.Kind {
	case KindSequence:
		for i, item := range v.Items {
			fn(strconv.Itoa(i), item)
		}
	case KindMap, KindObject:
		for _, m := range v.Members {
			if m.Hidden {
				continue
			}
			fn(m.Key, m.Value)
		}
	}
}

// Child looks up one enumerable key: array-style on sequences and maps,
// attribute-style on objects. Scalars have no children.
func (v Value) Child(key string) (Value, bool) {
	v = v.Expanded()
	switch v.Kind {
	case KindSequence:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(v.Items) {
			return Value{}, false
		}
		return v.Items[i], true
	case KindMap, KindObject:
		for _, m := range v.Members {
			if m.Key == key && !m.Hidden {
				return m.Value, true
			}
		}
	}
	return Value{}, false
}
