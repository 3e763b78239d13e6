package dbgp

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/ctagard/dbgpd/internal/property"
)

// CannedEval answers the handful of environment queries IDEs send while a
// session starts. It does not evaluate code: the decoded expression is
// matched against known substrings and a fixed value comes back. ok is false
// for anything else.
func CannedEval(encoded string) (v property.Value, ok bool) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return property.Value{}, false
	}
	code := string(raw)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if !strings.Contains(code, s) {
				return false
			}
		}
		return true
	}

	switch {
	case has("PHP_IDE_CONFIG"):
		return property.Bool(false), true
	case has("isset", "SERVER_NAME"):
		return property.Bool(true), true
	case has("string", "SERVER_NAME"):
		return property.String("127.0.0.1"), true
	case has("string", "SERVER_PORT"):
		return property.String("80"), true
	case has("string", "REQUEST_URI"):
		return property.String(""), true
	}
	return property.Value{}, false
}

// EvalProperty renders a canned eval result. Unlike variable properties it
// carries no name.
func EvalProperty(v property.Value) *Element {
	n := property.SerializePath(v, "", "")
	e := NewElement("property").Set("type", n.Type)
	if n.Encoding != "" {
		e.Set("size", strconv.Itoa(n.Size)).Set("encoding", n.Encoding)
	}
	return e.SetCDATA(n.Value)
}
