package dbgp

import (
	"strconv"

	"github.com/ctagard/dbgpd/internal/property"
	"github.com/ctagard/dbgpd/internal/version"
)

// Namespaces used in responses.
const (
	Namespace       = "urn:debugger_protocol_v1"
	XdebugNamespace = "https://xdebug.org/dbgp/xdebug"
)

// Status values reported by status and continuation commands.
const (
	StatusStarting = "starting"
	StatusBreak    = "break"
	ReasonOK       = "ok"
)

// FileScheme prefixes file names in stack and message elements.
const FileScheme = "file://"

// NewResponse creates the root element answering cmd.
func NewResponse(cmd Command) *Element {
	return NewElement("response").
		Set("xmlns", Namespace).
		Set("command", cmd.Name).
		Set("transaction_id", cmd.TransactionID)
}

// Init creates the handshake document sent when a connection opens.
func Init(appID, ideKey, language string) *Element {
	root := NewElement("init").
		Set("appid", appID).
		Set("idekey", ideKey).
		Set("language", language).
		Set("protocol_version", version.ProtocolVersion).
		Set("fileuri", "").
		Set("xmlns", Namespace)

	engine := NewElement("engine").
		Set("version", version.GetVersion()).
		SetCDATA(version.EngineName)
	author := NewElement("author").SetCDATA(version.Author)

	return root.Add(engine, author)
}

// Property renders a property tree node and its children.
func Property(n property.Node) *Element {
	e := NewElement("property").
		Set("name", n.Name).
		Set("fullname", n.FullName).
		Set("type", n.Type)

	if n.HasChildren {
		e.Set("children", "1").
			Set("numchildren", strconv.Itoa(n.NumChildren))
	}
	if n.ClassName != "" {
		e.Set("classname", n.ClassName)
	}
	if n.Encoding != "" {
		e.Set("size", strconv.Itoa(n.Size)).
			Set("encoding", n.Encoding)
	}
	if n.HasValue {
		e.SetCDATA(n.Value)
	}

	for _, child := range n.Children {
		e.Add(Property(child))
	}
	return e
}

// StackFrame renders one stack element.
func StackFrame(where string, level int, file string, line int) *Element {
	return NewElement("stack").
		Set("where", where).
		Set("level", strconv.Itoa(level)).
		Set("type", "file").
		Set("filename", FileScheme+file).
		Set("lineno", strconv.Itoa(line))
}

// DBGP error codes.
const (
	ErrBreakpointNotSet = 200
)

// Error renders an error element with its message.
func Error(code int, message string) *Element {
	msg := NewElement("message").SetCDATA(message)
	return NewElement("error").Set("code", strconv.Itoa(code)).Add(msg)
}

// Message renders the xdebug:message element naming where execution stopped.
func Message(file string, line int) *Element {
	lineno := ""
	if line > 0 {
		lineno = strconv.Itoa(line)
	}
	return NewElement("xdebug:message").
		Set("filename", FileScheme+file).
		Set("lineno", lineno)
}
