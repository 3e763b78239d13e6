package dbgp

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

// Charset is the encoding declared in every document prolog.
const Charset = "iso-8859-1"

// Attr is an element attribute. Attribute order is preserved on the wire.
type Attr struct {
	Name  string
	Value string
}

// Element is a node of a response document.
type Element struct {
	Name  string
	Attrs []Attr

	// CDATA is written verbatim inside a CDATA section when HasCDATA is set.
	CDATA    string
	HasCDATA bool

	Children []*Element
}

// NewElement creates an element.
func NewElement(name string) *Element {
	return &Element{Name: name}
}

// Set appends an attribute, or replaces the value of an existing one.
func (e *Element) Set(name, value string) *Element {
	for i := range e.Attrs {
		if e.Attrs[i].Name == name {
			e.Attrs[i].Value = value
			return e
		}
	}
	e.Attrs = append(e.Attrs, Attr{Name: name, Value: value})
	return e
}

// Attr returns the value of an attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetCDATA sets the element's character data.
func (e *Element) SetCDATA(text string) *Element {
	e.CDATA = text
	e.HasCDATA = true
	return e
}

// Add appends children.
func (e *Element) Add(children ...*Element) *Element {
	e.Children = append(e.Children, children...)
	return e
}

// Marshal renders root as an XML document with prolog.
func Marshal(root *Element) ([]byte, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	prolog := xml.ProcInst{
		Target: "xml",
		Inst:   []byte(fmt.Sprintf(`version="1.0" encoding="%s"`, Charset)),
	}
	if err := enc.EncodeToken(prolog); err != nil {
		return nil, fmt.Errorf("failed to write prolog: %w", err)
	}
	if err := encodeElement(enc, &buf, root); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush document: %w", err)
	}
	return buf.Bytes(), nil
}

// encodeElement writes e through enc. CDATA sections bypass the encoder so
// their payload is not entity-escaped: the encoder is flushed and the section
// is written straight into buf.
func encodeElement(enc *xml.Encoder, buf *bytes.Buffer, e *Element) error {
	start := xml.StartElement{Name: xml.Name{Local: e.Name}}
	for _, a := range e.Attrs {
		start.Attr = append(start.Attr, xml.Attr{Name: xml.Name{Local: a.Name}, Value: a.Value})
	}
	if err := enc.EncodeToken(start); err != nil {
		return fmt.Errorf("failed to write <%s>: %w", e.Name, err)
	}

	if e.HasCDATA {
		if err := enc.Flush(); err != nil {
			return fmt.Errorf("failed to flush <%s>: %w", e.Name, err)
		}
		buf.WriteString("<![CDATA[")
		buf.WriteString(e.CDATA)
		buf.WriteString("]]>")
	}

	for _, child := range e.Children {
		if err := encodeElement(enc, buf, child); err != nil {
			return err
		}
	}

	if err := enc.EncodeToken(start.End()); err != nil {
		return fmt.Errorf("failed to write </%s>: %w", e.Name, err)
	}
	return nil
}

// Frame wraps a document for the wire: decimal length, NUL, document, NUL.
func Frame(doc []byte) []byte {
	msg := make([]byte, 0, len(doc)+12)
	msg = strconv.AppendInt(msg, int64(len(doc)), 10)
	msg = append(msg, 0)
	msg = append(msg, doc...)
	return append(msg, 0)
}

// Encode marshals and frames root.
func Encode(root *Element) ([]byte, error) {
	doc, err := Marshal(root)
	if err != nil {
		return nil, err
	}
	return Frame(doc), nil
}
