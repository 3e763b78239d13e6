package dbgp

import (
	"bytes"
	"encoding/base64"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ctagard/dbgpd/internal/property"
)

const prolog = `<?xml version="1.0" encoding="iso-8859-1"?>`

// values returns the flag values of c in declaration order. Bare flags
// yield "1".
func values(c Command) []string {
	vals := make([]string, 0, len(c.Args))
	for _, a := range c.Args {
		if a.Bare {
			vals = append(vals, "1")
			continue
		}
		vals = append(vals, a.Value)
	}
	return vals
}

// unframe splits one framed message off the front of data, the way an IDE
// reads the engine's output.
func unframe(data []byte) (doc, rest []byte, ok bool) {
	i := bytes.IndexByte(data, 0)
	if i < 0 {
		return nil, data, false
	}
	n, err := strconv.Atoi(string(data[:i]))
	if err != nil || n < 0 {
		return nil, data, false
	}
	end := i + 1 + n
	if len(data) < end+1 || data[end] != 0 {
		return nil, data, false
	}
	return data[i+1 : end], data[end+1:], true
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		cmd    string
		txn    string
		values []string
	}{
		{"simple", "status -i 1", "status", "1", []string{"1"}},
		{"flag pairs", "breakpoint_set -i 4 -t line -f file:///a.php -n 10", "breakpoint_set", "4", []string{"4", "line", "file:///a.php", "10"}},
		{"bare flag", "feature_set -i 2 -n show_hidden -v", "feature_set", "2", []string{"2", "show_hidden", "1"}},
		{"bare between flags", "stack_get -x -i 9", "stack_get", "9", []string{"1", "9"}},
		{"extra spaces", "  run   -i  7  ", "run", "7", []string{"7"}},
		{"data after dashes", "eval -i 5 -- JF9TRVJWRVI=", "eval", "5", []string{"5", "JF9TRVJWRVI="}},
		{"repeated value overwrites", "stdout -i 3 -c 0 1", "stdout", "3", []string{"3", "1"}},
		{"no flags", "detach", "detach", "", []string{}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd, ok := ParseCommand(tc.line)
			require.True(t, ok)
			assert.Equal(t, tc.cmd, cmd.Name)
			assert.Equal(t, tc.txn, cmd.TransactionID)
			assert.Equal(t, tc.values, values(cmd))
		})
	}
}

func TestParseCommand_Empty(t *testing.T) {
	_, ok := ParseCommand("   ")
	assert.False(t, ok)
}

func TestCommand_Flags(t *testing.T) {
	cmd, ok := ParseCommand("property_get -i 8 -n $a['b'] -d 0 -v")
	require.True(t, ok)

	n, ok := cmd.Flag("n")
	assert.True(t, ok)
	assert.Equal(t, "$a['b']", n)

	v, ok := cmd.Flag("v")
	assert.True(t, ok, "bare flags are present")
	assert.Empty(t, v)

	_, ok = cmd.Flag("c")
	assert.False(t, ok)

	assert.Equal(t, "0", cmd.FlagOr("d", "5"))
	assert.Equal(t, "5", cmd.FlagOr("v", "5"))
	assert.Equal(t, "0", cmd.FlagOr("c", "0"))

	eval, _ := ParseCommand("eval -i 1 -- aGVsbG8=")
	assert.Equal(t, "aGVsbG8=", eval.Data())
}

func TestCommand_String(t *testing.T) {
	cmd, _ := ParseCommand("feature_set -i 2 -n max_depth -v 1 -x")
	assert.Equal(t, "feature_set -i 2 -n max_depth -v 1 -x", cmd.String())
}

func TestDecode_Batched(t *testing.T) {
	data := []byte("feature_set -i 1 -n a -v 1\x00\x00status -i 2\x00 \x00stdout -i 3 -c 1\x00")
	cmds := Decode(data)
	require.Len(t, cmds, 3)
	assert.Equal(t, "feature_set", cmds[0].Name)
	assert.Equal(t, "status", cmds[1].Name)
	assert.Equal(t, "stdout", cmds[2].Name)
	assert.Equal(t, "3", cmds[2].TransactionID)
}

func TestMarshal_Response(t *testing.T) {
	cmd, _ := ParseCommand("status -i 3")
	doc, err := Marshal(NewResponse(cmd).Set("status", StatusStarting).Set("reason", ReasonOK))
	require.NoError(t, err)

	want := prolog + `<response xmlns="urn:debugger_protocol_v1" command="status" transaction_id="3" status="starting" reason="ok"></response>`
	assert.Equal(t, want, string(doc))
}

func TestMarshal_CDATAIsRaw(t *testing.T) {
	e := NewElement("property").Set("type", "string").SetCDATA("a<b>&c")
	doc, err := Marshal(e)
	require.NoError(t, err)
	assert.Equal(t, prolog+`<property type="string"><![CDATA[a<b>&c]]></property>`, string(doc))
}

func TestMarshal_AttributesAreEscaped(t *testing.T) {
	doc, err := Marshal(NewElement("x").Set("fullname", `a["k"]&`))
	require.NoError(t, err)
	assert.Contains(t, string(doc), `fullname="a[&#34;k&#34;]&amp;"`)
}

func TestElement_SetReplaces(t *testing.T) {
	e := NewElement("r").Set("a", "1").Set("b", "2").Set("a", "3")
	require.Len(t, e.Attrs, 2)
	v, ok := e.Attr("a")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
}

func TestFrame(t *testing.T) {
	doc := []byte(prolog + "<response></response>")
	msg := Frame(doc)

	prefix := strconv.Itoa(len(doc)) + "\x00"
	assert.True(t, strings.HasPrefix(string(msg), prefix))
	assert.Equal(t, byte(0), msg[len(msg)-1])

	got, rest, ok := unframe(append(msg, '9'))
	require.True(t, ok)
	assert.Equal(t, doc, got)
	assert.Equal(t, []byte("9"), rest)
}

func TestFrame_Incomplete(t *testing.T) {
	msg := Frame([]byte("<init></init>"))
	_, _, ok := unframe(msg[:len(msg)-3])
	assert.False(t, ok)
	_, _, ok = unframe([]byte("12"))
	assert.False(t, ok)
}

func TestInit(t *testing.T) {
	doc, err := Marshal(Init("app-1", "key", "PHP"))
	require.NoError(t, err)
	s := string(doc)

	assert.True(t, strings.HasPrefix(s, prolog+`<init appid="app-1" idekey="key" language="PHP" protocol_version="1.0" fileuri="" xmlns="urn:debugger_protocol_v1">`))
	assert.Contains(t, s, `<engine version="0.2.0"><![CDATA[dbgpd]]></engine>`)
	assert.Contains(t, s, `<author><![CDATA[`)
	assert.NotContains(t, s, "command=", "init carries no command attribute")
}

func TestProperty(t *testing.T) {
	vars := property.Map(
		property.Entry("s", property.String("hi")),
		property.Entry("u", property.Object("User", property.Entry("id", property.Int(1)))),
		property.Entry("n", property.Null()),
	)
	nodes := property.Serialize(vars)
	require.Len(t, nodes, 3)

	doc, err := Marshal(Property(nodes[0]))
	require.NoError(t, err)
	assert.Equal(t, prolog+`<property name="s" fullname="$s" type="string" size="2" encoding="base64"><![CDATA[aGk=]]></property>`, string(doc))

	doc, err = Marshal(Property(nodes[1]))
	require.NoError(t, err)
	assert.Equal(t, prolog+`<property name="u" fullname="$u" type="object" children="1" numchildren="1" classname="User"></property>`, string(doc))

	doc, err = Marshal(Property(nodes[2]))
	require.NoError(t, err)
	assert.Equal(t, prolog+`<property name="n" fullname="$n" type="null"></property>`, string(doc))
}

func TestProperty_Nested(t *testing.T) {
	n, err := property.Lookup(property.Map(property.Entry("a", property.Map(property.Entry("b", property.Int(5))))), "$a")
	require.NoError(t, err)

	e := Property(n)
	require.Len(t, e.Children, 1)
	full, _ := e.Children[0].Attr("fullname")
	assert.Equal(t, "a['b']", full)
	assert.Equal(t, "5", e.Children[0].CDATA)
}

func TestStackFrameAndMessage(t *testing.T) {
	doc, err := Marshal(StackFrame("Cart->total", 0, "/app/cart.php", 33))
	require.NoError(t, err)
	assert.Contains(t, string(doc), `<stack where="Cart-&gt;total" level="0" type="file" filename="file:///app/cart.php" lineno="33">`)

	msg := Message("", 0)
	lineno, _ := msg.Attr("lineno")
	assert.Empty(t, lineno)
}

func TestCannedEval(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }

	tests := []struct {
		expr string
		ok   bool
		kind property.Kind
		text string
	}{
		{`isset($_SERVER['PHP_IDE_CONFIG'])`, true, property.KindBool, ""},
		{`isset($_SERVER['SERVER_NAME'])`, true, property.KindBool, ""},
		{`(string)($_SERVER['SERVER_NAME'])`, true, property.KindString, "127.0.0.1"},
		{`(string)($_SERVER['SERVER_PORT'])`, true, property.KindString, "80"},
		{`(string)($_SERVER['REQUEST_URI'])`, true, property.KindString, ""},
		{`1 + 1`, false, property.KindNull, ""},
	}
	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			v, ok := CannedEval(enc(tc.expr))
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.kind, v.Kind)
				assert.Equal(t, tc.text, v.Text)
			}
		})
	}

	_, ok := CannedEval("%%%not-base64")
	assert.False(t, ok)
}

func TestEvalProperty(t *testing.T) {
	doc, err := Marshal(EvalProperty(property.String("80")))
	require.NoError(t, err)
	assert.Equal(t, prolog+`<property type="string" size="2" encoding="base64"><![CDATA[ODA=]]></property>`, string(doc))

	doc, err = Marshal(EvalProperty(property.Bool(true)))
	require.NoError(t, err)
	assert.Equal(t, prolog+`<property type="bool"><![CDATA[1]]></property>`, string(doc))
}
