// Package dbgp implements the DBGP wire codec: parsing IDE command lines and
// encoding responses as length-prefixed, NUL-terminated XML documents.
package dbgp

import (
	"strings"
)

// Separator terminates a command line on the wire and frames responses.
const Separator = "\x00"

// Arg is one flag of a command line. Bare flags carry no value.
type Arg struct {
	Flag  string
	Value string
	Bare  bool
}

// Command is a decoded IDE command.
type Command struct {
	Name          string
	TransactionID string
	Args          []Arg
}

// ParseCommand parses a single command line such as
//
//	breakpoint_set -i 4 -t line -f file:///app/a.php -n 10
//
// Each -flag takes the next non-flag token as its value; a flag followed by
// another flag, or by nothing, is bare. The "--" flag is stored under the
// name "-" and carries the command's data. Empty tokens are dropped. It
// returns false for a line without a command name.
func ParseCommand(line string) (Command, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, false
	}

	cmd := Command{Name: fields[0]}
	for _, tok := range fields[1:] {
		if strings.HasPrefix(tok, "-") && len(tok) > 1 {
			cmd.Args = append(cmd.Args, Arg{Flag: tok[1:], Bare: true})
			continue
		}
		if len(cmd.Args) == 0 {
			// Stray value before any flag.
			continue
		}
		last := &cmd.Args[len(cmd.Args)-1]
		last.Value = tok
		last.Bare = false
	}

	cmd.TransactionID, _ = cmd.Flag("i")
	return cmd, true
}

// Decode splits a read into its command lines and parses each one. Several
// commands may arrive in one read, separated by NUL bytes.
func Decode(data []byte) []Command {
	var cmds []Command
	for _, line := range strings.Split(string(data), Separator) {
		if cmd, ok := ParseCommand(line); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// Flag returns the value of the named flag. A bare flag reports ("", true).
func (c Command) Flag(name string) (string, bool) {
	for _, a := range c.Args {
		if a.Flag == name {
			return a.Value, true
		}
	}
	return "", false
}

// FlagOr returns the value of the named flag, or def when it is absent or bare.
func (c Command) FlagOr(name, def string) string {
	if v, ok := c.Flag(name); ok && v != "" {
		return v
	}
	return def
}

// Data returns the payload following "--".
func (c Command) Data() string {
	v, _ := c.Flag("-")
	return v
}

// String renders the command back into wire syntax, without the separator.
func (c Command) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	for _, a := range c.Args {
		sb.WriteString(" -")
		sb.WriteString(a.Flag)
		if !a.Bare {
			sb.WriteByte(' ')
			sb.WriteString(a.Value)
		}
	}
	return sb.String()
}
