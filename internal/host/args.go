package host

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrMalformedArgs is returned when command arguments do not have the expected shape.
var ErrMalformedArgs = errors.New("malformed command arguments")

// TypeArgs are the arguments of the "type" command.
type TypeArgs struct {
	Text string
}

// ParseTypeArgs reads {"text": "..."}.
func ParseTypeArgs(raw []byte) (TypeArgs, error) {
	if !gjson.ValidBytes(raw) {
		return TypeArgs{}, fmt.Errorf("%w: type: invalid JSON", ErrMalformedArgs)
	}
	text := gjson.GetBytes(raw, "text")
	if text.Type != gjson.String {
		return TypeArgs{}, fmt.Errorf("%w: type: missing text", ErrMalformedArgs)
	}
	return TypeArgs{Text: text.Str}, nil
}

// JSON encodes the arguments.
func (a TypeArgs) JSON() []byte {
	b, _ := sjson.SetBytes([]byte(`{}`), "text", a.Text)
	return b
}

// ReplacePreviousCharArgs are the arguments of the "replacePreviousChar" command.
type ReplacePreviousCharArgs struct {
	Text           string
	ReplaceCharCnt int
}

// ParseReplacePreviousCharArgs reads {"text": "...", "replaceCharCnt": n}.
func ParseReplacePreviousCharArgs(raw []byte) (ReplacePreviousCharArgs, error) {
	if !gjson.ValidBytes(raw) {
		return ReplacePreviousCharArgs{}, fmt.Errorf("%w: replacePreviousChar: invalid JSON", ErrMalformedArgs)
	}
	res := gjson.GetManyBytes(raw, "text", "replaceCharCnt")
	if res[0].Type != gjson.String || res[1].Type != gjson.Number {
		return ReplacePreviousCharArgs{}, fmt.Errorf("%w: replacePreviousChar: want text and replaceCharCnt", ErrMalformedArgs)
	}
	n := int(res[1].Int())
	if n < 0 {
		return ReplacePreviousCharArgs{}, fmt.Errorf("%w: replacePreviousChar: negative count %d", ErrMalformedArgs, n)
	}
	return ReplacePreviousCharArgs{Text: res[0].Str, ReplaceCharCnt: n}, nil
}

// JSON encodes the arguments.
func (a ReplacePreviousCharArgs) JSON() []byte {
	b, _ := sjson.SetBytes([]byte(`{}`), "text", a.Text)
	b, _ = sjson.SetBytes(b, "replaceCharCnt", a.ReplaceCharCnt)
	return b
}

// RemapCommand is one command of a remap binding. Args stays raw JSON and is
// handed to the host unchanged.
type RemapCommand struct {
	Command string
	Args    []byte
}

// RemapArgs are the arguments of the remap command:
// {"after": ["keys"], "commands": [{"command": "...", "args": ...}]}.
type RemapArgs struct {
	After    []string
	Commands []RemapCommand
}

// ParseRemapArgs reads remap arguments. At least one of after/commands must be present.
func ParseRemapArgs(raw []byte) (RemapArgs, error) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return RemapArgs{}, fmt.Errorf("%w: remap needs args with \"after\" and/or \"commands\"", ErrMalformedArgs)
	}

	var out RemapArgs
	after := gjson.GetBytes(raw, "after")
	commands := gjson.GetBytes(raw, "commands")
	if !after.IsArray() && !commands.IsArray() {
		return RemapArgs{}, fmt.Errorf("%w: remap needs args with \"after\" and/or \"commands\"", ErrMalformedArgs)
	}

	for _, k := range after.Array() {
		if k.Type != gjson.String {
			return RemapArgs{}, fmt.Errorf("%w: remap: after entries must be strings", ErrMalformedArgs)
		}
		out.After = append(out.After, k.Str)
	}

	var bad error
	commands.ForEach(func(_, c gjson.Result) bool {
		name := c.Get("command")
		if name.Type != gjson.String || name.Str == "" {
			bad = fmt.Errorf("%w: remap: command entries need a command name", ErrMalformedArgs)
			return false
		}
		cmd := RemapCommand{Command: name.Str}
		if a := c.Get("args"); a.Exists() {
			cmd.Args = []byte(a.Raw)
		}
		out.Commands = append(out.Commands, cmd)
		return true
	})
	if bad != nil {
		return RemapArgs{}, bad
	}
	return out, nil
}
