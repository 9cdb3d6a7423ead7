// Package selection tells selection changes the engine caused apart from
// changes the user made.
//
// The host reports every selection change through one asynchronous channel
// with no causal tag. Before the engine assigns a selection it records the
// selection's Signature in a Registry; when the host echoes that selection
// back, the Filter finds the signature, consumes it and suppresses the
// notification instead of handing it to the mode engine as user input.
package selection

import (
	"strconv"
	"strings"

	"github.com/dshills/vimsync/internal/host"
)

// Signature identifies a complete multi-cursor selection state. Two
// notifications with equal signatures describe the same selection.
type Signature string

// SignatureOf computes the signature of an ordered list of selections.
// Each cursor contributes "anchorLine:anchorCol-activeLine:activeCol";
// cursors are joined with "|".
func SignatureOf(sels []host.Selection) Signature {
	var b strings.Builder
	for i, s := range sels {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(strconv.Itoa(s.Anchor.Line))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.Anchor.Character))
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(s.Active.Line))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.Active.Character))
	}
	return Signature(b.String())
}
