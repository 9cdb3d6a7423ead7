package engine

import "fmt"

// Mode identifies a mode of the modal engine.
type Mode uint8

const (
	// ModeNormal is the default command mode.
	ModeNormal Mode = iota
	// ModeInsert is the text entry mode.
	ModeInsert
	// ModeVisual is characterwise visual selection.
	ModeVisual
	// ModeVisualLine is linewise visual selection.
	ModeVisualLine
	// ModeVisualBlock is blockwise visual selection.
	ModeVisualBlock
	// ModeReplace overwrites characters.
	ModeReplace
	// ModeOperatorPending waits for a motion after an operator.
	ModeOperatorPending
	// ModeSearchInProgress is an incremental search prompt.
	ModeSearchInProgress
	// ModeCommandLine is the ex command line.
	ModeCommandLine
	// ModeEasyMotion is a jump-label overlay.
	ModeEasyMotion
	// ModeDisabled means the engine is switched off and keys go to the host.
	ModeDisabled
)

var modeNames = [...]string{
	ModeNormal:           "normal",
	ModeInsert:           "insert",
	ModeVisual:           "visual",
	ModeVisualLine:       "visual-line",
	ModeVisualBlock:      "visual-block",
	ModeReplace:          "replace",
	ModeOperatorPending:  "operator-pending",
	ModeSearchInProgress: "search",
	ModeCommandLine:      "command-line",
	ModeEasyMotion:       "easymotion",
	ModeDisabled:         "disabled",
}

// String returns the mode name.
func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode returns the mode with the given name.
func ParseMode(name string) (Mode, error) {
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return ModeNormal, fmt.Errorf("unknown mode %q", name)
}

// IsInsert reports whether the mode is the insert mode whose interceptors
// are suspended.
func (m Mode) IsInsert() bool {
	return m == ModeInsert
}

// IsVisual reports whether the mode is one of the visual modes.
func (m Mode) IsVisual() bool {
	switch m {
	case ModeVisual, ModeVisualLine, ModeVisualBlock:
		return true
	}
	return false
}

// CrossesInsert reports whether moving from one mode to another enters or
// leaves insert mode.
func CrossesInsert(from, to Mode) bool {
	return from.IsInsert() != to.IsInsert()
}
