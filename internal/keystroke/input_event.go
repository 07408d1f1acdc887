package keystroke

import (
	"time"
	"unicode"
)

// Kind categorizes keyboard input.
type Kind int

const (
	KindUnknown    Kind = iota
	KindCharacter       // Printable character keys (a-z, 0-9, symbols)
	KindBackspace       // Backspace/Delete backward
	KindDelete          // Delete forward
	KindNavigation      // Arrow keys, Home, End, Page Up/Down
	KindModifier        // Shift, Ctrl, Alt, Meta
	KindFunction        // F1-F12 and other non-printing keys
	KindReturn          // Enter/Return
	KindTab             // Tab
	KindSpace           // Space bar
	KindEscape          // Escape
	KindChord           // Character key pressed with Ctrl, Alt or Meta held
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindBackspace:
		return "backspace"
	case KindDelete:
		return "delete"
	case KindNavigation:
		return "navigation"
	case KindModifier:
		return "modifier"
	case KindFunction:
		return "function"
	case KindReturn:
		return "return"
	case KindTab:
		return "tab"
	case KindSpace:
		return "space"
	case KindEscape:
		return "escape"
	case KindChord:
		return "chord"
	default:
		return "unknown"
	}
}

// ParseKind maps a key name (as used in configuration) to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "escape", "esc":
		return KindEscape, true
	case "backspace":
		return KindBackspace, true
	case "delete":
		return KindDelete, true
	case "return", "enter":
		return KindReturn, true
	case "tab":
		return KindTab, true
	case "space":
		return KindSpace, true
	}
	return KindUnknown, false
}

// Action distinguishes key presses from releases.
type Action int

const (
	ActionPress Action = iota
	ActionRelease
)

func (a Action) String() string {
	if a == ActionRelease {
		return "release"
	}
	return "press"
}

// InputSource indicates how the input was generated.
type InputSource int

const (
	SourceUnknown   InputSource = iota
	SourceHardware              // Physical keyboard
	SourceSynthetic             // Generated by our own injector
)

func (s InputSource) String() string {
	switch s {
	case SourceHardware:
		return "hardware"
	case SourceSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// Event represents a single key event.
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	Action    Action      `json:"action"`
	Kind      Kind        `json:"kind"`
	Char      rune        `json:"char,omitempty"`
	Code      uint16      `json:"code,omitempty"`
	IsRepeat  bool        `json:"is_repeat,omitempty"`
	Source    InputSource `json:"source"`
	Device    string      `json:"device,omitempty"`
}

// IsPress reports whether the event is a key press (including auto-repeat).
func (e Event) IsPress() bool {
	return e.Action == ActionPress
}

// IsWhitespace reports whether the event produces whitespace.
func (e Event) IsWhitespace() bool {
	switch e.Kind {
	case KindSpace, KindTab, KindReturn:
		return true
	case KindCharacter:
		return unicode.IsSpace(e.Char)
	}
	return false
}

// ErasesWord reports whether the event is a backspace held with Ctrl, Alt
// or Meta, which removes an unknown amount of text.
func (e Event) ErasesWord() bool {
	return e.Kind == KindChord && e.Code == KeyBackspace
}

// IsPrintable reports whether the event produces a visible, non-space character.
func (e Event) IsPrintable() bool {
	return e.Kind == KindCharacter && e.Char != 0 && !unicode.IsSpace(e.Char) && unicode.IsPrint(e.Char)
}

// EventForRune builds the press event a keyboard would report for r.
func EventForRune(r rune, source InputSource) Event {
	ev := Event{
		Timestamp: time.Now(),
		Action:    ActionPress,
		Kind:      KindCharacter,
		Char:      r,
		Source:    source,
	}
	switch r {
	case ' ':
		ev.Kind = KindSpace
	case '\t':
		ev.Kind = KindTab
	case '\n', '\r':
		ev.Kind = KindReturn
		ev.Char = '\n'
	}
	return ev
}

// EventForKind builds a press event for a named key.
func EventForKind(kind Kind, source InputSource) Event {
	ev := Event{
		Timestamp: time.Now(),
		Action:    ActionPress,
		Kind:      kind,
		Source:    source,
	}
	switch kind {
	case KindSpace:
		ev.Char = ' '
	case KindTab:
		ev.Char = '\t'
	case KindReturn:
		ev.Char = '\n'
	}
	return ev
}

// Released returns a copy of e as a key release.
func (e Event) Released() Event {
	e.Action = ActionRelease
	e.IsRepeat = false
	return e
}
