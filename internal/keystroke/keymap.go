package keystroke

// Linux evdev key codes (linux/input-event-codes.h). The injector reuses
// them to drive a uinput device.
const (
	KeyEsc        uint16 = 1
	KeyBackspace  uint16 = 14
	KeyTab        uint16 = 15
	KeyEnter      uint16 = 28
	KeyLeftCtrl   uint16 = 29
	KeyLeftShift  uint16 = 42
	KeyRightShift uint16 = 54
	KeyLeftAlt    uint16 = 56
	KeySpace      uint16 = 57
	KeyCapsLock   uint16 = 58
	KeyF1         uint16 = 59
	KeyF10        uint16 = 68
	KeyNumLock    uint16 = 69
	KeyScrollLock uint16 = 70
	KeyF11        uint16 = 87
	KeyF12        uint16 = 88
	KeyKPEnter    uint16 = 96
	KeyRightCtrl  uint16 = 97
	KeyRightAlt   uint16 = 100
	KeyHome       uint16 = 102
	KeyUp         uint16 = 103
	KeyPageUp     uint16 = 104
	KeyLeft       uint16 = 105
	KeyRight      uint16 = 106
	KeyEnd        uint16 = 107
	KeyDown       uint16 = 108
	KeyPageDown   uint16 = 109
	KeyInsert     uint16 = 110
	KeyDelete     uint16 = 111
	KeyLeftMeta   uint16 = 125
	KeyRightMeta  uint16 = 126
	KeyU          uint16 = 22
)

// keyPair holds the unshifted and shifted rune for a key.
type keyPair struct {
	plain   rune
	shifted rune
}

// usLayout maps evdev codes of printable keys to US QWERTY runes.
var usLayout = map[uint16]keyPair{
	2: {'1', '!'}, 3: {'2', '@'}, 4: {'3', '#'}, 5: {'4', '$'}, 6: {'5', '%'},
	7: {'6', '^'}, 8: {'7', '&'}, 9: {'8', '*'}, 10: {'9', '('}, 11: {'0', ')'},
	12: {'-', '_'}, 13: {'=', '+'},
	16: {'q', 'Q'}, 17: {'w', 'W'}, 18: {'e', 'E'}, 19: {'r', 'R'}, 20: {'t', 'T'},
	21: {'y', 'Y'}, 22: {'u', 'U'}, 23: {'i', 'I'}, 24: {'o', 'O'}, 25: {'p', 'P'},
	26: {'[', '{'}, 27: {']', '}'},
	30: {'a', 'A'}, 31: {'s', 'S'}, 32: {'d', 'D'}, 33: {'f', 'F'}, 34: {'g', 'G'},
	35: {'h', 'H'}, 36: {'j', 'J'}, 37: {'k', 'K'}, 38: {'l', 'L'},
	39: {';', ':'}, 40: {'\'', '"'}, 41: {'`', '~'}, 43: {'\\', '|'},
	44: {'z', 'Z'}, 45: {'x', 'X'}, 46: {'c', 'C'}, 47: {'v', 'V'}, 48: {'b', 'B'},
	49: {'n', 'N'}, 50: {'m', 'M'},
	51: {',', '<'}, 52: {'.', '>'}, 53: {'/', '?'},
}

// keypad keys produce the same rune regardless of shift (num lock assumed on).
var keypadLayout = map[uint16]rune{
	55: '*', 71: '7', 72: '8', 73: '9', 74: '-', 75: '4', 76: '5', 77: '6',
	78: '+', 79: '1', 80: '2', 81: '3', 82: '0', 83: '.', 98: '/',
}

// keyStroke is a key code plus the shift state needed to produce a rune.
type keyStroke struct {
	code  uint16
	shift bool
}

// runeToKey is the reverse of usLayout, built once at init.
var runeToKey = func() map[rune]keyStroke {
	m := make(map[rune]keyStroke, 2*len(usLayout))
	for code, p := range usLayout {
		m[p.plain] = keyStroke{code: code}
		m[p.shifted] = keyStroke{code: code, shift: true}
	}
	return m
}()

// Modifiers tracks held modifier keys for one device.
type Modifiers struct {
	Shift    bool
	Control  bool
	Alt      bool
	Meta     bool
	CapsLock bool

	leftShift, rightShift bool
	leftCtrl, rightCtrl   bool
	leftAlt, rightAlt     bool
	leftMeta, rightMeta   bool
}

// Update applies a modifier key transition. It returns false if code is not a modifier.
func (m *Modifiers) Update(code uint16, pressed bool) bool {
	switch code {
	case KeyLeftShift:
		m.leftShift = pressed
	case KeyRightShift:
		m.rightShift = pressed
	case KeyLeftCtrl:
		m.leftCtrl = pressed
	case KeyRightCtrl:
		m.rightCtrl = pressed
	case KeyLeftAlt:
		m.leftAlt = pressed
	case KeyRightAlt:
		m.rightAlt = pressed
	case KeyLeftMeta:
		m.leftMeta = pressed
	case KeyRightMeta:
		m.rightMeta = pressed
	case KeyCapsLock:
		if pressed {
			m.CapsLock = !m.CapsLock
		}
	default:
		return false
	}
	m.Shift = m.leftShift || m.rightShift
	m.Control = m.leftCtrl || m.rightCtrl
	m.Alt = m.leftAlt || m.rightAlt
	m.Meta = m.leftMeta || m.rightMeta
	return true
}

// Classify turns an evdev key code into a Kind and, for printable keys,
// the rune it produces under the current modifiers.
func Classify(code uint16, mods Modifiers) (Kind, rune) {
	switch code {
	case KeyEsc:
		return KindEscape, 0
	case KeyBackspace:
		// Ctrl/Alt+Backspace deletes a word in most editors
		if mods.Control || mods.Alt || mods.Meta {
			return KindChord, 0
		}
		return KindBackspace, 0
	case KeyTab:
		return KindTab, '\t'
	case KeyEnter, KeyKPEnter:
		return KindReturn, '\n'
	case KeySpace:
		return KindSpace, ' '
	case KeyDelete:
		return KindDelete, 0
	case KeyHome, KeyUp, KeyPageUp, KeyLeft, KeyRight, KeyEnd, KeyDown, KeyPageDown, KeyInsert:
		return KindNavigation, 0
	case KeyLeftShift, KeyRightShift, KeyLeftCtrl, KeyRightCtrl, KeyLeftAlt,
		KeyRightAlt, KeyLeftMeta, KeyRightMeta, KeyCapsLock, KeyNumLock, KeyScrollLock:
		return KindModifier, 0
	}

	if (code >= KeyF1 && code <= KeyF10) || code == KeyF11 || code == KeyF12 {
		return KindFunction, 0
	}

	var r rune
	if p, ok := usLayout[code]; ok {
		r = p.plain
		shifted := mods.Shift
		if mods.CapsLock && p.plain >= 'a' && p.plain <= 'z' {
			shifted = !shifted
		}
		if shifted {
			r = p.shifted
		}
	} else if kp, ok := keypadLayout[code]; ok {
		r = kp
	} else {
		return KindUnknown, 0
	}

	if mods.Control || mods.Alt || mods.Meta {
		return KindChord, r
	}
	return KindCharacter, r
}

// KeyForRune returns the key code and shift state that type r on a US layout.
func KeyForRune(r rune) (code uint16, shift bool, ok bool) {
	switch r {
	case ' ':
		return KeySpace, false, true
	case '\t':
		return KeyTab, false, true
	case '\n', '\r':
		return KeyEnter, false, true
	}
	k, ok := runeToKey[r]
	if !ok {
		return 0, false, false
	}
	return k.code, k.shift, true
}

// KeyForKind returns the key code for a named key.
func KeyForKind(kind Kind) (uint16, bool) {
	switch kind {
	case KindBackspace:
		return KeyBackspace, true
	case KindDelete:
		return KeyDelete, true
	case KindReturn:
		return KeyEnter, true
	case KindTab:
		return KeyTab, true
	case KindSpace:
		return KeySpace, true
	case KindEscape:
		return KeyEsc, true
	}
	return 0, false
}
