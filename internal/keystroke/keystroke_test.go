package keystroke

import (
	"context"
	"testing"
	"time"
)

// =============================================================================
// Tests for the event model
// =============================================================================

func TestEventForRune(t *testing.T) {
	tests := []struct {
		r    rune
		kind Kind
		char rune
	}{
		{'a', KindCharacter, 'a'},
		{'.', KindCharacter, '.'},
		{' ', KindSpace, ' '},
		{'\t', KindTab, '\t'},
		{'\n', KindReturn, '\n'},
		{'\r', KindReturn, '\n'},
	}

	for _, tt := range tests {
		ev := EventForRune(tt.r, SourceHardware)
		if ev.Kind != tt.kind {
			t.Errorf("EventForRune(%q).Kind = %v, want %v", tt.r, ev.Kind, tt.kind)
		}
		if ev.Char != tt.char {
			t.Errorf("EventForRune(%q).Char = %q, want %q", tt.r, ev.Char, tt.char)
		}
		if !ev.IsPress() {
			t.Errorf("EventForRune(%q) should be a press", tt.r)
		}
	}
}

func TestEventWhitespaceAndPrintable(t *testing.T) {
	if !EventForRune(' ', SourceHardware).IsWhitespace() {
		t.Error("space should be whitespace")
	}
	if !EventForKind(KindReturn, SourceHardware).IsWhitespace() {
		t.Error("return should be whitespace")
	}
	if EventForKind(KindBackspace, SourceHardware).IsWhitespace() {
		t.Error("backspace should not be whitespace")
	}
	if !EventForRune('x', SourceHardware).IsPrintable() {
		t.Error("x should be printable")
	}
	if EventForRune(' ', SourceHardware).IsPrintable() {
		t.Error("space should not be printable")
	}
	chord := Event{Kind: KindChord, Char: 'c'}
	if chord.IsPrintable() {
		t.Error("chord should not be printable")
	}
}

func TestReleased(t *testing.T) {
	ev := Event{Action: ActionPress, Kind: KindCharacter, Char: 'a', IsRepeat: true}
	rel := ev.Released()
	if rel.Action != ActionRelease {
		t.Errorf("expected release, got %v", rel.Action)
	}
	if rel.IsRepeat {
		t.Error("release should not be a repeat")
	}
	if ev.Action != ActionPress {
		t.Error("Released must not modify the receiver")
	}
}

func TestParseKind(t *testing.T) {
	for _, name := range []string{"escape", "esc"} {
		k, ok := ParseKind(name)
		if !ok || k != KindEscape {
			t.Errorf("ParseKind(%q) = %v, %v", name, k, ok)
		}
	}
	if _, ok := ParseKind("hyper"); ok {
		t.Error("unknown key name should not parse")
	}
}

// =============================================================================
// Tests for the keymap
// =============================================================================

func TestClassifyLetters(t *testing.T) {
	var mods Modifiers

	kind, r := Classify(35, mods) // KEY_H
	if kind != KindCharacter || r != 'h' {
		t.Errorf("KEY_H = %v %q, want character 'h'", kind, r)
	}

	mods.Update(KeyLeftShift, true)
	kind, r = Classify(35, mods)
	if kind != KindCharacter || r != 'H' {
		t.Errorf("shift+KEY_H = %v %q, want character 'H'", kind, r)
	}

	mods.Update(KeyLeftShift, false)
	kind, r = Classify(52, mods) // KEY_DOT
	if kind != KindCharacter || r != '.' {
		t.Errorf("KEY_DOT = %v %q, want character '.'", kind, r)
	}
}

func TestClassifyCapsLock(t *testing.T) {
	var mods Modifiers
	mods.Update(KeyCapsLock, true)
	mods.Update(KeyCapsLock, false)

	if _, r := Classify(30, mods); r != 'A' {
		t.Errorf("caps lock KEY_A = %q, want 'A'", r)
	}
	// Caps lock does not shift digits
	if _, r := Classify(2, mods); r != '1' {
		t.Errorf("caps lock KEY_1 = %q, want '1'", r)
	}

	mods.Update(KeyRightShift, true)
	if _, r := Classify(30, mods); r != 'a' {
		t.Errorf("caps lock + shift KEY_A = %q, want 'a'", r)
	}
}

func TestClassifyNamedKeys(t *testing.T) {
	var mods Modifiers
	tests := []struct {
		code uint16
		kind Kind
	}{
		{KeyEsc, KindEscape},
		{KeyBackspace, KindBackspace},
		{KeySpace, KindSpace},
		{KeyTab, KindTab},
		{KeyEnter, KindReturn},
		{KeyKPEnter, KindReturn},
		{KeyLeft, KindNavigation},
		{KeyLeftCtrl, KindModifier},
		{KeyF1, KindFunction},
		{KeyF12, KindFunction},
		{KeyDelete, KindDelete},
		{240, KindUnknown},
	}
	for _, tt := range tests {
		if kind, _ := Classify(tt.code, mods); kind != tt.kind {
			t.Errorf("Classify(%d) = %v, want %v", tt.code, kind, tt.kind)
		}
	}
}

func TestClassifyChord(t *testing.T) {
	var mods Modifiers
	mods.Update(KeyLeftCtrl, true)
	kind, r := Classify(46, mods) // KEY_C
	if kind != KindChord || r != 'c' {
		t.Errorf("ctrl+KEY_C = %v %q, want chord 'c'", kind, r)
	}
}

func TestClassifyModifiedBackspace(t *testing.T) {
	for _, mod := range []uint16{KeyLeftCtrl, KeyRightAlt, KeyLeftMeta} {
		var mods Modifiers
		mods.Update(mod, true)
		kind, _ := Classify(KeyBackspace, mods)
		if kind != KindChord {
			t.Errorf("backspace with modifier %d = %v, want chord", mod, kind)
		}
		ev := Event{Action: ActionPress, Kind: kind, Code: KeyBackspace}
		if !ev.ErasesWord() {
			t.Errorf("backspace with modifier %d should erase a word", mod)
		}
	}

	var mods Modifiers
	mods.Update(KeyLeftShift, true)
	if kind, _ := Classify(KeyBackspace, mods); kind != KindBackspace {
		t.Errorf("shift+backspace = %v, want backspace", kind)
	}
}

func TestInputSourceString(t *testing.T) {
	ev := EventForRune('a', SourceSynthetic)
	var src InputSource = ev.Source
	if src.String() != "synthetic" {
		t.Errorf("source = %q, want synthetic", src.String())
	}
	if SourceHardware.String() != "hardware" || SourceUnknown.String() != "unknown" {
		t.Error("unexpected source names")
	}
}

func TestKeyForRuneRoundTrip(t *testing.T) {
	for _, r := range "Hello, world! .hi ~`{}|\"" {
		code, shift, ok := KeyForRune(r)
		if !ok {
			t.Fatalf("KeyForRune(%q) not mapped", r)
		}
		var mods Modifiers
		if shift {
			mods.Update(KeyLeftShift, true)
		}
		_, got := Classify(code, mods)
		if got != r {
			t.Errorf("round trip %q -> code %d shift %v -> %q", r, code, shift, got)
		}
	}

	if _, _, ok := KeyForRune('é'); ok {
		t.Error("é is not on the US layout")
	}
}

// =============================================================================
// Tests for Simulated and Filter
// =============================================================================

func TestSimulatedLifecycle(t *testing.T) {
	s := NewSimulated()

	if s.Emit(EventForRune('a', SourceHardware)) {
		t.Error("Emit before Start should fail")
	}

	ch, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := s.Start(context.Background()); err != ErrAlreadyRunning {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}

	s.Type(".a")
	var got []rune
	for i := 0; i < 4; i++ {
		ev := <-ch
		if ev.IsPress() {
			got = append(got, ev.Char)
		}
	}
	if string(got) != ".a" {
		t.Errorf("got %q, want %q", string(got), ".a")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after Stop")
	}
	if s.IsRunning() {
		t.Error("should not be running after Stop")
	}
}

func TestFilterDropsSynthetic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan Event, 4)
	in <- EventForRune('a', SourceHardware)
	in <- EventForRune('b', SourceSynthetic)
	in <- EventForRune('c', SourceUnknown)
	close(in)

	dropped := 0
	out := Filter(ctx, in, func(Event) { dropped++ })

	var got []rune
	for ev := range out {
		got = append(got, ev.Char)
	}
	if string(got) != "ac" {
		t.Errorf("got %q, want %q", string(got), "ac")
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestFilterStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Event)
	out := Filter(ctx, in, nil)
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("filter did not stop on cancel")
	}
}
