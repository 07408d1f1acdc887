// Package trigger recognizes dot-prefixed triggers in the live key stream.
//
// The Accumulator is a two-state machine. While Idle it ignores everything
// except '.', so ordinary prose is never buffered. While Accumulating it
// appends printable characters until a whitespace boundary completes the
// trigger. The buffer is always empty or a '.'-prefixed string with no
// whitespace: exactly the text of the trigger being typed.
package trigger

import (
	"strings"
	"unicode/utf8"

	"dotphrase/internal/keystroke"
)

// Prefix starts every trigger.
const Prefix = '.'

// State is the accumulator state.
type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "idle"
}

// Outcome classifies what a single event did to the accumulator.
type Outcome int

const (
	// Ignored: the event did not change state or buffer.
	Ignored Outcome = iota
	// Started: a '.' moved the accumulator from Idle to Accumulating.
	Started
	// Appended: a character was added to the trigger in progress.
	Appended
	// Erased: backspace removed the last character.
	Erased
	// Discarded: the buffer was dropped without a trigger (lone '.' then
	// whitespace, backspace over the '.', or a word-erasing backspace).
	Discarded
	// Completed: whitespace ended a trigger; Result.Trigger is set.
	Completed
)

func (o Outcome) String() string {
	switch o {
	case Started:
		return "started"
	case Appended:
		return "appended"
	case Erased:
		return "erased"
	case Discarded:
		return "discarded"
	case Completed:
		return "completed"
	default:
		return "ignored"
	}
}

// Result is returned by Feed for every event.
type Result struct {
	Outcome Outcome

	// Trigger is the completed trigger text (Completed only).
	Trigger string

	// Boundary is the whitespace rune that completed the trigger.
	Boundary rune
}

// Accumulator tracks the trigger currently being typed. It is owned by a
// single event-processing goroutine and is not safe for concurrent use.
type Accumulator struct {
	buf   strings.Builder
	state State
}

// New returns an Idle accumulator.
func New() *Accumulator {
	return &Accumulator{}
}

// State returns the current state.
func (a *Accumulator) State() State {
	return a.state
}

// Buffer returns the trigger text typed so far.
func (a *Accumulator) Buffer() string {
	return a.buf.String()
}

// Reset discards the buffer and returns to Idle.
func (a *Accumulator) Reset() {
	a.buf.Reset()
	a.state = Idle
}

// Feed classifies one key event. Releases never affect the accumulator.
func (a *Accumulator) Feed(ev keystroke.Event) Result {
	if !ev.IsPress() {
		return Result{Outcome: Ignored}
	}

	if a.state == Idle {
		if ev.Kind == keystroke.KindCharacter && ev.Char == Prefix {
			a.buf.WriteRune(Prefix)
			a.state = Accumulating
			return Result{Outcome: Started}
		}
		return Result{Outcome: Ignored}
	}

	switch {
	case ev.IsWhitespace():
		trigger := a.buf.String()
		a.Reset()
		if trigger == string(Prefix) {
			// Sentence punctuation, not a trigger
			return Result{Outcome: Discarded}
		}
		return Result{Outcome: Completed, Trigger: trigger, Boundary: ev.Char}

	case ev.Kind == keystroke.KindBackspace:
		return a.erase()

	case ev.ErasesWord():
		// The buffer can no longer track what is on screen
		a.Reset()
		return Result{Outcome: Discarded}

	case ev.IsPrintable():
		a.buf.WriteRune(ev.Char)
		return Result{Outcome: Appended}
	}

	// Navigation, modifiers, function keys, chords: no effect
	return Result{Outcome: Ignored}
}

// erase pops the last rune so the buffer keeps matching the visible text.
// Erasing the '.' itself ends accumulation.
func (a *Accumulator) erase() Result {
	s := a.buf.String()
	_, size := utf8.DecodeLastRuneInString(s)
	s = s[:len(s)-size]

	a.buf.Reset()
	if s == "" {
		a.state = Idle
		return Result{Outcome: Discarded}
	}
	a.buf.WriteString(s)
	return Result{Outcome: Erased}
}
