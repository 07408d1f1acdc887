package inject

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dotphrase/internal/keystroke"
)

// =============================================================================
// Typing plans
// =============================================================================

func TestPlanRunePlainAndShifted(t *testing.T) {
	steps, err := planRune('h', UnicodeNone)
	require.NoError(t, err)
	assert.Equal(t, []keyStep{{35, true}, {35, false}}, steps)

	steps, err = planRune('H', UnicodeNone)
	require.NoError(t, err)
	assert.Equal(t, []keyStep{
		{keystroke.KeyLeftShift, true},
		{35, true}, {35, false},
		{keystroke.KeyLeftShift, false},
	}, steps)
}

func TestPlanRuneUnicodeFallback(t *testing.T) {
	_, err := planRune('é', UnicodeNone)
	assert.True(t, errors.Is(err, ErrUnmappable))

	steps, err := planRune('é', UnicodeCtrlShiftU)
	require.NoError(t, err)

	// ctrl, shift, u down/up, shift up, ctrl up, "e9", space
	require.Len(t, steps, 6+4+2)
	assert.Equal(t, keyStep{keystroke.KeyLeftCtrl, true}, steps[0])
	assert.Equal(t, keyStep{keystroke.KeyU, true}, steps[2])
	e, _, _ := keystroke.KeyForRune('e')
	nine, _, _ := keystroke.KeyForRune('9')
	assert.Equal(t, keyStep{e, true}, steps[6])
	assert.Equal(t, keyStep{nine, true}, steps[8])
	assert.Equal(t, keyStep{keystroke.KeySpace, false}, steps[11])
}

func TestPlanTextFailsBeforeTyping(t *testing.T) {
	steps, err := planText("ok ☃", UnicodeNone)
	assert.Nil(t, steps)
	assert.ErrorIs(t, err, ErrUnmappable)
}

func TestHexDigits(t *testing.T) {
	assert.Equal(t, "e9", string(hexDigits('é')))
	assert.Equal(t, "2603", string(hexDigits('☃')))
	assert.Equal(t, "0", string(hexDigits(0)))
}

// =============================================================================
// Screen
// =============================================================================

func TestScreenAppliesEdits(t *testing.T) {
	ctx := context.Background()
	s := NewScreen()

	for _, r := range "ab.x " {
		s.Observe(keystroke.EventForRune(r, keystroke.SourceHardware))
	}
	require.Equal(t, "ab.x ", s.Text())

	for i := 0; i < 3; i++ {
		require.NoError(t, s.PressRelease(ctx, keystroke.KindBackspace))
	}
	require.NoError(t, s.Type(ctx, "Hi!"))

	assert.Equal(t, "abHi!", s.Text())
	assert.Equal(t, 3, s.Backspaces())
	assert.Len(t, s.Ops(), 4)
}

func TestScreenIgnoresReleases(t *testing.T) {
	s := NewScreen()
	s.Observe(keystroke.EventForRune('a', keystroke.SourceHardware).Released())
	assert.Equal(t, "", s.Text())
}

func TestScreenEchoesSyntheticEvents(t *testing.T) {
	s := NewScreen()
	var echoed []keystroke.Event
	s.Echo(func(ev keystroke.Event) { echoed = append(echoed, ev) })

	require.NoError(t, s.PressRelease(context.Background(), keystroke.KindBackspace))
	require.NoError(t, s.Type(context.Background(), "ok"))

	require.Len(t, echoed, 6)
	for _, ev := range echoed {
		assert.Equal(t, keystroke.SourceSynthetic, ev.Source)
	}
}

func TestScreenFailure(t *testing.T) {
	s := NewScreen()
	boom := errors.New("rejected")
	s.FailWith(boom)

	assert.ErrorIs(t, s.Type(context.Background(), "x"), boom)
	assert.Empty(t, s.Ops())

	s.FailWith(nil)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Type(context.Background(), "x"), ErrClosed)
}
