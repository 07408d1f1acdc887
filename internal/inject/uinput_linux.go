//go:build linux

package inject

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"dotphrase/internal/keystroke"
)

// uinput ioctl requests (linux/uinput.h)
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiDevSetup   = 0x405c5503
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565

	evSyn     = 0x00
	evKey     = 0x01
	synReport = 0

	busUSB = 0x03

	// highest key code we register on the virtual device
	maxKeyCode = 248
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

// uinputSetup matches struct uinput_setup.
type uinputSetup struct {
	ID           inputID
	Name         [80]byte
	FFEffectsMax uint32
}

// inputEvent matches the Linux input_event struct.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Uinput injects key events through a virtual keyboard created on /dev/uinput.
// The kernel routes its events like a real keyboard, so the evdev reader sees
// them on a separate device that carries Options.DeviceName.
type Uinput struct {
	mu     sync.Mutex
	fd     int
	opts   Options
	closed bool
}

func newPlatformInjector(opts Options) (Injector, error) {
	return OpenUinput(opts)
}

// OpenUinput creates the virtual keyboard.
func OpenUinput(opts Options) (*Uinput, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: open /dev/uinput: %v", ErrNotAvailable, err)
	}

	if err := unix.IoctlSetInt(fd, uiSetEvBit, evKey); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("enable EV_KEY: %w", err)
	}
	for code := 1; code <= maxKeyCode; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, code); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("enable key %d: %w", code, err)
		}
	}

	setup := uinputSetup{
		ID: inputID{Bustype: busUSB, Vendor: 0x4450, Product: 0x0001, Version: 1},
	}
	copy(setup.Name[:len(setup.Name)-1], opts.DeviceName)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("setup uinput device: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uiDevCreate, 0); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("create uinput device: %w", errno)
	}

	if opts.SettleDelay > 0 {
		time.Sleep(opts.SettleDelay)
	}

	return &Uinput{fd: fd, opts: opts}, nil
}

// SetKeyDelay changes the pause between synthetic key events.
func (u *Uinput) SetKeyDelay(d time.Duration) {
	u.mu.Lock()
	u.opts.KeyDelay = d
	u.mu.Unlock()
}

// PressRelease presses and releases a named key.
func (u *Uinput) PressRelease(ctx context.Context, key keystroke.Kind) error {
	code, ok := keystroke.KeyForKind(key)
	if !ok {
		return fmt.Errorf("no key code for %v", key)
	}
	return u.run(ctx, []keyStep{{code, true}, {code, false}})
}

// Type injects text. The whole string is checked before the first event is
// written, so an unmappable rune never leaves half-typed text behind.
func (u *Uinput) Type(ctx context.Context, text string) error {
	u.mu.Lock()
	mode := u.opts.Unicode
	u.mu.Unlock()

	steps, err := planText(text, mode)
	if err != nil {
		return err
	}
	return u.run(ctx, steps)
}

func (u *Uinput) run(ctx context.Context, steps []keyStep) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return ErrClosed
	}
	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		value := int32(0)
		if s.pressed {
			value = 1
		}
		if err := u.emit(evKey, s.code, value); err != nil {
			return err
		}
		if err := u.emit(evSyn, synReport, 0); err != nil {
			return err
		}
		if u.opts.KeyDelay > 0 {
			time.Sleep(u.opts.KeyDelay)
		}
	}
	return nil
}

func (u *Uinput) emit(typ, code uint16, value int32) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, inputEvent{Type: typ, Code: code, Value: value}); err != nil {
		return err
	}
	for {
		_, err := unix.Write(u.fd, buf.Bytes())
		if err == unix.EAGAIN || err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("write uinput event: %w", err)
		}
		return nil
	}
}

// Close destroys the virtual keyboard.
func (u *Uinput) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return nil
	}
	u.closed = true
	unix.Syscall(unix.SYS_IOCTL, uintptr(u.fd), uiDevDestroy, 0)
	return unix.Close(u.fd)
}
