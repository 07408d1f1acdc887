//go:build linux

package keystroke

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// LinuxSource reads key events from /dev/input on Linux.
type LinuxSource struct {
	baseSource
	opts    Options
	devices []Device
	wg      sync.WaitGroup
}

// Device is an input device that reports key events.
type Device struct {
	Path string
	Name string
}

func newPlatformSource(opts Options) Source {
	return &LinuxSource{opts: opts}
}

// Available checks if we can read input devices.
func (l *LinuxSource) Available() (bool, string) {
	devices, err := l.resolveDevices()
	if err != nil {
		return false, fmt.Sprintf("cannot find keyboard devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard devices found"
	}

	// Check if we can read at least one device
	for _, dev := range devices {
		fd, err := unix.Open(dev.Path, unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err == nil {
			unix.Close(fd)
			return true, fmt.Sprintf("found keyboard device: %s (%s)", dev.Path, dev.Name)
		}
	}

	return false, "cannot read keyboard devices (need to be in 'input' group or run as root)"
}

func (l *LinuxSource) resolveDevices() ([]Device, error) {
	if len(l.opts.Devices) > 0 {
		devices := make([]Device, 0, len(l.opts.Devices))
		for _, p := range l.opts.Devices {
			devices = append(devices, Device{Path: p, Name: deviceName(p)})
		}
		return devices, nil
	}
	return FindKeyboards()
}

// FindKeyboards finds /dev/input devices that are keyboards.
func FindKeyboards() ([]Device, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseDeviceList(bufio.NewScanner(f)), nil
}

// parseDeviceList reads the /proc/bus/input/devices format. A device is a
// keyboard when it has a kbd handler and reports EV_KEY with a wide key bitmap.
func parseDeviceList(scanner *bufio.Scanner) []Device {
	var devices []Device
	var current Device
	hasKbd := false
	hasKeys := false

	flush := func() {
		if hasKbd && hasKeys && current.Path != "" {
			devices = append(devices, current)
		}
		current = Device{}
		hasKbd = false
		hasKeys = false
	}

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "N: Name="):
			current.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if part == "kbd" {
					hasKbd = true
				}
				if strings.HasPrefix(part, "event") {
					current.Path = "/dev/input/" + part
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			// Mice and power buttons have a handful of key bits; keyboards have many words.
			if len(strings.Fields(strings.TrimPrefix(line, "B: KEY="))) >= 4 {
				hasKeys = true
			}
		case line == "":
			flush()
		}
	}
	flush()
	return devices
}

// deviceName reads the kernel name of an event device from sysfs.
func deviceName(path string) string {
	data, err := os.ReadFile(filepath.Join("/sys/class/input", filepath.Base(path), "device/name"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Start begins reading keyboard events from every detected keyboard.
func (l *LinuxSource) Start(ctx context.Context) (<-chan Event, error) {
	devices, err := l.resolveDevices()
	if err != nil || len(devices) == 0 {
		return nil, ErrNotAvailable
	}

	type opened struct {
		dev Device
		fd  int
	}
	var fds []opened
	for _, dev := range devices {
		fd, err := unix.Open(dev.Path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			continue
		}
		fds = append(fds, opened{dev: dev, fd: fd})
	}
	if len(fds) == 0 {
		return nil, ErrPermissionDenied
	}

	runCtx, err := l.begin(ctx)
	if err != nil {
		for _, o := range fds {
			unix.Close(o.fd)
		}
		return nil, err
	}

	l.devices = devices
	ch := make(chan Event, l.opts.Buffer)
	for _, o := range fds {
		l.wg.Add(1)
		go l.readLoop(runCtx, o.fd, o.dev, ch)
	}
	go func() {
		l.wg.Wait()
		close(ch)
	}()

	return ch, nil
}

// inputEvent matches the Linux input_event struct.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

const (
	evKey      = 1
	keyRelease = 0
	keyPress   = 1
	keyRepeat  = 2

	pollInterval = 100 // milliseconds
)

func (l *LinuxSource) readLoop(ctx context.Context, fd int, dev Device, ch chan<- Event) {
	defer l.wg.Done()
	defer unix.Close(fd)

	source := SourceHardware
	for _, name := range l.opts.SyntheticDevices {
		if name != "" && dev.Name == name {
			source = SourceSynthetic
		}
	}

	eventSize := binary.Size(inputEvent{})
	buf := make([]byte, eventSize*64)
	var mods Modifiers
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}

	for {
		if ctx.Err() != nil {
			return
		}

		// Poll with a timeout so cancellation is observed between reads
		n, err := unix.Poll(pfd, pollInterval)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		if n == 0 {
			continue
		}
		if pfd[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			// Device unplugged
			return
		}

		n, err = unix.Read(fd, buf)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}

		for off := 0; off+eventSize <= n; off += eventSize {
			raw := buf[off : off+eventSize]
			// type, code and value are the trailing 8 bytes after the timeval
			typ := binary.LittleEndian.Uint16(raw[eventSize-8 : eventSize-6])
			code := binary.LittleEndian.Uint16(raw[eventSize-6 : eventSize-4])
			value := int32(binary.LittleEndian.Uint32(raw[eventSize-4 : eventSize]))

			if typ != evKey {
				continue
			}
			ev, ok := decodeKey(code, value, &mods)
			if !ok {
				continue
			}
			ev.Source = source
			ev.Device = dev.Name

			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

// decodeKey turns one EV_KEY record into an Event, tracking modifier state.
func decodeKey(code uint16, value int32, mods *Modifiers) (Event, bool) {
	var action Action
	switch value {
	case keyPress, keyRepeat:
		action = ActionPress
	case keyRelease:
		action = ActionRelease
	default:
		return Event{}, false
	}
	if value != keyRepeat {
		mods.Update(code, action == ActionPress)
	}

	kind, r := Classify(code, *mods)
	return Event{
		Timestamp: time.Now(),
		Action:    action,
		Kind:      kind,
		Char:      r,
		Code:      code,
		IsRepeat:  value == keyRepeat,
	}, true
}

// Stop stops reading and waits for the device readers to exit.
func (l *LinuxSource) Stop() error {
	if !l.end() {
		return nil
	}
	l.wg.Wait()
	return nil
}

// Devices returns the devices opened by the last Start.
func (l *LinuxSource) Devices() []Device {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Device(nil), l.devices...)
}
