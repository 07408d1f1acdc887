// Package notify shows desktop notifications for events the user cannot
// otherwise see, such as an expansion that failed to type.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Notifier delivers a short message to the user.
type Notifier interface {
	Notify(ctx context.Context, summary, body string) error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }

const (
	notificationsName   = "org.freedesktop.Notifications"
	notificationsPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notificationsMethod = notificationsName + ".Notify"
)

// DBus sends notifications through org.freedesktop.Notifications on the
// session bus.
type DBus struct {
	conn    *dbus.Conn
	appName string
	timeout int32

	mu     sync.Mutex
	lastID uint32
}

// NewDBus connects to the session bus.
func NewDBus(appName string, timeoutMs int32) (*DBus, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return NewDBusWithConn(conn, appName, timeoutMs), nil
}

// NewDBusWithConn uses an existing bus connection.
func NewDBusWithConn(conn *dbus.Conn, appName string, timeoutMs int32) *DBus {
	return &DBus{conn: conn, appName: appName, timeout: timeoutMs}
}

// Notify replaces the previous notification from this process so repeated
// failures do not stack up.
func (d *DBus) Notify(ctx context.Context, summary, body string) error {
	d.mu.Lock()
	replaces := d.lastID
	d.mu.Unlock()

	obj := d.conn.Object(notificationsName, notificationsPath)
	call := obj.CallWithContext(ctx, notificationsMethod, 0,
		d.appName,
		replaces,
		"dialog-warning",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		d.timeout,
	)
	if call.Err != nil {
		return fmt.Errorf("send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err == nil {
		d.mu.Lock()
		d.lastID = id
		d.mu.Unlock()
	}
	return nil
}

// Close closes the bus connection.
func (d *DBus) Close() error {
	return d.conn.Close()
}

// Recorder keeps notifications in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Message is one recorded notification.
type Message struct {
	Summary string
	Body    string
}

func (r *Recorder) Notify(_ context.Context, summary, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Summary: summary, Body: body})
	return nil
}

// Messages returns a copy of what was recorded.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
