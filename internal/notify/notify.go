// Package notify sends desktop notifications for failures the user would
// otherwise only see in the log.
package notify

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/godbus/dbus/v5"

	"github.com/vaultos/vaultwm/internal/logger"
)

// Freedesktop notification service
const (
	notifyService   = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
	notifyInterface = "org.freedesktop.Notifications"
)

// AppName is reported as the sending application
const AppName = "VaultWM"

// MaxBodyLength caps the body in runes
const MaxBodyLength = 200

// DefaultTimeout is the expiry in milliseconds
const DefaultTimeout = 5000

// Notifier delivers a short message to the user
type Notifier interface {
	Notify(summary, body string) error
	Close() error
}

// Nop discards every notification
type Nop struct{}

func (Nop) Notify(string, string) error { return nil }
func (Nop) Close() error                { return nil }

// caller is the part of dbus.BusObject used here
type caller interface {
	Call(method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// DBusNotifier talks to the notification daemon on the session bus
type DBusNotifier struct {
	conn *dbus.Conn
	obj  caller

	mu     sync.Mutex
	lastID uint32
}

// NewDBusNotifier connects to the session bus and checks that a
// notification daemon owns its name
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to list D-Bus names: %w", err)
	}
	found := false
	for _, name := range names {
		if name == notifyService {
			found = true
			break
		}
	}
	if !found {
		conn.Close()
		return nil, fmt.Errorf("notification service not found on D-Bus")
	}

	return &DBusNotifier{
		conn: conn,
		obj:  conn.Object(notifyService, dbus.ObjectPath(notifyPath)),
	}, nil
}

// New returns a D-Bus notifier when enabled, or Nop when disabled or no
// notification daemon is reachable
func New(enabled bool) Notifier {
	if !enabled {
		return Nop{}
	}
	n, err := NewDBusNotifier()
	if err != nil {
		logger.WithComponent("notify").Warn().Err(err).Msg("Desktop notifications unavailable")
		return Nop{}
	}
	return n
}

// Notify shows summary and body, replacing the previous notification so
// a burst of failures does not stack up
func (n *DBusNotifier) Notify(summary, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	call := n.obj.Call(notifyInterface+".Notify", 0,
		AppName,
		n.lastID,
		"",
		summary,
		Truncate(body, MaxBodyLength),
		[]string{},
		map[string]dbus.Variant{},
		int32(DefaultTimeout),
	)
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	n.lastID = id
	return nil
}

// Close releases the bus connection
func (n *DBusNotifier) Close() error {
	if n.conn == nil {
		return nil
	}
	err := n.conn.Close()
	n.conn = nil
	return err
}

// Truncate shortens s to at most limit runes, marking the cut with "..."
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= 3 {
		return string([]rune(s)[:limit])
	}
	return string([]rune(s)[:limit-3]) + "..."
}
