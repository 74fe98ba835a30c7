package notify

import (
	"errors"
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	calls [][]interface{}
	id    uint32
	err   error
}

func (f *fakeBus) Call(method string, _ dbus.Flags, args ...interface{}) *dbus.Call {
	f.calls = append(f.calls, append([]interface{}{method}, args...))
	if f.err != nil {
		return &dbus.Call{Err: f.err}
	}
	f.id++
	return &dbus.Call{Body: []interface{}{f.id}}
}

func TestNotifyReplacesPrevious(t *testing.T) {
	bus := &fakeBus{id: 40}
	n := &DBusNotifier{obj: bus}

	require.NoError(t, n.Notify("Launch rejected", "unsafe command"))
	require.NoError(t, n.Notify("Reload failed", "bad file"))
	require.Len(t, bus.calls, 2)

	first, second := bus.calls[0], bus.calls[1]
	require.Equal(t, notifyInterface+".Notify", first[0])
	require.Equal(t, AppName, first[1])
	require.Equal(t, uint32(0), first[2])
	require.Equal(t, "Launch rejected", first[4])
	require.Equal(t, "unsafe command", first[5])
	require.Equal(t, int32(DefaultTimeout), first[8])

	// second call replaces the id returned by the first
	require.Equal(t, uint32(41), second[2])
	require.NoError(t, n.Close())
}

func TestNotifyError(t *testing.T) {
	n := &DBusNotifier{obj: &fakeBus{err: errors.New("no daemon")}}
	require.ErrorContains(t, n.Notify("x", "y"), "no daemon")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 10))
	require.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	require.Equal(t, "ab", Truncate("abcdef", 2))
	require.Equal(t, MaxBodyLength, len([]rune(Truncate(strings.Repeat("é", 500), MaxBodyLength))))
}

func TestNewDisabled(t *testing.T) {
	n := New(false)
	require.Equal(t, Nop{}, n)
	require.NoError(t, n.Notify("a", "b"))
	require.NoError(t, n.Close())
}
