// Package ipc implements the named-pipe command channel.
package ipc

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"
)

// MaxCommandLength bounds one command message, newline excluded
const MaxCommandLength = 256

// Recognized commands
const (
	CmdQuit            = "quit"
	CmdReload          = "reload"
	CmdWorkspace       = "workspace"
	CmdMoveToWorkspace = "move_to_workspace"
	CmdFocusNext       = "focus_next"
	CmdFocusPrev       = "focus_prev"
	CmdCloseWindow     = "close_window"
	CmdToggleFloat     = "toggle_float"
	CmdToggleLayout    = "toggle_layout"
	CmdGetStatus       = "get_status"
)

// Commands is the whitelist of accepted command names
var Commands = []string{
	CmdQuit, CmdReload, CmdWorkspace, CmdMoveToWorkspace, CmdFocusNext,
	CmdFocusPrev, CmdCloseWindow, CmdToggleFloat, CmdToggleLayout, CmdGetStatus,
}

// Replies sent for rejected or executed commands
const (
	ReplyInvalidFormat = "ERROR: Invalid command format"
	ReplyParseFailed   = "ERROR: Failed to parse command"
	ReplyNotAllowed    = "ERROR: Command not allowed"
	ReplyExecuted      = "OK: Command executed"
)

var (
	// ErrInvalidFormat covers empty, overlong or control-character input
	ErrInvalidFormat = errors.New("invalid command format")
	// ErrParse is returned when the command word cannot be extracted
	ErrParse = errors.New("failed to parse command")
	// ErrUnknownCommand is returned for commands outside the whitelist
	ErrUnknownCommand = errors.New("command not allowed")
)

// Command is a decoded message
type Command struct {
	Name string
	Args string
}

func (c Command) String() string {
	if c.Args == "" {
		return c.Name
	}
	return c.Name + " " + c.Args
}

// Validate checks length and allows printable ASCII only. The trailing
// CR/LF terminator must already be stripped.
func Validate(input string) error {
	if len(input) == 0 || len(input) >= MaxCommandLength {
		return fmt.Errorf("%w: length %d", ErrInvalidFormat, len(input))
	}
	for _, r := range input {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			return fmt.Errorf("%w: character %U", ErrInvalidFormat, r)
		}
	}
	return nil
}

// Split separates the command word from its arguments at the first
// space, skipping any further spaces before the arguments.
func Split(input string) (Command, error) {
	name, args, _ := strings.Cut(input, " ")
	if name == "" {
		return Command{}, fmt.Errorf("%w: missing command word", ErrParse)
	}
	return Command{Name: name, Args: strings.TrimLeft(args, " ")}, nil
}

// Parse strips trailing CR/LF, validates, splits and checks the whitelist
func Parse(input string) (Command, error) {
	input = strings.TrimRight(input, "\r\n")
	if err := Validate(input); err != nil {
		return Command{}, err
	}
	cmd, err := Split(input)
	if err != nil {
		return Command{}, err
	}
	if !slices.Contains(Commands, cmd.Name) {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Name)
	}
	return cmd, nil
}

// ReplyFor maps a Parse error to the reply sent back
func ReplyFor(err error) string {
	switch {
	case err == nil:
		return ReplyExecuted
	case errors.Is(err, ErrInvalidFormat):
		return ReplyInvalidFormat
	case errors.Is(err, ErrParse):
		return ReplyParseFailed
	case errors.Is(err, ErrUnknownCommand):
		return ReplyNotAllowed
	}
	return "ERROR: " + err.Error()
}

// OK formats a success reply carrying a message
func OK(msg string) string {
	return "OK: " + msg
}

// Error formats a failure reply
func Error(err error) string {
	return "ERROR: " + err.Error()
}
