// Package launch validates and starts detached application commands.
package launch

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/vaultos/vaultwm/internal/logger"
)

// FallbackSeparator joins a command and the one to try when it fails
const FallbackSeparator = "||"

// Shell runs commands that contain a fallback
const Shell = "/bin/sh"

// punctuation accepted in addition to letters, digits and spaces
const allowedPunct = "-_./:=,+@%~"

// ErrUnsafeCommand is returned for commands outside the accepted character set
var ErrUnsafeCommand = errors.New("unsafe command")

// Validate checks a single command (no fallback separator) against the
// accepted character set.
func Validate(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("%w: empty", ErrUnsafeCommand)
	}
	for _, r := range command {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == ' ':
		case strings.ContainsRune(allowedPunct, r):
		default:
			return fmt.Errorf("%w: character %q in %q", ErrUnsafeCommand, r, command)
		}
	}
	return nil
}

// Split breaks command at fallback separators and validates every part.
// A single part means no shell is needed.
func Split(command string) ([]string, error) {
	parts := strings.Split(command, FallbackSeparator)
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if err := Validate(p); err != nil {
			return nil, err
		}
		parts[i] = p
	}
	return parts, nil
}

// Build turns a command string into a detached process description.
// Commands with a fallback go through the shell; anything else is
// tokenized and executed directly.
func Build(command string) (*exec.Cmd, error) {
	parts, err := Split(command)
	if err != nil {
		return nil, err
	}

	var cmd *exec.Cmd
	if len(parts) > 1 {
		cmd = exec.Command(Shell, "-c", strings.Join(parts, " "+FallbackSeparator+" "))
	} else {
		argv := strings.Fields(parts[0])
		cmd = exec.Command(argv[0], argv[1:]...)
	}
	// own session so the child outlives whatever terminal started us
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd, nil
}

// Start validates and launches command without waiting for it. The
// child is reaped in the background.
func Start(command string) error {
	log := logger.WithComponent("launcher")

	cmd, err := Build(command)
	if err != nil {
		log.Warn().Err(err).Str("command", command).Msg("Rejected launch")
		return err
	}
	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("command", command).Msg("Launch failed")
		return fmt.Errorf("failed to start %q: %w", command, err)
	}

	log.Info().Str("command", command).Int("pid", cmd.Process.Pid).Msg("Launched")
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Str("command", command).Msg("Launched process exited")
		}
	}()
	return nil
}
