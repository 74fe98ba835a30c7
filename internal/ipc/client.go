package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrNoServer is returned when no window manager is reading the FIFO
	ErrNoServer = errors.New("no window manager is listening")
	// ErrInUse is returned by Listen when another window manager is
	// reading the FIFO
	ErrInUse = errors.New("command channel already in use")
)

// Send writes one command to the FIFO at path and waits up to timeout for
// the reply.
func Send(path, command string, timeout time.Duration) (string, error) {
	if _, err := Parse(command); err != nil {
		return "", err
	}

	// O_RDWR so the read end does not report EOF before the server writes
	replies, err := os.OpenFile(ReplyPath(path), os.O_RDWR, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNoServer, path)
		}
		return "", fmt.Errorf("failed to open reply channel: %w", err)
	}
	defer replies.Close()

	fifo, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ENXIO) || os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNoServer, path)
		}
		return "", fmt.Errorf("failed to open command channel: %w", err)
	}
	_, err = fifo.WriteString(strings.TrimRight(command, "\r\n") + "\n")
	fifo.Close()
	if err != nil {
		return "", fmt.Errorf("failed to send command: %w", err)
	}

	if err := replies.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("failed to set reply deadline: %w", err)
	}
	line, err := bufio.NewReader(replies).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("no reply: %w", err)
	}
	return strings.TrimRight(line, "\n"), nil
}
