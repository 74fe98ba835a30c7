package ipc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/vaultos/vaultwm/internal/logger"
)

// Request is a decoded command waiting for the control loop. The loop
// must send exactly one reply.
type Request struct {
	Command Command
	Reply   chan<- string
}

// Server reads commands from a FIFO and forwards them as requests
type Server struct {
	path      string
	replyPath string
	fifo      *os.File
	requests  chan Request
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ReplyPath returns the reply FIFO paired with a command FIFO
func ReplyPath(path string) string {
	return path + ".reply"
}

// Listen creates the command and reply FIFOs with owner-only permissions
// and starts reading.
func Listen(path string) (*Server, error) {
	s := &Server{
		path:      path,
		replyPath: ReplyPath(path),
		requests:  make(chan Request),
		done:      make(chan struct{}),
	}

	if err := checkUnused(s.path); err != nil {
		return nil, err
	}
	for _, p := range []string{s.path, s.replyPath} {
		if err := makeFIFO(p); err != nil {
			return nil, err
		}
	}

	// O_RDWR keeps a writer attached so reads never see EOF between clients
	f, err := os.OpenFile(s.path, os.O_RDWR, 0)
	if err != nil {
		os.Remove(s.path)
		os.Remove(s.replyPath)
		return nil, fmt.Errorf("failed to open command FIFO: %w", err)
	}
	s.fifo = f

	s.wg.Add(1)
	go s.readLoop()

	logger.WithComponent("ipc").Info().Str("path", s.path).Msg("Command channel listening")
	return s, nil
}

// checkUnused fails when path is a FIFO that another process is still
// reading. Opening the write end without blocking only succeeds while a
// reader is attached.
func checkUnused(path string) error {
	st, err := os.Stat(path)
	if err != nil || st.Mode().Type() != os.ModeNamedPipe {
		return nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		return nil
	}
	f.Close()
	return fmt.Errorf("%w: %s", ErrInUse, path)
}

func makeFIFO(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale %s: %w", path, err)
	}
	if err := unix.Mkfifo(path, 0o600); err != nil {
		return fmt.Errorf("failed to create FIFO %s: %w", path, err)
	}
	// umask may have narrowed the mode; make it exact
	if err := os.Chmod(path, 0o600); err != nil {
		os.Remove(path)
		return fmt.Errorf("failed to set FIFO permissions: %w", err)
	}
	return nil
}

// Path returns the command FIFO path
func (s *Server) Path() string {
	return s.path
}

// Requests delivers decoded commands to the control loop
func (s *Server) Requests() <-chan Request {
	return s.requests
}

// Close stops reading and removes both FIFOs. Safe to call twice.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.fifo.Close()
		s.wg.Wait()
		if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.Join(err, rmErr)
		}
		if rmErr := os.Remove(s.replyPath); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.Join(err, rmErr)
		}
	})
	return err
}

func (s *Server) readLoop() {
	defer s.wg.Done()
	log := logger.WithComponent("ipc")
	r := bufio.NewReaderSize(s.fifo, MaxCommandLength+2)

	for {
		line, tooLong, err := readLine(r)
		if err != nil {
			select {
			case <-s.done:
			default:
				log.Error().Err(err).Msg("Command channel read failed")
			}
			return
		}
		if tooLong {
			log.Warn().Msg("Rejected overlong command")
			s.reply(ReplyInvalidFormat)
			continue
		}
		if line == "" {
			continue
		}

		cmd, err := Parse(line)
		if err != nil {
			log.Warn().Err(err).Msg("Rejected command")
			s.reply(ReplyFor(err))
			continue
		}

		replies := make(chan string, 1)
		select {
		case s.requests <- Request{Command: cmd, Reply: replies}:
		case <-s.done:
			return
		}
		select {
		case resp := <-replies:
			s.reply(resp)
		case <-s.done:
			return
		}
	}
}

// readLine returns the next line without its terminator. Lines longer
// than the reader's buffer are consumed and reported as tooLong.
func readLine(r *bufio.Reader) (string, bool, error) {
	line, err := r.ReadSlice('\n')
	if err == nil {
		return string(line[:len(line)-1]), false, nil
	}
	if !errors.Is(err, bufio.ErrBufferFull) {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return string(line), false, nil
		}
		return "", false, err
	}
	for errors.Is(err, bufio.ErrBufferFull) {
		_, err = r.ReadSlice('\n')
	}
	if err != nil {
		return "", false, err
	}
	return "", true, nil
}

// reply writes resp to the reply FIFO if a client is listening; it is
// always logged.
func (s *Server) reply(resp string) {
	log := logger.WithComponent("ipc")
	log.Info().Str("reply", resp).Msg("Command reply")

	f, err := os.OpenFile(s.replyPath, os.O_WRONLY|syscall.O_NONBLOCK, 0)
	if err != nil {
		// ENXIO: nobody has the reply end open
		if !errors.Is(err, syscall.ENXIO) {
			log.Debug().Err(err).Msg("Reply channel unavailable")
		}
		return
	}
	defer f.Close()
	if _, err := f.WriteString(resp + "\n"); err != nil {
		log.Debug().Err(err).Msg("Failed to write reply")
	}
}
