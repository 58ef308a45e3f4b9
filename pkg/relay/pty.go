package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/creack/pty"
	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
	"github.com/srg/pmdrelay/internal/groutine"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// PTYBufferSize is the capacity of the outbox between the relay and the PTY
// master, in bytes. At 130 Hz this holds about four minutes of samples.
const PTYBufferSize = 64 << 10

// ptyPollTimeoutMs bounds each wait for the master to become writable, so the
// writer notices Close.
const ptyPollTimeoutMs = 100

// errReaderBehind is returned when the outbox cannot take a chunk because
// nobody is draining the slave side.
var errReaderBehind = errors.New("pty reader not keeping up")

// PTYTarget exposes the relay stream on the slave side of a pseudo-terminal.
// Consumers open TTYName (or the symlink) and read raw bytes.
//
// Writes never block: chunks are queued in an outbox drained by a writer
// goroutine. A chunk that does not fit is dropped whole, so the stream stays
// aligned on sample boundaries.
type PTYTarget struct {
	master  *os.File
	fd      int
	slave   *os.File
	link    string
	outbox  *ringbuffer.RingBuffer
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closed  atomic.Bool
	behind  atomic.Bool
	dropped atomic.Uint64
	once    sync.Once
	logger  *logrus.Logger
	ttyName string
}

// OpenPTY creates a raw-mode pseudo-terminal pair. When link is not empty a
// symlink to the slave device is created there, replacing any existing link.
func OpenPTY(link string, logger *logrus.Logger) (*PTYTarget, error) {
	if logger == nil {
		logger = logrus.New()
	}
	master, slave, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to create PTY (check permissions and available PTY devices): %w", err)
	}

	// Raw mode keeps the binary stream free of line discipline rewrites.
	if _, err := term.MakeRaw(int(slave.Fd())); err != nil {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, fmt.Errorf("failed to set PTY %s to raw mode: %w", name, err)
	}

	// Fd switches the file to blocking mode, so it is taken once, before SetNonblock.
	fd := int(master.Fd())
	if err := syscall.SetNonblock(fd, true); err != nil {
		name := slave.Name()
		_ = master.Close()
		_ = slave.Close()
		return nil, fmt.Errorf("failed to set PTY %s to non-blocking mode: %w", name, err)
	}

	p := &PTYTarget{
		master:  master,
		fd:      fd,
		slave:   slave,
		outbox:  ringbuffer.New(PTYBufferSize),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		logger:  logger,
		ttyName: slave.Name(),
	}
	p.wg.Add(1)
	groutine.Go(context.Background(), "relay-pty-writer", func(context.Context) {
		defer p.wg.Done()
		p.writeLoop()
	})
	if link != "" {
		if err := os.Remove(link); err != nil && !errors.Is(err, os.ErrNotExist) {
			_ = p.Close()
			return nil, fmt.Errorf("failed to replace PTY link %s: %w", link, err)
		}
		if err := os.Symlink(p.ttyName, link); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("failed to link PTY %s to %s: %w", p.ttyName, link, err)
		}
		p.link = link
	}

	logger.WithFields(logrus.Fields{
		"tty":  p.ttyName,
		"link": link,
	}).Info("Relay PTY opened")
	return p, nil
}

// TTYName returns the slave device path, e.g. /dev/pts/5.
func (p *PTYTarget) TTYName() string {
	return p.ttyName
}

// Dropped returns how many bytes were discarded because the outbox was full.
func (p *PTYTarget) Dropped() uint64 {
	return p.dropped.Load()
}

// Write queues b for the writer goroutine. When the outbox cannot hold all of
// b nothing is queued and an ErrUnavailable error is returned; the target
// itself stays open.
func (p *PTYTarget) Write(b []byte) (int, error) {
	if p.closed.Load() {
		return 0, ErrUnavailable
	}
	if len(b) == 0 {
		return 0, nil
	}
	if p.outbox.Free() < len(b) {
		p.dropped.Add(uint64(len(b)))
		if !p.behind.Swap(true) {
			p.logger.WithFields(logrus.Fields{
				"tty":   p.ttyName,
				"bytes": len(b),
			}).Warn("PTY reader is not keeping up, dropping relay data")
		}
		return 0, fmt.Errorf("%w: %w", ErrUnavailable, errReaderBehind)
	}
	n, err := p.outbox.Write(b)
	if err != nil {
		return n, fmt.Errorf("queue PTY bytes: %w", err)
	}
	if p.behind.Swap(false) {
		p.logger.WithFields(logrus.Fields{
			"tty":     p.ttyName,
			"dropped": p.dropped.Load(),
		}).Info("PTY reader caught up")
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return n, nil
}

// Flush is a no-op: queued bytes belong to the writer goroutine.
func (p *PTYTarget) Flush() error {
	if p.closed.Load() {
		return ErrUnavailable
	}
	return nil
}

func (p *PTYTarget) writeLoop() {
	pollFd := []unix.PollFd{{Fd: int32(p.fd), Events: unix.POLLOUT}}
	buf := make([]byte, 4096)
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for {
			n, err := p.outbox.TryRead(buf)
			if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
				p.logger.WithError(err).Warn("PTY outbox read failed")
			}
			if n == 0 {
				break
			}
			if !p.writeAll(buf[:n], pollFd) {
				return
			}
		}
	}
}

// writeAll hands b to the master, waiting for room as needed. It reports false
// once the target is closing or the master failed.
func (p *PTYTarget) writeAll(b []byte, pollFd []unix.PollFd) bool {
	for len(b) > 0 {
		n, err := p.master.Write(b)
		b = b[n:]
		switch {
		case err == nil:
		case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EINTR):
			select {
			case <-p.done:
				return false
			default:
			}
			if _, perr := unix.Poll(pollFd, ptyPollTimeoutMs); perr != nil && !errors.Is(perr, syscall.EINTR) {
				p.logger.WithError(perr).Debug("PTY poll failed")
			}
		default:
			if !p.closed.Swap(true) {
				p.logger.WithFields(logrus.Fields{
					"tty":   p.ttyName,
					"error": err,
				}).Warn("PTY write failed, relay target closed")
			}
			return false
		}
	}
	return true
}

func (p *PTYTarget) Close() error {
	var errs []error
	p.once.Do(func() {
		p.closed.Store(true)
		close(p.done)
		if p.link != "" {
			if err := os.Remove(p.link); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove link: %w", err))
			}
		}
		if err := p.master.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close PTY(ptmx): %w", err))
		}
		if err := p.slave.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close PTY(tty): %w", err))
		}
		p.wg.Wait()
		p.logger.WithField("tty", p.ttyName).Debug("Relay PTY closed")
	})
	return errors.Join(errs...)
}

func (p *PTYTarget) Closed() bool {
	return p.closed.Load()
}

func (p *PTYTarget) String() string {
	return "pty://" + p.ttyName
}
