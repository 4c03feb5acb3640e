package sandbox

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/ceval/errors"
)

const (
	outboundQueueSize = 256
	maxLineSize       = 1024 * 1024
)

// Handle is the duplex line channel to a running engine.
type Handle interface {
	// Post queues one line for the engine. It never blocks.
	Post(line string) error
	// Listen registers the inbound line callback. Only one callback is
	// active; a later call replaces the earlier one.
	Listen(fn func(line string))
}

// Engine is a running engine.
type Engine interface {
	Handle
	// ListenErrors registers the callback for diagnostic lines.
	ListenErrors(fn func(line string))
	// Done is closed when the engine has exited.
	Done() <-chan struct{}
	// Err returns the exit error once Done is closed.
	Err() error
	// Close stops the engine and releases its resources.
	Close(ctx context.Context) error
}

// channel implements the line plumbing shared by Instance and Process.
type channel struct {
	w      io.Writer
	logger *zap.Logger
	out    chan string
	closed chan struct{}
	done   chan struct{}
	exit   error
	name   string

	lines  lineSink
	errs   lineSink
	exitMu sync.Mutex

	closeOnce sync.Once
}

func newChannel(name string, w io.Writer, logger *zap.Logger) *channel {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &channel{
		w:      w,
		logger: logger.With(zap.String("engine", name)),
		out:    make(chan string, outboundQueueSize),
		closed: make(chan struct{}),
		done:   make(chan struct{}),
		name:   name,
	}
	go c.writeLoop()
	return c
}

func (c *channel) Post(line string) error {
	select {
	case <-c.closed:
		return errors.Closed(c.name)
	default:
	}

	select {
	case c.out <- line:
		return nil
	case <-c.closed:
		return errors.Closed(c.name)
	default:
		return errors.QueueFull(c.name, len(c.out))
	}
}

func (c *channel) Listen(fn func(line string)) {
	c.lines.listen(fn)
}

func (c *channel) ListenErrors(fn func(line string)) {
	c.errs.listen(fn)
}

func (c *channel) Done() <-chan struct{} {
	return c.done
}

func (c *channel) Err() error {
	c.exitMu.Lock()
	defer c.exitMu.Unlock()
	return c.exit
}

func (c *channel) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
}

func (c *channel) finish(err error) {
	c.exitMu.Lock()
	c.exit = err
	c.exitMu.Unlock()
	c.shutdown()
	close(c.done)
}

func (c *channel) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case line := <-c.out:
			if _, err := io.WriteString(c.w, line+"\n"); err != nil {
				c.logger.Warn("engine write failed", zap.Error(err))
				c.shutdown()
				return
			}
		}
	}
}

// readLines delivers every line of r to sink until r is exhausted.
func readLines(r io.Reader, sink *lineSink, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		sink.deliver(line)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn("engine read failed", zap.Error(err))
	}
}

// lineSink hands lines to a callback in arrival order, holding them until
// a callback is registered.
type lineSink struct {
	fn      func(string)
	backlog []string
	mu      sync.Mutex
}

func (s *lineSink) listen(fn func(string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fn = fn
	if fn == nil {
		return
	}
	backlog := s.backlog
	s.backlog = nil
	for _, line := range backlog {
		fn(line)
	}
}

func (s *lineSink) deliver(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fn == nil {
		s.backlog = append(s.backlog, line)
		return
	}
	s.fn(line)
}
