package protocol

import (
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Options configures a Protocol. All fields are optional.
type Options struct {
	Logger *zap.Logger
	// OnEval receives search progress for the work currently running.
	OnEval func(work *Work, ev Eval)
	// OnBestMove receives the final move of a finished or stopped search.
	OnBestMove func(work *Work, best, ponder string)
}

type option struct {
	name  string
	value string
}

type search struct {
	work          *Work
	stopRequested bool
	// stopSent is false while a requested stop has not been accepted by
	// the channel. It is retried on the next inbound line.
	stopSent bool
}

// Protocol is the UCI state machine. It owns the single source of truth for
// whether a search is running and which engine is on the other side.
//
// Compute may be called before Connected: the latest intent is kept and
// started once the engine reports readyok. The send function passed to
// Connected is called with the protocol lock held, so it must not block
// and must not call back into the Protocol. A line it rejects is dropped,
// except stop, which is sent again once the engine is heard from.
type Protocol struct {
	logger     *zap.Logger
	onEval     func(*Work, Eval)
	onBestMove func(*Work, string, string)

	send       func(string) error
	current    *search
	next       *Work
	sent       map[string]string
	pending    []option
	engineName string
	mu         sync.Mutex
	ready      bool
}

// New creates a Protocol in the uninitialized state.
func New(opts Options) *Protocol {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Protocol{
		logger:     logger,
		onEval:     opts.OnEval,
		onBestMove: opts.OnBestMove,
		sent:       make(map[string]string),
	}
}

// Connected registers the outbound channel to the live engine and starts
// the UCI handshake. Only the first registration takes effect.
func (p *Protocol) Connected(send func(string) error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.send != nil || send == nil {
		return
	}
	p.send = send
	p.sendLocked("uci")
}

// SetOption queues an engine option. It is sent after the handshake, or
// before the next search if the engine is already running.
func (p *Protocol) SetOption(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.pending = append(p.pending, option{name: name, value: value})
	if p.ready && p.current == nil {
		p.flushPendingLocked()
	}
}

// Received handles one inbound engine line. Lines must be delivered in the
// order the engine emitted them.
func (p *Protocol) Received(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	notify := p.receive(line)
	if notify != nil {
		notify()
	}
}

func (p *Protocol) receive(line string) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Debug("uci recv", zap.String("line", line))

	keyword, _, _ := strings.Cut(line, " ")
	if keyword != "bestmove" && p.current != nil && p.current.stopRequested && !p.current.stopSent {
		p.stopLocked()
	}
	switch keyword {
	case "id":
		if name, ok := strings.CutPrefix(line, "id name "); ok && p.engineName == "" {
			p.engineName = strings.TrimSpace(name)
		}

	case "uciok":
		p.setOptionLocked("UCI_AnalyseMode", "true")
		p.setOptionLocked("Analysis Contempt", "Off")
		p.flushPendingLocked()
		p.sendLocked("ucinewgame")
		p.sendLocked("isready")

	case "readyok":
		p.ready = true
		p.swapLocked()

	case "bestmove":
		finished := p.current
		p.current = nil
		p.swapLocked()

		best, ponder, ok := parseBestMoveLine(line)
		if finished == nil || !ok || p.onBestMove == nil {
			return nil
		}
		cb := p.onBestMove
		return func() { cb(finished.work, best, ponder) }

	case "info":
		if p.current == nil || p.current.stopRequested || p.onEval == nil {
			return nil
		}
		ev, ok := parseInfoLine(line)
		if !ok || ev.MultiPV > p.current.work.multiPV() {
			return nil
		}
		work, cb := p.current.work, p.onEval
		return func() { cb(work, ev) }
	}
	return nil
}

// Compute records work as the latest intent. A nil work stops the engine.
// A running search is stopped first; the new one starts only after the
// engine confirmed the stop with bestmove, so at most one search is ever
// active on the channel.
func (p *Protocol) Compute(work *Work) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.next = work
	p.stopLocked()
	p.swapLocked()
}

// IsComputing reports whether a search is running or about to run. It
// turns false as soon as Compute(nil) is called, before the engine confirms.
func (p *Protocol) IsComputing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.next != nil || (p.current != nil && !p.current.stopRequested)
}

// EngineName returns the name from the engine's first id line, or "".
func (p *Protocol) EngineName() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.engineName
}

func (p *Protocol) stopLocked() {
	if p.current == nil {
		return
	}
	p.current.stopRequested = true
	if !p.current.stopSent {
		p.current.stopSent = p.sendLocked("stop") == nil
	}
}

func (p *Protocol) swapLocked() {
	if p.send == nil || !p.ready || p.current != nil {
		return
	}
	work := p.next
	p.next = nil
	if work == nil {
		return
	}

	p.current = &search{work: work}
	p.flushPendingLocked()
	if work.Threads > 0 {
		p.setOptionLocked("Threads", strconv.Itoa(work.Threads))
	}
	if work.HashMB > 0 {
		p.setOptionLocked("Hash", strconv.Itoa(work.HashMB))
	}
	p.setOptionLocked("MultiPV", strconv.Itoa(work.multiPV()))
	if work.Variant != "" {
		p.setOptionLocked("UCI_Variant", work.Variant)
	}
	p.sendLocked(work.positionCommand())
	p.sendLocked(work.Limits.command())
}

func (p *Protocol) flushPendingLocked() {
	for _, opt := range p.pending {
		p.setOptionLocked(opt.name, opt.value)
	}
	p.pending = nil
}

func (p *Protocol) setOptionLocked(name, value string) {
	if prev, ok := p.sent[name]; ok && prev == value {
		return
	}
	p.sent[name] = value
	p.sendLocked("setoption name " + name + " value " + value)
}

func (p *Protocol) sendLocked(line string) error {
	if p.send == nil {
		return nil
	}
	p.logger.Debug("uci send", zap.String("line", line))
	if err := p.send(line); err != nil {
		p.logger.Warn("engine dropped line", zap.String("line", line), zap.Error(err))
		return err
	}
	return nil
}
