package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/ceval"
	"github.com/wippyai/ceval/errors"
	"github.com/wippyai/ceval/protocol"
	"github.com/wippyai/ceval/sandbox"
)

// Options configures a Controller. All fields are optional.
type Options struct {
	Logger *zap.Logger
	// Name identifies the engine in logs and errors until it announces itself.
	Name string
	// OnFailure is called once, from the boot goroutine, when the engine
	// fails.
	OnFailure func(err error)
	// OnEval and OnBestMove are passed through to the Protocol.
	OnEval     func(work *protocol.Work, ev protocol.Eval)
	OnBestMove func(work *protocol.Work, best, ponder string)
}

// Controller drives one engine through its Strategy and exposes it as a
// ceval.Worker.
type Controller struct {
	strategy  Strategy
	proto     *protocol.Protocol
	logger    *zap.Logger
	onFailure func(error)
	name      string

	ctx    context.Context
	cancel context.CancelFunc

	engine   sandbox.Engine
	err      error
	bootOnce sync.Once
	mu       sync.Mutex
	booted   atomic.Bool
	failed   atomic.Bool
	closing  atomic.Bool
}

var _ ceval.Worker = (*Controller)(nil)

// New creates a Controller. Nothing is booted until Start or Preload.
func New(strategy Strategy, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Name != "" {
		logger = logger.With(zap.String("engine", opts.Name))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		strategy:  strategy,
		logger:    logger,
		onFailure: opts.OnFailure,
		name:      opts.Name,
		ctx:       ctx,
		cancel:    cancel,
		proto: protocol.New(protocol.Options{
			Logger:     logger,
			OnEval:     opts.OnEval,
			OnBestMove: opts.OnBestMove,
		}),
	}
}

// Start records work as the latest intent and boots the engine on first use.
func (c *Controller) Start(work *protocol.Work) {
	c.proto.Compute(work)
	c.boot()
}

// Preload boots the engine without starting a computation.
func (c *Controller) Preload() {
	c.boot()
}

// Stop cancels the active computation. Safe in any state.
func (c *Controller) Stop() {
	c.proto.Compute(nil)
}

// State derives the engine state. It performs no I/O.
func (c *Controller) State() ceval.State {
	return ceval.DeriveState(
		c.booted.Load(),
		c.failed.Load(),
		c.proto.EngineName() != "",
		c.proto.IsComputing(),
	)
}

// EngineName returns the name the engine announced, or "".
func (c *Controller) EngineName() string {
	return c.proto.EngineName()
}

// Destroy stops the active computation. The engine itself is kept running
// for reuse; tearing a sandbox down is not guaranteed to release it.
func (c *Controller) Destroy() {
	c.Stop()
}

// Err returns the error that failed the engine, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close tears the engine down. Use it when the process is about to exit;
// the Controller is unusable afterwards.
func (c *Controller) Close(ctx context.Context) error {
	c.closing.Store(true)
	c.cancel()

	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return nil
	}
	return engine.Close(ctx)
}

func (c *Controller) boot() {
	c.bootOnce.Do(func() {
		c.booted.Store(true)
		go c.run()
	})
}

func (c *Controller) run() {
	c.logger.Debug("booting engine")

	engine, err := c.strategy.Boot(c.ctx, c.proto)
	if err != nil {
		if c.closing.Load() {
			c.logger.Debug("boot abandoned on close", zap.Error(err))
			return
		}
		c.fail(errors.Boot(c.name, err))
		return
	}

	c.mu.Lock()
	c.engine = engine
	c.mu.Unlock()

	if c.closing.Load() {
		_ = engine.Close(context.Background())
		return
	}

	engine.Listen(c.proto.Received)
	c.proto.Connected(engine.Post)

	<-engine.Done()
	if c.closing.Load() {
		return
	}
	err = engine.Err()
	if err == nil {
		err = errors.Closed(c.name)
	}
	c.fail(errors.New(errors.PhaseChannel, errors.KindClosed).
		Engine(c.name).
		Detail("engine exited").
		Cause(err).
		Build())
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.failed.Store(true)

	c.logger.Error("engine failed", zap.Error(err))
	if c.onFailure != nil {
		c.onFailure(err)
	}
}
