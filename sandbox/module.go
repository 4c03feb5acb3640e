package sandbox

import (
	"context"
	"crypto/rand"
	stderrors "errors"
	"io"
	"strings"
	"testing/fstest"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/ceval/errors"
)

const (
	// WeightsDir is the guest directory files from StartOptions are mounted at.
	WeightsDir = "/weights"

	weightsSection = "nnue"
	startFunction  = "_start"
)

// Module is a compiled engine binary.
type Module struct {
	runtime  *Runtime
	compiled wazero.CompiledModule
	name     string
}

// Name returns the engine name the module was compiled under.
func (m *Module) Name() string {
	return m.name
}

// RecommendedWeights returns the weights filename the engine was built
// for, or "" when the binary does not declare one.
func (m *Module) RecommendedWeights() string {
	for _, section := range m.compiled.CustomSections() {
		if section.Name() == weightsSection {
			return strings.TrimSpace(string(section.Data()))
		}
	}
	return ""
}

// StartOptions configures a module instance.
type StartOptions struct {
	// Files are mounted read-only under WeightsDir, keyed by filename.
	Files map[string][]byte
	Args  []string
}

// Start instantiates the module and runs its _start function in the
// background. The instance keeps running after ctx is done; use Close to
// stop it.
func (m *Module) Start(ctx context.Context, opts StartOptions) (*Instance, error) {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithStdin(stdinR).
		WithStdout(stdoutW).
		WithStderr(stderrW).
		WithArgs(append([]string{m.name}, opts.Args...)...).
		WithSysWalltime().
		WithSysNanotime().
		WithSysNanosleep().
		WithRandSource(rand.Reader).
		WithStartFunctions()

	if len(opts.Files) > 0 {
		fsys := fstest.MapFS{}
		for name, data := range opts.Files {
			fsys[name] = &fstest.MapFile{Data: data, Mode: 0o444}
		}
		cfg = cfg.WithFSConfig(wazero.NewFSConfig().WithFSMount(fsys, WeightsDir))
	}

	closePipes := func() {
		stdinW.Close()
		stdoutW.Close()
		stderrW.Close()
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	mod, err := m.runtime.runtime.InstantiateModule(runCtx, m.compiled, cfg)
	if err != nil {
		cancel()
		closePipes()
		return nil, errors.Instantiation(m.name, err)
	}

	start := mod.ExportedFunction(startFunction)
	if start == nil {
		cancel()
		closePipes()
		_ = mod.Close(context.Background())
		return nil, errors.Instantiation(m.name, errors.NotFound(errors.PhaseInstantiate, "export", startFunction))
	}

	inst := &Instance{
		channel: newChannel(m.name, stdinW, m.runtime.logger),
		mod:     mod,
		stdin:   stdinW,
		cancel:  cancel,
	}

	go readLines(stdoutR, &inst.lines, inst.logger)
	go readLines(stderrR, &inst.errs, inst.logger)
	go func() {
		_, err := start.Call(runCtx)
		err = exitError(err)
		if err != nil {
			inst.logger.Warn("engine exited", zap.Error(err))
		} else {
			inst.logger.Debug("engine exited")
		}
		stdoutW.Close()
		stderrW.Close()
		inst.finish(err)
	}()

	return inst, nil
}

// exitError drops the error a clean proc_exit(0) produces.
func exitError(err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) && exit.ExitCode() == 0 {
		return nil
	}
	return err
}

// Instance is a running engine module.
type Instance struct {
	*channel
	mod    api.Module
	stdin  *io.PipeWriter
	cancel context.CancelFunc
}

// Close closes the engine's stdin, stops the module and waits for it to
// exit or for ctx to be done.
func (i *Instance) Close(ctx context.Context) error {
	i.shutdown()
	i.stdin.Close()
	i.cancel()

	select {
	case <-i.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return i.mod.Close(ctx)
}
