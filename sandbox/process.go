package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/ceval/errors"
)

// ProcessOptions configures a native engine process.
type ProcessOptions struct {
	Logger *zap.Logger
	// Path is the engine executable, looked up in PATH when it has no
	// directory component.
	Path string
	Dir  string
	Args []string
}

// Process is a native engine running as a child process.
type Process struct {
	*channel
	cmd       *exec.Cmd
	closeOnce sync.Once
}

// StartProcess starts the engine executable. The process is not bound to
// ctx; use Close to stop it.
func StartProcess(ctx context.Context, opts ProcessOptions) (*Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Canceled(errors.PhaseInstantiate, err)
	}

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		return nil, errors.InvalidInput(errors.PhaseConfig, "empty engine path")
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, errors.NotFound(errors.PhaseInstantiate, "engine executable", path)
	}
	name := filepath.Base(resolved)

	cmd := exec.Command(resolved, opts.Args...)
	cmd.Dir = opts.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.Instantiation(name, err)
	}

	p := &Process{
		channel: newChannel(name, stdin, opts.Logger),
		cmd:     cmd,
	}
	p.logger.Debug("engine process started", zap.String("path", resolved), zap.Int("pid", cmd.Process.Pid))

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		readLines(stdout, &p.lines, p.logger)
	}()
	go func() {
		defer readers.Done()
		readLines(stderr, &p.errs, p.logger)
	}()
	go func() {
		// Wait closes the pipes, so the readers must drain them first.
		readers.Wait()
		err := cmd.Wait()
		if err != nil {
			p.logger.Warn("engine process exited", zap.Error(err))
		} else {
			p.logger.Debug("engine process exited")
		}
		p.finish(err)
	}()

	return p, nil
}

// Close asks the engine to quit and kills it if it has not exited by the
// time ctx is done.
func (p *Process) Close(ctx context.Context) error {
	var closeErr error
	p.closeOnce.Do(func() {
		_ = p.Post("quit")

		select {
		case <-p.done:
		case <-ctx.Done():
			if err := p.cmd.Process.Kill(); err != nil {
				closeErr = errors.New(errors.PhaseChannel, errors.KindClosed).
					Engine(p.name).
					Detail("kill engine process").
					Cause(err).
					Build()
			}
			<-p.done
		}
	})
	return closeErr
}
