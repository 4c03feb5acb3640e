package sandbox

import (
	"context"
	stderrors "errors"
	"io"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/ceval/errors"
)

// engineModule builds a module exporting _start with the given body and an
// optional "nnue" custom section.
func engineModule(body []byte, weights string) []byte {
	bin := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, // magic, version
		0x01, 0x04, 0x01, 0x60, 0x00, 0x00, // type: () -> ()
		0x03, 0x02, 0x01, 0x00, // func 0: type 0
		0x07, 0x0a, 0x01, 0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00, // export _start
	}
	code := append([]byte{0x01, byte(len(body))}, body...)
	bin = append(bin, 0x0a, byte(len(code)))
	bin = append(bin, code...)

	if weights != "" {
		section := append([]byte{0x04, 'n', 'n', 'u', 'e'}, weights...)
		bin = append(bin, 0x00, byte(len(section)))
		bin = append(bin, section...)
	}
	return bin
}

var (
	returnBody = []byte{0x00, 0x0b}
	loopBody   = []byte{0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x0b}
)

func newTestRuntime(t *testing.T) *Runtime {
	t.Helper()
	r, err := NewRuntime(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestModule_RecommendedWeights(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	mod, err := r.Compile(ctx, "stockfish", engineModule(returnBody, "nn-5af11540bbfe.nnue"))
	require.NoError(t, err)
	assert.Equal(t, "stockfish", mod.Name())
	assert.Equal(t, "nn-5af11540bbfe.nnue", mod.RecommendedWeights())

	plain, err := r.Compile(ctx, "plain", engineModule(returnBody, ""))
	require.NoError(t, err)
	assert.Empty(t, plain.RecommendedWeights())
}

func TestRuntime_CompileErrors(t *testing.T) {
	r := newTestRuntime(t)

	tests := []struct {
		name   string
		binary []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a wasm module")},
		{"truncated", engineModule(returnBody, "")[:12]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Compile(context.Background(), "broken", tt.binary)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindInvalidData}) ||
				stderrors.Is(err, &errors.Error{Phase: errors.PhaseCompile, Kind: errors.KindInvalidInput}))
		})
	}
}

func TestModule_StartExits(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	mod, err := r.Compile(ctx, "quick", engineModule(returnBody, ""))
	require.NoError(t, err)

	inst, err := mod.Start(ctx, StartOptions{
		Files: map[string][]byte{"nn-test.nnue": []byte("weights")},
	})
	require.NoError(t, err)

	select {
	case <-inst.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not exit")
	}
	assert.NoError(t, inst.Err())

	err = inst.Post("uci")
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseChannel, Kind: errors.KindClosed}))
}

func TestInstance_CloseStopsRunningEngine(t *testing.T) {
	r := newTestRuntime(t)
	ctx := context.Background()

	mod, err := r.Compile(ctx, "spin", engineModule(loopBody, ""))
	require.NoError(t, err)

	inst, err := mod.Start(ctx, StartOptions{})
	require.NoError(t, err)

	select {
	case <-inst.Done():
		t.Fatal("engine exited before Close")
	case <-time.After(20 * time.Millisecond):
	}

	closeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = inst.Close(closeCtx)

	select {
	case <-inst.Done():
	default:
		t.Fatal("engine still running after Close")
	}
}

func TestLineSink_BacklogUntilListen(t *testing.T) {
	var sink lineSink
	sink.deliver("id name Stockfish")
	sink.deliver("uciok")

	var got []string
	sink.listen(func(line string) { got = append(got, line) })
	sink.deliver("readyok")

	assert.Equal(t, []string{"id name Stockfish", "uciok", "readyok"}, got)
}

func TestLineSink_NilListenerKeepsBacklog(t *testing.T) {
	var sink lineSink
	sink.deliver("uciok")
	sink.listen(nil)
	sink.deliver("readyok")

	var got []string
	sink.listen(func(line string) { got = append(got, line) })
	assert.Equal(t, []string{"uciok", "readyok"}, got)
}

func TestReadLines_SkipsBlankLines(t *testing.T) {
	r, w := io.Pipe()
	var sink lineSink
	var got []string
	sink.listen(func(line string) { got = append(got, line) })

	done := make(chan struct{})
	go func() {
		readLines(r, &sink, nil)
		close(done)
	}()

	_, _ = io.WriteString(w, "uciok\r\n\n\nreadyok\n")
	_ = w.Close()
	<-done

	assert.Equal(t, []string{"uciok", "readyok"}, got)
}

func TestChannel_QueueFull(t *testing.T) {
	_, w := io.Pipe()
	c := newChannel("stuck", w, nil)
	defer c.shutdown()

	var err error
	for i := 0; i < outboundQueueSize+2 && err == nil; i++ {
		err = c.Post("isready")
	}
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseChannel, Kind: errors.KindQueueFull}))
}

func TestChannel_WritesInOrder(t *testing.T) {
	r, w := io.Pipe()
	c := newChannel("ordered", w, nil)
	defer c.shutdown()

	var sink lineSink
	var mu sync.Mutex
	var got []string
	received := make(chan struct{}, 3)
	sink.listen(func(line string) {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
		received <- struct{}{}
	})
	go readLines(r, &sink, nil)

	for _, line := range []string{"uci", "isready", "go infinite"} {
		require.NoError(t, c.Post(line))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-received:
		case <-time.After(5 * time.Second):
			t.Fatal("line not written")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"uci", "isready", "go infinite"}, got)
}

func TestStartProcess_EchoesLines(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}

	p, err := StartProcess(context.Background(), ProcessOptions{Path: "cat"})
	require.NoError(t, err)

	lines := make(chan string, 4)
	p.Listen(func(line string) { lines <- line })
	require.NoError(t, p.Post("uci"))

	select {
	case line := <-lines:
		assert.Equal(t, "uci", line)
	case <-time.After(5 * time.Second):
		t.Fatal("no echo from engine process")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Close(ctx))

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("engine process not reaped")
	}
}

func TestStartProcess_Errors(t *testing.T) {
	_, err := StartProcess(context.Background(), ProcessOptions{})
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}))

	_, err = StartProcess(context.Background(), ProcessOptions{Path: "/nonexistent/stockfish-binary"})
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindNotFound}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = StartProcess(ctx, ProcessOptions{Path: "cat"})
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseInstantiate, Kind: errors.KindCanceled}))
}
