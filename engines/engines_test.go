package engines

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/ceval"
	"github.com/wippyai/ceval/errors"
	"github.com/wippyai/ceval/protocol"
	"github.com/wippyai/ceval/sandbox"
	"github.com/wippyai/ceval/worker"
)

type nullStrategy struct{}

func (nullStrategy) Boot(context.Context, worker.OptionSetter) (sandbox.Engine, error) {
	return nil, stderrors.New("not bootable")
}

func testRegistry() *Registry {
	strategy := func() worker.Strategy { return nullStrategy{} }
	return NewRegistry(
		Info{ID: "sf16-nnue", Name: "Stockfish 16 NNUE", MaxThreads: 32, MaxHashMB: 2048, Strategy: strategy},
		Info{ID: "fsf", Name: "Fairy-Stockfish 14", Variants: []string{"standard", "crazyhouse", "atomic", "antichess"}, MaxThreads: 8, MaxHashMB: 512, Strategy: strategy},
		Info{ID: "sf16-nnue", Name: "duplicate"},
		Info{ID: "sf11", Name: "Stockfish 11", MaxThreads: 1, MaxHashMB: 16},
	)
}

func TestRegistry_Get(t *testing.T) {
	r := testRegistry()

	info, ok := r.Get("fsf")
	require.True(t, ok)
	assert.Equal(t, "Fairy-Stockfish 14", info.Name)

	info, ok = r.Get("sf16-nnue")
	require.True(t, ok)
	assert.Equal(t, "Stockfish 16 NNUE", info.Name)

	_, ok = r.Get("komodo")
	assert.False(t, ok)

	assert.Equal(t, []string{"sf16-nnue", "fsf", "sf11"}, r.IDs())
}

func TestRegistry_Supporting(t *testing.T) {
	r := testRegistry()

	ids := func(infos []Info) []string {
		var out []string
		for _, i := range infos {
			out = append(out, i.ID)
		}
		return out
	}

	assert.Equal(t, []string{"sf16-nnue", "fsf", "sf11"}, ids(r.Supporting("")))
	assert.Equal(t, []string{"sf16-nnue", "fsf", "sf11"}, ids(r.Supporting(Standard)))
	assert.Equal(t, []string{"fsf"}, ids(r.Supporting("atomic")))
	assert.Empty(t, r.Supporting("horde"))
}

func TestRegistry_SelectAndDefault(t *testing.T) {
	r := testRegistry()

	info, err := r.Select("sf11", "")
	require.NoError(t, err)
	assert.Equal(t, "sf11", info.ID)

	info, err = r.Select("sf11", "crazyhouse")
	require.NoError(t, err)
	assert.Equal(t, "fsf", info.ID)

	info, err = r.Default("")
	require.NoError(t, err)
	assert.Equal(t, "sf16-nnue", info.ID)

	_, err = r.Default("horde")
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindNotFound}))
}

func TestInfo_NewWorker(t *testing.T) {
	r := testRegistry()

	info, _ := r.Get("fsf")
	w, err := info.NewWorker(worker.Options{})
	require.NoError(t, err)
	assert.Equal(t, ceval.Initial, w.State())

	info, _ = r.Get("sf11")
	_, err = info.NewWorker(worker.Options{})
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindInvalidInput}))
}

func TestSettings_Clamp(t *testing.T) {
	sf16 := Info{MaxThreads: 32, MaxHashMB: 2048}
	sf11 := Info{MaxThreads: 1, MaxHashMB: 16}

	tests := []struct {
		name string
		info Info
		in   Settings
		want Settings
	}{
		{
			name: "zero values",
			info: sf16,
			in:   Settings{},
			want: Settings{Threads: 1, HashMB: 16, MultiPV: 1},
		},
		{
			name: "within limits",
			info: sf16,
			in:   Settings{Threads: 4, HashMB: 256, MultiPV: 3, SearchTime: 10 * time.Second},
			want: Settings{Threads: 4, HashMB: 256, MultiPV: 3, SearchTime: 10 * time.Second},
		},
		{
			name: "above limits",
			info: sf16,
			in:   Settings{Threads: 64, HashMB: 4096, MultiPV: 9, SearchTime: 2 * time.Minute},
			want: Settings{Threads: 32, HashMB: 2048, MultiPV: 5},
		},
		{
			name: "hash rounds down to a power of two",
			info: sf16,
			in:   Settings{Threads: 2, HashMB: 1000, MultiPV: 1, SearchTime: 7 * time.Second},
			want: Settings{Threads: 2, HashMB: 512, MultiPV: 1, SearchTime: 10 * time.Second},
		},
		{
			name: "single threaded engine",
			info: sf11,
			in:   Settings{Threads: 8, HashMB: 512, MultiPV: 2, SearchTime: time.Second},
			want: Settings{Threads: 1, HashMB: 16, MultiPV: 2, SearchTime: 5 * time.Second},
		},
		{
			name: "unknown ceilings",
			info: Info{},
			in:   Settings{Threads: 4, HashMB: 64, MultiPV: 1, SearchTime: 90 * time.Second},
			want: Settings{Threads: 1, HashMB: 16, MultiPV: 1, SearchTime: 90 * time.Second},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Clamp(tt.info))
		})
	}
}

func TestSettings_Work(t *testing.T) {
	s := Settings{Threads: 2, HashMB: 64, MultiPV: 3, SearchTime: 30 * time.Second}

	w := s.Work("", []string{"e2e4"}, Standard)
	assert.Equal(t, &protocol.Work{
		Moves:   []string{"e2e4"},
		Limits:  protocol.Limits{Depth: 99, MoveTime: 30 * time.Second},
		MultiPV: 3,
		Threads: 2,
		HashMB:  64,
	}, w)

	s.SearchTime = 0
	w = s.Work("8/8/8/8/8/8/8/K6k w - - 0 1", nil, "atomic")
	assert.True(t, w.Limits.IsInfinite())
	assert.Equal(t, "atomic", w.Variant)
	assert.Equal(t, "8/8/8/8/8/8/8/K6k w - - 0 1", w.InitialFEN)
}
