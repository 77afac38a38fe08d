package chaos

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/pkg/exception"
)

func payloads(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out
}

func TestValidate(t *testing.T) {
	bad := []Config{
		{DropRate: -0.1, ReorderWindow: 1},
		{DropRate: 1.1, ReorderWindow: 1},
		{DuplicateRate: 2, ReorderWindow: 1},
		{ReorderWindow: -1},
		{ReorderWindow: 1, MaxDelay: -time.Second},
	}
	for _, cfg := range bad {
		_, err := NewEngine[[]byte](cfg)
		require.Error(t, err, "%+v", cfg)
		assert.True(t, errors.Is(err, exception.ErrConfigInvalid))
	}
}

func TestPassThrough(t *testing.T) {
	e, err := NewEngine[[]byte](Config{Seed: 1})
	require.NoError(t, err)
	assert.False(t, Config{}.Enabled())

	for _, p := range payloads(5) {
		out := e.Process(p)
		require.Len(t, out, 1)
		assert.Equal(t, p, out[0].Value)
		assert.Zero(t, out[0].Delay)
	}
	assert.Empty(t, e.Flush())

	var nilEngine *Engine[[]byte]
	assert.Len(t, nilEngine.Process([]byte{1}), 1)
	assert.Nil(t, nilEngine.Flush())
}

func TestDropAll(t *testing.T) {
	e, err := NewEngine[[]byte](Config{Seed: 1, DropRate: 1})
	require.NoError(t, err)
	for _, p := range payloads(10) {
		assert.Empty(t, e.Process(p))
	}
}

func TestDuplicateAll(t *testing.T) {
	e, err := NewEngine[[]byte](Config{Seed: 1, DuplicateRate: 1})
	require.NoError(t, err)
	out := e.Process([]byte{7})
	require.Len(t, out, 2)
	assert.Equal(t, out[0].Value, out[1].Value)
}

func TestReorderKeepsEveryFrame(t *testing.T) {
	e, err := NewEngine[[]byte](Config{Seed: 42, ReorderWindow: 4})
	require.NoError(t, err)

	var got []byte
	for i, p := range payloads(20) {
		out := e.Process(p)
		if i < 3 {
			assert.Empty(t, out)
		}
		for _, f := range out {
			got = append(got, f.Value[0])
		}
	}
	assert.Equal(t, 3, e.Pending())
	for _, f := range e.Flush() {
		got = append(got, f.Value[0])
	}
	assert.Zero(t, e.Pending())

	require.Len(t, got, 20)
	want := make([]byte, 20)
	for i := range want {
		want[i] = byte(i)
	}
	assert.ElementsMatch(t, want, got)
}

func TestDelayBounded(t *testing.T) {
	e, err := NewEngine[[]byte](Config{Seed: 3, MaxDelay: 10 * time.Millisecond})
	require.NoError(t, err)
	for _, p := range payloads(50) {
		out := e.Process(p)
		require.Len(t, out, 1)
		assert.GreaterOrEqual(t, out[0].Delay, time.Duration(0))
		assert.LessOrEqual(t, out[0].Delay, 10*time.Millisecond)
	}
}

func TestSeedDeterministic(t *testing.T) {
	cfg := Config{Seed: 9, DropRate: 0.3, DuplicateRate: 0.3, ReorderWindow: 3}
	run := func() []byte {
		e, err := NewEngine[[]byte](cfg)
		require.NoError(t, err)
		var got []byte
		for _, p := range payloads(30) {
			for _, f := range e.Process(p) {
				got = append(got, f.Value[0])
			}
		}
		for _, f := range e.Flush() {
			got = append(got, f.Value[0])
		}
		return got
	}
	assert.Equal(t, run(), run())
}
