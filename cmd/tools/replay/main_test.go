package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tickcore/internal/codec"
	"tickcore/internal/recorder"
	"tickcore/internal/schema"
)

func TestDecodeFrames(t *testing.T) {
	d := &decoder{}

	ticks, skipped, err := d.decode(recorder.Frame{Binary: true, Payload: []byte{0x00}})
	require.NoError(t, err)
	assert.Empty(t, ticks)
	assert.Zero(t, skipped)

	payload := codec.AppendFrame(nil, []schema.Tick{{Token: 7, LastPrice: 12.5, Mode: schema.ModeMinimal}})
	ticks, skipped, err = d.decode(recorder.Frame{Binary: true, Payload: payload})
	require.NoError(t, err)
	assert.Zero(t, skipped)
	require.Len(t, ticks, 1)
	assert.Equal(t, uint32(7), ticks[0].Token)
	assert.Equal(t, 12.5, ticks[0].LastPrice)

	ticks, _, err = d.decode(recorder.Frame{Payload: []byte(`[{"token":1,"ltp":100},{"token":2,"ltp":200}]`)})
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	assert.Equal(t, 200.0, ticks[1].LastPrice)

	_, _, err = d.decode(recorder.Frame{Payload: []byte(`{nope`)})
	assert.Error(t, err)
}
