package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failing struct{}

func (failing) Publish(context.Context, Event) error { return errors.New("down") }

func TestNew(t *testing.T) {
	e := New(SwapExecuted, "m1", "m1:0", map[string]uint64{"amount_out": 5}, 42)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, SwapExecuted, e.Type)
	assert.Equal(t, int64(42), e.At)
	assert.NotEqual(t, e.ID, New(SwapExecuted, "m1", "m1:0", nil, 42).ID)
}

func TestMulti_DeliversPastFailures(t *testing.T) {
	var first, second Recorder
	m := Multi{&first, failing{}, nil, &second}

	err := m.Publish(context.Background(), New(OrderPlaced, "m1", "m1:0", nil, 1))
	assert.Error(t, err)
	assert.Equal(t, []Type{OrderPlaced}, first.Types())
	assert.Equal(t, []Type{OrderPlaced}, second.Types())
}

func TestRedisStream_XAddArgs(t *testing.T) {
	s := NewRedisStream(nil, "outcome-events", 10_000)
	e := New(TradeSettled, "m1", "m1:1", map[string]uint64{"size": 50}, 7)

	args, err := s.xaddArgs(e)
	require.NoError(t, err)
	assert.Equal(t, "outcome-events", args.Stream)
	assert.Equal(t, int64(10_000), args.MaxLen)
	assert.True(t, args.Approx)

	values := args.Values.(map[string]any)
	assert.Equal(t, "trade_settled", values["type"])
	assert.Equal(t, "m1:1", values["ticker"])

	var decoded Event
	require.NoError(t, json.Unmarshal([]byte(values["event"].(string)), &decoded))
	assert.Equal(t, e.ID, decoded.ID)
	assert.Equal(t, TradeSettled, decoded.Type)
}

func TestRedisStream_NoTrim(t *testing.T) {
	args, err := NewRedisStream(nil, "s", 0).xaddArgs(New(MarketResolved, "m1", "", nil, 1))
	require.NoError(t, err)
	assert.Zero(t, args.MaxLen)
	assert.False(t, args.Approx)
}
