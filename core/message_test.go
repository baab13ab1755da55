package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type closable struct {
	closed bool
}

func (c *closable) Close() error {
	c.closed = true
	return nil
}

func TestResourceMoveOnly(t *testing.T) {
	r := NewResource("socket")

	v, err := r.Take()
	require.NoError(t, err)
	require.Equal(t, "socket", v)
	require.True(t, r.Moved())

	_, err = r.Take()
	require.ErrorIs(t, err, ErrResourceMoved)
}

func TestMessageCapturesResources(t *testing.T) {
	r1 := NewResource(1)
	r2 := NewResource(2)

	m, err := NewMessage("transfer", []byte("payload"), r1, r2)
	require.NoError(t, err)
	require.Equal(t, 2, m.Resources())

	// the sender's handles are invalidated by the enqueue
	_, err = r1.Take()
	require.ErrorIs(t, err, ErrResourceMoved)

	// reusing a captured handle in another message fails synchronously
	_, err = NewMessage("again", nil, r2)
	require.ErrorIs(t, err, ErrResourceMoved)
}

func TestMessageCaptureRollsBackOnFailure(t *testing.T) {
	fresh := NewResource("fresh")
	moved := NewResource("moved")
	_, err := moved.Take()
	require.NoError(t, err)

	_, err = NewMessage("mixed", nil, fresh, moved)
	require.ErrorIs(t, err, ErrResourceMoved)

	// the handle captured before the failure is handed back
	require.False(t, fresh.Moved())
}

func TestTakeResourceMovesOut(t *testing.T) {
	r := NewResource("conn")
	m, err := NewMessage("t", nil, r)
	require.NoError(t, err)

	out, err := m.TakeResource(0)
	require.NoError(t, err)

	v, err := out.Take()
	require.NoError(t, err)
	require.Equal(t, "conn", v)

	_, err = m.TakeResource(0)
	require.ErrorIs(t, err, ErrResourceMoved)
	_, err = m.TakeResource(5)
	require.ErrorIs(t, err, ErrResourceMoved)
}

func TestDisposeClosesCapturedResources(t *testing.T) {
	c := &closable{}
	m, err := NewMessage("t", nil, NewResource(c))
	require.NoError(t, err)

	m.dispose()
	require.True(t, c.closed)
}

func TestFilterTag(t *testing.T) {
	m := &Message{Tag: "pong"}
	require.True(t, FilterTag("pong")(m))
	require.False(t, FilterTag("ping")(m))
}
