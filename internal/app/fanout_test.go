package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func joinedRegistry(t *testing.T) (*Registry, *fakeConn, *fakeConn, *fakeConn) {
	t.Helper()
	reg := NewRegistry()
	c1 := bind(t, reg, "c1")
	c2 := bind(t, reg, "c2")
	c3 := bind(t, reg, "c3")
	_, err := reg.Join(testSession, "c1", alice())
	require.NoError(t, err)
	_, err = reg.Join(testSession, "c2", bob())
	require.NoError(t, err)
	_, err = reg.Join(testSession, "c3", carol())
	require.NoError(t, err)
	return reg, c1, c2, c3
}

func TestBroadcastExcludesSender(t *testing.T) {
	reg, c1, c2, c3 := joinedRegistry(t)
	bus := NewFanout(reg)

	res := bus.BroadcastToSession(testSession, map[string]string{"type": "x"}, "c1")
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, 0, res.Dropped)
	assert.Equal(t, 0, c1.count())
	assert.Equal(t, 1, c2.count())
	assert.Equal(t, 1, c3.count())
}

func TestBroadcastIsolatesSlowRecipients(t *testing.T) {
	reg, c1, c2, c3 := joinedRegistry(t)
	bus := NewFanout(reg)
	c2.fail = true

	res := bus.BroadcastToSession(testSession, map[string]string{"type": "x"}, "")
	assert.Equal(t, 2, res.SentTo)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, 1, c1.count())
	assert.Equal(t, 0, c2.count())
	assert.Equal(t, 1, c3.count(), "a failing peer must not cost others their delivery")
}

func TestSendToDepartedConnectionIsSilent(t *testing.T) {
	reg, _, _, _ := joinedRegistry(t)
	bus := NewFanout(reg)

	reg.Leave(testSession, "c2")
	reg.Unbind("c2")

	ok := bus.SendTo("c2", map[string]string{"type": "x"})
	assert.False(t, ok)
}
