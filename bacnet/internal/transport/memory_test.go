package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgeo/drivers/bacnetsim/bacnet"
)

func mustAddr(t *testing.T, s string) bacnet.Address {
	t.Helper()
	addr, err := bacnet.ParseAddress(s)
	require.NoError(t, err)
	return addr
}

func receiveWithin(t *testing.T, c Conn, d time.Duration) ([]byte, bacnet.Address) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	data, from, err := c.Receive(ctx)
	require.NoError(t, err)
	return data, from
}

func assertSilent(t *testing.T, c Conn) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := c.Receive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLinkBindAddressInUse(t *testing.T) {
	link := NewLink()

	a, err := link.Bind(mustAddr(t, "192.168.1.10"))
	require.NoError(t, err)

	_, err = link.Bind(mustAddr(t, "192.168.1.10"))
	require.ErrorIs(t, err, bacnet.ErrAddressInUse)

	_, err = link.Bind(mustAddr(t, "192.168.1.10:47809"))
	require.NoError(t, err)

	require.NoError(t, a.Close())
	_, err = link.Bind(mustAddr(t, "192.168.1.10"))
	require.NoError(t, err, "address is free again after close")
}

func TestLinkBindInvalid(t *testing.T) {
	_, err := NewLink().Bind(bacnet.Address{})
	require.ErrorIs(t, err, bacnet.ErrInvalidAddress)
}

func TestLinkBroadcast(t *testing.T) {
	link := NewLink()
	a, _ := link.Bind(mustAddr(t, "192.168.1.10"))
	b, _ := link.Bind(mustAddr(t, "192.168.1.11"))
	otherSubnet, _ := link.Bind(mustAddr(t, "192.168.2.10"))
	otherPort, _ := link.Bind(mustAddr(t, "192.168.1.12:47809"))

	payload := []byte{0x81, 0x0B, 0x00, 0x08, 0x01, 0x00, 0x10, 0x08}
	require.NoError(t, a.Broadcast(context.Background(), payload))

	data, from := receiveWithin(t, b, time.Second)
	assert.Equal(t, payload, data)
	assert.Equal(t, a.LocalAddress().AddrPort(), from.AddrPort())

	// the sender hears its own broadcast, like a UDP socket on a LAN
	data, from = receiveWithin(t, a, time.Second)
	assert.Equal(t, payload, data)
	assert.Equal(t, a.LocalAddress().AddrPort(), from.AddrPort())

	assertSilent(t, otherSubnet)
	assertSilent(t, otherPort)
}

func TestLinkBroadcastPort(t *testing.T) {
	link := NewLink()
	a, _ := link.Bind(mustAddr(t, "192.168.1.10:47808"))
	b, _ := link.Bind(mustAddr(t, "192.168.1.10:47809"))
	c, _ := link.Bind(mustAddr(t, "192.168.1.11:47809"))
	otherSubnet, _ := link.Bind(mustAddr(t, "192.168.2.10:47809"))

	require.NoError(t, a.BroadcastPort(context.Background(), 47809, []byte{7}))

	for _, conn := range []Conn{b, c} {
		data, from := receiveWithin(t, conn, time.Second)
		assert.Equal(t, []byte{7}, data)
		assert.Equal(t, a.LocalAddress().AddrPort(), from.AddrPort())
	}
	assertSilent(t, a)
	assertSilent(t, otherSubnet)
}

func TestLinkBroadcastCopiesPayload(t *testing.T) {
	link := NewLink()
	a, _ := link.Bind(mustAddr(t, "10.0.0.1"))
	b, _ := link.Bind(mustAddr(t, "10.0.0.2"))

	payload := []byte{1, 2, 3}
	require.NoError(t, a.Broadcast(context.Background(), payload))
	payload[0] = 9

	data, _ := receiveWithin(t, b, time.Second)
	assert.Equal(t, []byte{1, 2, 3}, data)
}

func TestLinkUnicast(t *testing.T) {
	link := NewLink()
	a, _ := link.Bind(mustAddr(t, "192.168.1.10"))
	b, _ := link.Bind(mustAddr(t, "192.168.1.11"))
	c, _ := link.Bind(mustAddr(t, "192.168.1.12"))

	require.NoError(t, a.Send(context.Background(), b.LocalAddress(), []byte("hello")))

	data, from := receiveWithin(t, b, time.Second)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, a.LocalAddress().AddrPort(), from.AddrPort())

	assertSilent(t, a)
	assertSilent(t, c)

	// unknown destinations are dropped silently
	require.NoError(t, a.Send(context.Background(), mustAddr(t, "192.168.1.99"), []byte("x")))
}

func TestLinkQueueOverflowDrops(t *testing.T) {
	link := NewLink()
	a, _ := link.Bind(mustAddr(t, "10.0.0.1"))
	b, _ := link.Bind(mustAddr(t, "10.0.0.2"))

	for i := 0; i < link.queueSize+5; i++ {
		require.NoError(t, a.Send(context.Background(), b.LocalAddress(), []byte{byte(i)}))
	}
	assert.Equal(t, int64(5), link.Dropped())
}

func TestLinkCloseUnblocksReceive(t *testing.T) {
	link := NewLink()
	a, _ := link.Bind(mustAddr(t, "10.0.0.1"))

	errCh := make(chan error, 1)
	go func() {
		_, _, err := a.Receive(context.Background())
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close(), "close is idempotent")

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("receive did not return after close")
	}

	require.ErrorIs(t, a.Broadcast(context.Background(), []byte{1}), ErrClosed)
	require.ErrorIs(t, a.Send(context.Background(), a.LocalAddress(), []byte{1}), ErrClosed)
	assert.Equal(t, 0, link.Len())
}

func TestLinkReceiveContextCancel(t *testing.T) {
	link := NewLink()
	a, _ := link.Bind(mustAddr(t, "10.0.0.1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := a.Receive(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
