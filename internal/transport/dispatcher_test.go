package transport

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinysip/b2bua/internal/sipmsg"
)

func newLoopbackPair(t *testing.T) (client *net.UDPConn, server *net.UDPConn) {
	t.Helper()
	serverAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server, err = net.ListenUDP("udp", serverAddr)
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	client, err = net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, server
}

func TestDispatcherRoundRobinsAcrossQueues(t *testing.T) {
	client, server := newLoopbackPair(t)

	q1 := make(chan sipmsg.Envelope, 4)
	q2 := make(chan sipmsg.Envelope, 4)
	d := NewDispatcher(server, 1400, []chan<- sipmsg.Envelope{q1, q2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	_, err := client.WriteToUDP([]byte("one"), server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	_, err = client.WriteToUDP([]byte("two"), server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	select {
	case env := <-q1:
		assert.Equal(t, "one", string(env.Buffer))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first datagram on q1")
	}

	select {
	case env := <-q2:
		assert.Equal(t, "two", string(env.Buffer))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for second datagram on q2")
	}
}

func TestDispatcherDropsOversizeDatagram(t *testing.T) {
	client, server := newLoopbackPair(t)

	q1 := make(chan sipmsg.Envelope, 4)
	d := NewDispatcher(server, 4, []chan<- sipmsg.Envelope{q1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	_, err := client.WriteToUDP([]byte("way too big for the buffer"), server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	select {
	case env := <-q1:
		t.Fatalf("expected oversize datagram to be dropped, got %q", env.Buffer)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDispatcherDropsWhenQueueFull(t *testing.T) {
	client, server := newLoopbackPair(t)

	// Unbuffered and nobody receiving while the datagram is dispatched, so
	// the dispatcher's non-blocking send always finds it full.
	q1 := make(chan sipmsg.Envelope)
	d := NewDispatcher(server, 1400, []chan<- sipmsg.Envelope{q1})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	_, err := client.WriteToUDP([]byte("dropped"), server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	select {
	case <-q1:
		t.Fatal("expected send to unbuffered queue to be skipped, not delivered")
	default:
	}
}
