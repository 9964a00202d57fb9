package tcp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/hupe1980/plsago/internal/frame"
	"github.com/hupe1980/plsago/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func mesh(t *testing.T, size int, c frame.Compression) []*Node {
	t.Helper()
	listeners := make([]net.Listener, size)
	peers := make([]string, size)
	for i := range listeners {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners[i] = ln
		peers[i] = ln.Addr().String()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nodes := make([]*Node, size)
	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < size; rank++ {
		g.Go(func() error {
			n, err := Connect(gctx, Config{
				Rank:         rank,
				Peers:        peers,
				Listener:     listeners[rank],
				Compression:  c,
				DialInterval: 5 * time.Millisecond,
			})
			nodes[rank] = n
			return err
		})
	}
	require.NoError(t, g.Wait())
	t.Cleanup(func() {
		for _, n := range nodes {
			n.Close()
		}
	})
	return nodes
}

func TestMeshExchange(t *testing.T) {
	for _, c := range []frame.Compression{frame.None, frame.LZ4, frame.ZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			nodes := mesh(t, 3, c)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			payload := make([]float64, 1000)
			for i := range payload {
				payload[i] = float64(i % 3)
			}

			g, gctx := errgroup.WithContext(ctx)
			for _, n := range nodes {
				g.Go(func() error {
					for to := 0; to < n.Size(); to++ {
						if to == n.Rank() {
							continue
						}
						if err := n.Send(gctx, to, 10000+n.Rank(), payload); err != nil {
							return err
						}
					}
					for from := 0; from < n.Size(); from++ {
						if from == n.Rank() {
							continue
						}
						got := make([]float64, len(payload))
						if err := n.Recv(gctx, from, 10000+from, got); err != nil {
							return err
						}
						assert.Equal(t, payload, got)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			assert.Equal(t, uint64(2*8*len(payload)), nodes[0].BytesSent())
		})
	}
}

func TestSingleWorker(t *testing.T) {
	n, err := Connect(context.Background(), Config{Rank: 0, Peers: []string{"127.0.0.1:0"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n.Size())
	assert.ErrorIs(t, n.Send(context.Background(), 1, 0, nil), transport.ErrNoPeer)
	require.NoError(t, n.Close())
}

func TestPeerLossFailsRecv(t *testing.T) {
	nodes := mesh(t, 2, frame.None)
	require.NoError(t, nodes[1].Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := nodes[0].Recv(ctx, 1, 1, make([]float64, 1))
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
}

func TestConfigValidation(t *testing.T) {
	_, err := Connect(context.Background(), Config{})
	assert.Error(t, err)

	_, err = Connect(context.Background(), Config{Rank: 2, Peers: []string{"a", "b"}})
	assert.Error(t, err)
}

func TestDialGivesUp(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = Connect(context.Background(), Config{
		Rank:         1,
		Peers:        []string{addr, "127.0.0.1:0"},
		DialInterval: time.Millisecond,
		DialAttempts: 3,
	})
	assert.Error(t, err)
}
