package tcp

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/plsago/internal/frame"
	"github.com/hupe1980/plsago/transport"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var handshakeMagic = [8]byte{'P', 'L', 'S', 'A', 'N', 'E', 'T', '1'}

// ErrHandshake is returned when a peer sends an invalid handshake.
var ErrHandshake = errors.New("tcp: handshake failed")

// Config describes this worker's place in the mesh.
type Config struct {
	// Rank is this worker's id.
	Rank int
	// Peers lists the listen address of every worker, indexed by rank.
	Peers []string
	// Listener, if set, is used instead of listening on Peers[Rank].
	Listener net.Listener
	// Compression applies to every frame sent by this worker.
	Compression frame.Compression
	// DialInterval is the pause between dial attempts. Default 100ms.
	DialInterval time.Duration
	// DialAttempts bounds the dial attempts per peer. Default 300.
	DialAttempts int
	// Logger receives connection events. Default slog.Default().
	Logger *slog.Logger
}

func (c *Config) validate() error {
	if len(c.Peers) == 0 {
		return errors.New("tcp: no peers")
	}
	if c.Rank < 0 || c.Rank >= len(c.Peers) {
		return fmt.Errorf("tcp: rank %d outside [0, %d)", c.Rank, len(c.Peers))
	}
	if c.DialInterval <= 0 {
		c.DialInterval = 100 * time.Millisecond
	}
	if c.DialAttempts <= 0 {
		c.DialAttempts = 300
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type peerConn struct {
	conn net.Conn
	wmu  sync.Mutex
}

// Node is a connected worker.
type Node struct {
	rank        int
	size        int
	compression frame.Compression
	logger      *slog.Logger

	peers   []*peerConn
	mailbox *transport.Mailbox
	closed  atomic.Bool
	readers sync.WaitGroup
	sent    atomic.Uint64
}

var _ transport.Transport = (*Node)(nil)

// Connect builds the mesh. It returns once a connection to every other
// worker is established.
func Connect(ctx context.Context, cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	n := &Node{
		rank:        cfg.Rank,
		size:        len(cfg.Peers),
		compression: cfg.Compression,
		logger:      cfg.Logger.With(slog.Int("rank", cfg.Rank)),
		peers:       make([]*peerConn, len(cfg.Peers)),
		mailbox:     transport.NewMailbox(),
	}
	if n.size == 1 {
		return n, nil
	}

	ln := cfg.Listener
	if ln == nil && cfg.Rank < n.size-1 {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", cfg.Peers[cfg.Rank])
		if err != nil {
			return nil, fmt.Errorf("tcp: listen %s: %w", cfg.Peers[cfg.Rank], err)
		}
		ln = l
	}
	if ln != nil {
		defer ln.Close()
	}

	var mu sync.Mutex
	register := func(peer int, conn net.Conn) error {
		mu.Lock()
		defer mu.Unlock()
		if n.peers[peer] != nil {
			return fmt.Errorf("%w: duplicate connection from %d", ErrHandshake, peer)
		}
		n.peers[peer] = &peerConn{conn: conn}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	if expected := n.size - 1 - cfg.Rank; expected > 0 {
		stop := context.AfterFunc(gctx, func() { _ = ln.Close() })
		defer stop()

		g.Go(func() error {
			for accepted := 0; accepted < expected; accepted++ {
				conn, err := ln.Accept()
				if err != nil {
					if ctxErr := gctx.Err(); ctxErr != nil {
						return ctxErr
					}
					return fmt.Errorf("tcp: accept: %w", err)
				}
				peer, err := n.acceptHandshake(conn)
				if err != nil {
					conn.Close()
					return err
				}
				if err := register(peer, conn); err != nil {
					conn.Close()
					return err
				}
				n.logger.Debug("peer connected", slog.Int("peer", peer), slog.String("remote", conn.RemoteAddr().String()))
			}
			return nil
		})
	}

	for peer := 0; peer < cfg.Rank; peer++ {
		g.Go(func() error {
			conn, err := n.dial(gctx, cfg, peer)
			if err != nil {
				return err
			}
			if err := register(peer, conn); err != nil {
				conn.Close()
				return err
			}
			n.logger.Debug("connected to peer", slog.Int("peer", peer), slog.String("addr", cfg.Peers[peer]))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, pc := range n.peers {
			if pc != nil {
				pc.conn.Close()
			}
		}
		return nil, err
	}

	for peer, pc := range n.peers {
		if pc == nil {
			continue
		}
		n.readers.Add(1)
		go n.readLoop(peer, pc.conn)
	}
	return n, nil
}

func (n *Node) dial(ctx context.Context, cfg Config, peer int) (net.Conn, error) {
	limiter := rate.NewLimiter(rate.Every(cfg.DialInterval), 1)
	var d net.Dialer
	var lastErr error
	for attempt := 0; attempt < cfg.DialAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		conn, err := d.DialContext(ctx, "tcp", cfg.Peers[peer])
		if err != nil {
			lastErr = err
			continue
		}
		if err := n.dialHandshake(conn, peer); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	}
	return nil, fmt.Errorf("tcp: dial %d (%s): %w", peer, cfg.Peers[peer], lastErr)
}

func writeHello(w io.Writer, rank, size int) error {
	buf := make([]byte, 16)
	copy(buf, handshakeMagic[:])
	binary.LittleEndian.PutUint32(buf[8:], uint32(rank))
	binary.LittleEndian.PutUint32(buf[12:], uint32(size))
	_, err := w.Write(buf)
	return err
}

func readHello(r io.Reader) (rank, size int, err error) {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, 0, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if [8]byte(buf[:8]) != handshakeMagic {
		return 0, 0, fmt.Errorf("%w: bad magic", ErrHandshake)
	}
	return int(binary.LittleEndian.Uint32(buf[8:])), int(binary.LittleEndian.Uint32(buf[12:])), nil
}

const handshakeTimeout = 10 * time.Second

func (n *Node) dialHandshake(conn net.Conn, peer int) error {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	if err := writeHello(conn, n.rank, n.size); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	rank, size, err := readHello(conn)
	if err != nil {
		return err
	}
	if rank != peer || size != n.size {
		return fmt.Errorf("%w: expected rank %d of %d, got %d of %d", ErrHandshake, peer, n.size, rank, size)
	}
	return nil
}

func (n *Node) acceptHandshake(conn net.Conn) (int, error) {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	rank, size, err := readHello(conn)
	if err != nil {
		return 0, err
	}
	if size != n.size || rank <= n.rank || rank >= n.size {
		return 0, fmt.Errorf("%w: unexpected rank %d of %d", ErrHandshake, rank, size)
	}
	if err := writeHello(conn, n.rank, n.size); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return rank, nil
}

func (n *Node) readLoop(peer int, conn net.Conn) {
	defer n.readers.Done()
	r := bufio.NewReaderSize(conn, 64*1024)
	for {
		tag, values, err := frame.Read(r)
		if err != nil {
			if !n.closed.Load() {
				n.logger.Error("peer lost", slog.Int("peer", peer), slog.Any("error", err))
				n.mailbox.Fail(fmt.Errorf("tcp: peer %d: %w", peer, err))
			}
			return
		}
		n.mailbox.Deliver(peer, int(tag), values)
	}
}

// Rank implements transport.Transport.
func (n *Node) Rank() int { return n.rank }

// Size implements transport.Transport.
func (n *Node) Size() int { return n.size }

// Send implements transport.Transport. The context deadline, if any, bounds
// the write.
func (n *Node) Send(ctx context.Context, to, tag int, data []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.closed.Load() {
		return transport.ErrClosed
	}
	if err := transport.CheckPeer(n.rank, n.size, to); err != nil {
		return err
	}
	if err := n.mailbox.Err(); err != nil {
		return err
	}

	pc := n.peers[to]
	pc.wmu.Lock()
	defer pc.wmu.Unlock()

	deadline, _ := ctx.Deadline()
	_ = pc.conn.SetWriteDeadline(deadline)
	if err := frame.Write(pc.conn, uint32(tag), data, n.compression); err != nil {
		return fmt.Errorf("tcp: send to %d: %w", to, err)
	}
	n.sent.Add(uint64(8 * len(data)))
	return nil
}

// Recv implements transport.Transport.
func (n *Node) Recv(ctx context.Context, from, tag int, dst []float64) error {
	if err := transport.CheckPeer(n.rank, n.size, from); err != nil {
		return err
	}
	msg, err := n.mailbox.Take(ctx, from, tag)
	if err != nil {
		return err
	}
	return transport.CopyInto(dst, msg, from, tag)
}

// BytesSent returns the uncompressed payload bytes sent by this node.
func (n *Node) BytesSent() uint64 { return n.sent.Load() }

// Close implements transport.Transport.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	for _, pc := range n.peers {
		if pc != nil {
			if err := pc.conn.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	n.mailbox.Fail(transport.ErrClosed)
	n.readers.Wait()
	return errors.Join(errs...)
}
