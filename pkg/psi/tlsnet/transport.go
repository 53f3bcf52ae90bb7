// Package tlsnet is a psi.Transport over a single mutually authenticated TLS
// connection between the two parties. Party 2 listens and Party 1 dials;
// each side checks that the peer certificate names the expected party.
package tlsnet

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"sync"
	"time"

	"github.com/coinbase/cb-psi-go/pkg/psi"
)

const (
	// DefaultMaxFrameSize bounds a single received message.
	DefaultMaxFrameSize = 1 << 30
	// DefaultConnectTimeout bounds Dial retries and Accept.
	DefaultConnectTimeout = 10 * time.Second

	redialDelay = 200 * time.Millisecond
)

// Config configures one side of the connection. Names and Addresses are
// indexed by psi.RoleID.
type Config struct {
	Role           psi.Role
	Names          [2]string
	Addresses      [2]string
	Certificate    tls.Certificate
	RootCAs        *x509.CertPool
	MaxFrameSize   int
	ConnectTimeout time.Duration
}

func (c Config) validate() error {
	if c.RootCAs == nil {
		return errors.New("tlsnet: root CA pool required")
	}
	if !c.Role.Valid() {
		return fmt.Errorf("tlsnet: invalid role %s", c.Role)
	}
	if c.Names[0] == "" || c.Names[1] == "" || c.Names[0] == c.Names[1] {
		return fmt.Errorf("tlsnet: need two distinct party names, got %q", c.Names)
	}
	if c.MaxFrameSize < 0 || c.MaxFrameSize > math.MaxUint32 {
		return fmt.Errorf("tlsnet: max frame size %d out of range", c.MaxFrameSize)
	}
	return nil
}

func (c Config) maxFrame() int {
	if c.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return c.ConnectTimeout
}

func (c Config) peerName() string { return c.Names[c.Role.Peer()] }

// New connects to the peer according to cfg.Role: Party 2 listens on its
// address and accepts Party 1, Party 1 dials Party 2.
func New(ctx context.Context, cfg Config) (*Transport, error) {
	if cfg.Role == psi.RoleP1 {
		return Dial(ctx, cfg)
	}
	l, err := Listen(cfg)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	return l.Accept(ctx)
}

// Listener accepts Party 1's connection.
type Listener struct {
	cfg Config
	ln  net.Listener
}

// Listen binds Party 2's address.
func Listen(cfg Config) (*Listener, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Role != psi.RoleP2 {
		return nil, errors.New("tlsnet: only party 2 listens")
	}
	ln, err := tls.Listen("tcp", cfg.Addresses[psi.RoleP2], &tls.Config{
		Certificates: []tls.Certificate{cfg.Certificate},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    cfg.RootCAs,
		MinVersion:   tls.VersionTLS12,
	})
	if err != nil {
		return nil, fmt.Errorf("tlsnet: listen: %w", err)
	}
	return &Listener{cfg: cfg, ln: ln}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close stops listening. An established Transport is unaffected.
func (l *Listener) Close() error { return l.ln.Close() }

// Accept waits for Party 1. Connections that fail the handshake or present
// another identity are dropped and Accept keeps waiting until the connect
// timeout.
func (l *Listener) Accept(ctx context.Context) (*Transport, error) {
	ctx, cancel := context.WithTimeoutCause(ctx, l.cfg.connectTimeout(), errors.New("tlsnet: timeout waiting for peer connection"))
	defer cancel()
	stop := context.AfterFunc(ctx, func() { _ = l.ln.Close() })
	defer stop()

	var last error
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				if last != nil {
					return nil, fmt.Errorf("%w (last rejected peer: %v)", context.Cause(ctx), last)
				}
				return nil, context.Cause(ctx)
			}
			return nil, fmt.Errorf("tlsnet: accept: %w", err)
		}
		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			_ = conn.Close()
			last = errors.New("non-TLS connection")
			continue
		}
		if err := handshake(ctx, tlsConn, l.cfg.peerName()); err != nil {
			_ = tlsConn.Close()
			last = err
			continue
		}
		return newTransport(l.cfg, tlsConn), nil
	}
}

// Dial connects Party 1 to Party 2, retrying until the connect timeout.
func Dial(ctx context.Context, cfg Config) (*Transport, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Role != psi.RoleP1 {
		return nil, errors.New("tlsnet: only party 1 dials")
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.connectTimeout())
	defer cancel()

	d := &tls.Dialer{Config: &tls.Config{
		Certificates: []tls.Certificate{cfg.Certificate},
		RootCAs:      cfg.RootCAs,
		ServerName:   cfg.peerName(),
		MinVersion:   tls.VersionTLS12,
	}}
	for {
		conn, err := d.DialContext(ctx, "tcp", cfg.Addresses[psi.RoleP2])
		if err == nil {
			return newTransport(cfg, conn.(*tls.Conn)), nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("tlsnet: dial %s: %w", cfg.Addresses[psi.RoleP2], err)
		case <-time.After(redialDelay):
		}
	}
}

// handshake completes the server side and checks the client certificate
// against the expected peer name.
func handshake(ctx context.Context, conn *tls.Conn, peer string) error {
	if err := conn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tlsnet: handshake: %w", err)
	}
	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return errors.New("tlsnet: peer sent no certificate")
	}
	if err := certs[0].VerifyHostname(peer); err != nil {
		return fmt.Errorf("tlsnet: peer identity: %w", err)
	}
	return nil
}

// Transport implements psi.Transport over one established connection.
type Transport struct {
	peer     psi.RoleID
	maxFrame int
	pc       *peerConn

	cancel    context.CancelFunc
	closeOnce sync.Once
}

var _ psi.Transport = (*Transport)(nil)

func newTransport(cfg Config, conn net.Conn) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		peer:     cfg.Role.Peer(),
		maxFrame: cfg.maxFrame(),
		pc:       newPeerConn(ctx, conn, cfg.maxFrame()),
		cancel:   cancel,
	}
}

func (t *Transport) Send(ctx context.Context, to psi.RoleID, msg []byte) error {
	if to != t.peer {
		return fmt.Errorf("tlsnet: unknown peer %d", to)
	}
	if len(msg) > t.maxFrame {
		return fmt.Errorf("tlsnet: frame of %d bytes exceeds limit %d", len(msg), t.maxFrame)
	}
	return t.pc.sendOne(ctx, msg)
}

func (t *Transport) Receive(ctx context.Context, from psi.RoleID) ([]byte, error) {
	if from != t.peer {
		return nil, fmt.Errorf("tlsnet: unknown peer %d", from)
	}
	return t.pc.recvOne(ctx)
}

// Close terminates the connection and waits for the reader goroutine.
// Pending and later calls fail.
func (t *Transport) Close() error {
	t.closeOnce.Do(func() {
		t.cancel()
		t.pc.close()
		<-t.pc.exited
	})
	return nil
}

type peerConn struct {
	conn     net.Conn
	maxFrame int

	wmu    sync.Mutex
	recv   chan []byte
	done   chan struct{}
	exited chan struct{}

	errOnce       sync.Once
	err           error
	closeRecvOnce sync.Once
}

func newPeerConn(ctx context.Context, conn net.Conn, maxFrame int) *peerConn {
	pc := &peerConn{
		conn:     conn,
		maxFrame: maxFrame,
		recv:     make(chan []byte, 16),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go pc.reader(ctx)
	return pc
}

func (pc *peerConn) reader(ctx context.Context) {
	defer close(pc.exited)
	defer pc.closeRecv()
	for {
		msg, err := readFrame(pc.conn, pc.maxFrame)
		if err != nil {
			pc.setErr(err)
			return
		}
		select {
		case pc.recv <- msg:
		case <-pc.done:
			return
		case <-ctx.Done():
			pc.setErr(ctx.Err())
			return
		}
	}
}

// sendOne writes msg before returning, so a frame sent just before Close is
// not lost. A write interrupted by ctx leaves the stream unusable and fails
// the connection.
func (pc *peerConn) sendOne(ctx context.Context, msg []byte) error {
	pc.wmu.Lock()
	defer pc.wmu.Unlock()
	select {
	case <-pc.done:
		return pc.errOr(io.ErrClosedPipe)
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { _ = pc.conn.SetWriteDeadline(time.Unix(1, 0)) })
	err := writeFrame(pc.conn, msg)
	if !stop() {
		pc.setErr(ctx.Err())
		return ctx.Err()
	}
	if err != nil {
		pc.setErr(err)
		return fmt.Errorf("tlsnet: write: %w", err)
	}
	return nil
}

func (pc *peerConn) recvOne(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-pc.recv:
		if !ok {
			return nil, pc.errOr(io.EOF)
		}
		return msg, nil
	}
}

func (pc *peerConn) close() {
	pc.setErr(net.ErrClosed)
}

func (pc *peerConn) setErr(err error) {
	pc.errOnce.Do(func() {
		if err == nil {
			err = io.EOF
		}
		pc.err = err
		_ = pc.conn.Close()
		close(pc.done)
	})
}

func (pc *peerConn) closeRecv() {
	pc.closeRecvOnce.Do(func() {
		close(pc.recv)
	})
}

// errOr is only called after done or recv is closed, both of which happen
// after err is set.
func (pc *peerConn) errOr(fallback error) error {
	if pc.err != nil {
		return fmt.Errorf("tlsnet: connection closed: %w", pc.err)
	}
	return fallback
}

func writeFrame(conn net.Conn, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	bufs := net.Buffers{lenBuf[:], payload}
	_, err := bufs.WriteTo(conn)
	return err
}

func readFrame(conn net.Conn, maxFrame int) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if uint64(n) > uint64(maxFrame) {
		return nil, fmt.Errorf("tlsnet: peer frame of %d bytes exceeds limit %d", n, maxFrame)
	}
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
