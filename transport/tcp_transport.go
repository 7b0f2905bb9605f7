package transport

import (
	"errors"
	"net"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// HandshakeFunc runs once per new connection before messages flow.
type HandshakeFunc func(Peer) error

// NOPHandshakeFunc accepts every connection.
func NOPHandshakeFunc(Peer) error { return nil }

// TCPPeer represents a remote peer over an established TCP connection.
type TCPPeer struct {
	net.Conn

	// outbound is true when this side initiated the connection.
	outbound bool

	// wg blocks the read loop while the consumer drains an incoming stream.
	wg *sync.WaitGroup
}

func NewTCPPeer(conn net.Conn, outbound bool) *TCPPeer {
	return &TCPPeer{
		Conn:     conn,
		outbound: outbound,
		wg:       &sync.WaitGroup{},
	}
}

func (p *TCPPeer) Send(b []byte) error {
	_, err := p.Conn.Write(b)
	return err
}

func (p *TCPPeer) CloseStream() {
	p.wg.Done()
}

// TCPTransportConfig configures a TCPTransport.
type TCPTransportConfig struct {
	ListenAddress string
	Handshake     HandshakeFunc
	Decoder       Decoder
	// OnPeer is called for every new peer; a non-nil error drops the connection.
	OnPeer func(Peer) error
	// OnPeerClose is called after a peer's connection is torn down.
	OnPeerClose func(Peer)
	Logger      log.Logger
}

// TCPTransport handles communication between nodes over TCP.
type TCPTransport struct {
	TCPTransportConfig
	listener net.Listener
	rpcch    chan RPC
}

func NewTCPTransport(config TCPTransportConfig) *TCPTransport {
	if config.Handshake == nil {
		config.Handshake = NOPHandshakeFunc
	}
	if config.Decoder == nil {
		config.Decoder = DefaultDecoder{}
	}
	if config.Logger == nil {
		config.Logger = log.NewNopLogger()
	}

	return &TCPTransport{
		TCPTransportConfig: config,
		rpcch:              make(chan RPC, 1024),
	}
}

// Addr returns the bound listen address, usable for dialing once
// ListenAndAccept has succeeded.
func (t *TCPTransport) Addr() string {
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.ListenAddress
}

// Consume returns the channel of incoming RPCs.
func (t *TCPTransport) Consume() <-chan RPC {
	return t.rpcch
}

func (t *TCPTransport) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

// Dial connects to a remote node and starts the read loop for the
// resulting outbound peer.
func (t *TCPTransport) Dial(addr string) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	go t.handleConn(conn, true)
	return nil
}

func (t *TCPTransport) ListenAndAccept() error {
	var err error
	t.listener, err = net.Listen("tcp", t.ListenAddress)
	if err != nil {
		return err
	}

	go t.startAcceptLoop()
	level.Info(t.Logger).Log("msg", "listening", "addr", t.Addr())
	return nil
}

func (t *TCPTransport) startAcceptLoop() {
	for {
		conn, err := t.listener.Accept()
		if errors.Is(err, net.ErrClosed) {
			return
		}
		if err != nil {
			level.Warn(t.Logger).Log("msg", "accept error", "err", err)
			continue
		}

		go t.handleConn(conn, false)
	}
}

func (t *TCPTransport) handleConn(conn net.Conn, outbound bool) {
	peer := NewTCPPeer(conn, outbound)

	var err error
	defer func() {
		level.Debug(t.Logger).Log("msg", "dropping peer connection", "peer", conn.RemoteAddr(), "err", err)
		conn.Close()
		if t.OnPeerClose != nil {
			t.OnPeerClose(peer)
		}
	}()

	if err = t.Handshake(peer); err != nil {
		return
	}

	if t.OnPeer != nil {
		if err = t.OnPeer(peer); err != nil {
			return
		}
	}

	for {
		rpc := RPC{}
		err = t.Decoder.Decode(conn, &rpc)
		if err != nil {
			return
		}

		rpc.From = conn.RemoteAddr().String()

		if rpc.Stream {
			// Park the read loop until the consumer finishes draining the
			// stream directly from the connection.
			peer.wg.Add(1)
			t.rpcch <- rpc
			peer.wg.Wait()
			continue
		}

		t.rpcch <- rpc
	}
}
