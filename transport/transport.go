package transport

import "net"

// Peer represents the remote end of an established connection.
type Peer interface {
	// Conn gives handlers direct access for bulk stream reads and writes.
	net.Conn
	// Send writes raw bytes to the peer.
	Send([]byte) error
	// CloseStream signals that the consumer finished reading an incoming
	// bulk stream, releasing the connection read loop.
	CloseStream()
}

// Transport handles message exchange between nodes.
// Can be TCP, unix sockets, etc.
type Transport interface {
	Addr() string
	Dial(string) error
	ListenAndAccept() error
	Consume() <-chan RPC
	Close() error
}
