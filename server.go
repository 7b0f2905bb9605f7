package main

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/globfs/globd/transport"
	"github.com/globfs/globd/wire"
)

// requestPhase tracks one in-flight request through its state machine:
// received -> resolving -> packing -> completed. Completion removes the
// entry from the in-flight table.
type requestPhase uint8

const (
	phaseReceived requestPhase = iota
	phaseResolving
	phasePacking
)

type GlobServerConfig struct {
	// ServeRoot is the directory the server resolves globs against. The
	// tree is read-only from the server's perspective.
	ServeRoot string
	Transport transport.Transport
	// Parallelism bounds concurrent include pattern expansion per request.
	Parallelism int
	// Cache is optional; nil disables resolve memoization.
	Cache   *ResolveCache
	Metrics *Metrics
	Logger  log.Logger
}

// GlobServer dispatches glob expansion requests. Each request advances
// its own state machine on its own goroutine, so slow traversals never
// block unrelated requests. Every request gets exactly one terminal
// response; there is no cancellation in the protocol, so callers that
// lose interest simply drop the late response by message id.
type GlobServer struct {
	GlobServerConfig

	fsys fs.FS

	peerLock sync.Mutex
	peers    map[string]*peerSession

	inflightMu sync.Mutex
	inflight   map[int64]requestPhase

	quitch chan struct{}
}

func NewGlobServer(config GlobServerConfig) *GlobServer {
	if config.Logger == nil {
		config.Logger = log.NewNopLogger()
	}

	return &GlobServer{
		GlobServerConfig: config,
		fsys:             os.DirFS(config.ServeRoot),
		peers:            make(map[string]*peerSession),
		inflight:         make(map[int64]requestPhase),
		quitch:           make(chan struct{}),
	}
}

// Start listens for connections and processes requests until Stop.
func (s *GlobServer) Start() error {
	if err := s.Transport.ListenAndAccept(); err != nil {
		return err
	}

	s.loop()
	return nil
}

func (s *GlobServer) Stop() {
	close(s.quitch)
}

// peerSession pairs a peer with a write lock. Responses are multi-frame
// writes, and concurrent in-flight requests from one connection complete
// on separate goroutines, so terminal writes must not interleave.
type peerSession struct {
	transport.Peer
	writeMu sync.Mutex
}

// OnPeer is called by the transport when a new peer connects.
func (s *GlobServer) OnPeer(p transport.Peer) error {
	s.peerLock.Lock()
	defer s.peerLock.Unlock()

	s.peers[p.RemoteAddr().String()] = &peerSession{Peer: p}
	level.Debug(s.Logger).Log("msg", "peer connected", "peer", p.RemoteAddr())
	return nil
}

// OnPeerClose is called by the transport when a peer's connection drops.
func (s *GlobServer) OnPeerClose(p transport.Peer) {
	s.peerLock.Lock()
	defer s.peerLock.Unlock()

	delete(s.peers, p.RemoteAddr().String())
	level.Debug(s.Logger).Log("msg", "peer disconnected", "peer", p.RemoteAddr())
}

func (s *GlobServer) peerCount() int {
	s.peerLock.Lock()
	defer s.peerLock.Unlock()

	return len(s.peers)
}

func (s *GlobServer) peer(addr string) (*peerSession, bool) {
	s.peerLock.Lock()
	defer s.peerLock.Unlock()

	p, ok := s.peers[addr]
	return p, ok
}

// loop consumes incoming messages until quitch closes.
func (s *GlobServer) loop() {
	defer func() {
		level.Info(s.Logger).Log("msg", "server loop stopped")
		s.Transport.Close()
	}()

	for {
		select {
		case rpc := <-s.Transport.Consume():
			var msg wire.Message
			if err := gob.NewDecoder(bytes.NewReader(rpc.Payload)).Decode(&msg); err != nil {
				level.Warn(s.Logger).Log("msg", "failed to decode message", "from", rpc.From, "err", err)
				continue
			}
			if err := s.handleMessage(rpc.From, &msg); err != nil {
				level.Warn(s.Logger).Log("msg", "failed to handle message", "from", rpc.From, "err", err)
			}
		case <-s.quitch:
			return
		}
	}
}

// beginRequest registers a message id as in flight. It fails when the id
// is non-positive or already in flight: admitting a duplicate would make
// exactly-one-terminal-response unenforceable.
func (s *GlobServer) beginRequest(id int64) error {
	if id <= 0 {
		return fmt.Errorf("missing or non-positive message_id %d", id)
	}

	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	if _, dup := s.inflight[id]; dup {
		return fmt.Errorf("duplicate in-flight message_id %d", id)
	}

	s.inflight[id] = phaseReceived
	return nil
}

func (s *GlobServer) setPhase(id int64, phase requestPhase) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	s.inflight[id] = phase
}

func (s *GlobServer) endRequest(id int64) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	delete(s.inflight, id)
}

// inflightCount reports how many requests are currently in flight.
func (s *GlobServer) inflightCount() int {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()

	return len(s.inflight)
}
