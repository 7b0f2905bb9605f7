package main

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/globfs/globd/glob"
	"github.com/globfs/globd/transport"
	"github.com/globfs/globd/wire"
)

// handleMessage routes incoming messages to the appropriate handler.
func (s *GlobServer) handleMessage(from string, msg *wire.Message) error {
	switch v := msg.Payload.(type) {
	case wire.ExpandGlobsMessage:
		// Each request runs on its own goroutine so slow filesystem
		// traversal never blocks other in-flight requests.
		go s.processExpandGlobs(from, v)
		return nil
	default:
		return fmt.Errorf("unknown message type: %T", v)
	}
}

// processExpandGlobs drives one request through resolve and pack, ending
// with exactly one terminal response.
func (s *GlobServer) processExpandGlobs(from string, msg wire.ExpandGlobsMessage) {
	logger := log.With(s.Logger, "message_id", msg.MessageID, "from", from)

	if msg.MessageID <= 0 {
		errText := fmt.Sprintf("missing or non-positive message_id %d", msg.MessageID)
		level.Warn(logger).Log("msg", "rejecting request", "err", errText)
		s.completeError(from, msg.MessageID, errText)
		return
	}

	if err := s.beginRequest(msg.MessageID); err != nil {
		// The in-flight request owns this id's single terminal response;
		// answering the duplicate would put a second one on the wire.
		level.Warn(logger).Log("msg", "dropping duplicate request", "err", err)
		return
	}

	if len(msg.PathGlobs.IncludePatterns) == 0 {
		s.endRequest(msg.MessageID)
		s.completeError(from, msg.MessageID, glob.ErrEmptyInclude.Error())
		return
	}

	globs := glob.PathGlobs{
		Include:     msg.PathGlobs.IncludePatterns,
		Exclude:     msg.PathGlobs.ExcludePatterns,
		Strictness:  msg.PathGlobs.Strictness,
		Conjunction: msg.PathGlobs.Conjunction,
	}

	s.setPhase(msg.MessageID, phaseResolving)
	paths, err := s.resolve(logger, globs)
	if err != nil {
		level.Debug(logger).Log("msg", "resolution failed", "err", err)
		s.endRequest(msg.MessageID)
		s.completeError(from, msg.MessageID, err.Error())
		return
	}

	s.setPhase(msg.MessageID, phasePacking)
	buffer, descriptors, err := NewPacker(s.fsys).Pack(paths)
	if err != nil {
		level.Debug(logger).Log("msg", "packing failed", "err", err)
		s.endRequest(msg.MessageID)
		s.completeError(from, msg.MessageID, err.Error())
		return
	}

	level.Debug(logger).Log("msg", "request complete", "files", len(descriptors), "bytes", len(buffer))

	// The id is released before the response is written so a caller that
	// reads the response and immediately reuses the id is never rejected.
	s.endRequest(msg.MessageID)
	s.completeOK(from, msg.MessageID, descriptors, buffer)
}

// resolve runs the glob resolver, consulting the cache when enabled.
func (s *GlobServer) resolve(logger log.Logger, globs glob.PathGlobs) ([]string, error) {
	warn := func(pattern string) {
		level.Warn(logger).Log("msg", "include pattern matched no files", "pattern", pattern)
		if s.Metrics != nil {
			s.Metrics.warnsTotal.Inc()
		}
	}

	opts := glob.ResolveOptions{
		Parallelism: s.Parallelism,
		OnWarn:      warn,
	}

	if s.Cache == nil {
		return glob.Resolve(s.fsys, globs, opts)
	}

	key := globsFingerprint(globs)
	if res, ok := s.Cache.Get(key); ok {
		if s.Metrics != nil {
			s.Metrics.cacheHits.Inc()
		}
		for _, pattern := range res.Warned {
			warn(pattern)
		}
		return res.Paths, nil
	}

	if s.Metrics != nil {
		s.Metrics.cacheMisses.Inc()
	}

	// Captured before resolving: a flush between here and Put means this
	// resolution saw the pre-change tree, and Put discards it.
	generation := s.Cache.Generation()

	var warned []string
	opts.OnWarn = func(pattern string) {
		warned = append(warned, pattern)
		warn(pattern)
	}

	paths, err := glob.Resolve(s.fsys, globs, opts)
	if err != nil {
		return nil, err
	}

	s.Cache.Put(key, Resolution{Paths: paths, Warned: warned}, generation)
	return paths, nil
}

// completeOK sends the terminal OK response followed by the content
// buffer as one size-prefixed bulk stream.
func (s *GlobServer) completeOK(to string, id int64, descriptors []wire.FileWithContentsDescriptor, buffer []byte) {
	if s.Metrics != nil {
		s.Metrics.requestsTotal.WithLabelValues(wire.StatusOK.String()).Inc()
		s.Metrics.packedBytes.Add(float64(len(buffer)))
	}

	peer, ok := s.peer(to)
	if !ok {
		level.Warn(s.Logger).Log("msg", "peer gone before response", "peer", to, "message_id", id)
		return
	}

	response := wire.GlobExpansionComplete{
		MessageID: id,
		Status:    wire.StatusOK,
		AllFiles:  descriptors,
	}

	// The response and its buffer stream must land adjacently even when
	// other requests on this connection complete concurrently.
	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()

	if err := s.sendResponse(peer, response); err != nil {
		level.Warn(s.Logger).Log("msg", "failed to send response", "peer", to, "message_id", id, "err", err)
		return
	}

	if err := s.sendBuffer(peer, buffer); err != nil {
		level.Warn(s.Logger).Log("msg", "failed to stream content buffer", "peer", to, "message_id", id, "err", err)
	}
}

// completeError sends the terminal error response. Error responses carry
// no descriptors and no buffer stream.
func (s *GlobServer) completeError(to string, id int64, errorText string) {
	if s.Metrics != nil {
		s.Metrics.requestsTotal.WithLabelValues(wire.StatusError.String()).Inc()
	}

	peer, ok := s.peer(to)
	if !ok {
		level.Warn(s.Logger).Log("msg", "peer gone before error response", "peer", to, "message_id", id)
		return
	}

	response := wire.GlobExpansionComplete{
		MessageID: id,
		Status:    wire.StatusError,
		ErrorText: errorText,
	}

	peer.writeMu.Lock()
	defer peer.writeMu.Unlock()

	if err := s.sendResponse(peer, response); err != nil {
		level.Warn(s.Logger).Log("msg", "failed to send error response", "peer", to, "message_id", id, "err", err)
	}
}

// sendResponse writes one framed, gob-encoded response message.
func (s *GlobServer) sendResponse(peer transport.Peer, response wire.GlobExpansionComplete) error {
	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(&wire.Message{Payload: response}); err != nil {
		return err
	}

	return transport.SendMessage(peer, buf.Bytes())
}

// sendBuffer writes the content buffer as a stream frame with a
// little-endian int64 size prefix. Sent after every OK response, even
// when empty, so the caller's read sequence is unconditional.
func (s *GlobServer) sendBuffer(peer transport.Peer, buffer []byte) error {
	if err := peer.Send([]byte{transport.IncomingStream}); err != nil {
		return err
	}

	if err := binary.Write(peer, binary.LittleEndian, int64(len(buffer))); err != nil {
		return err
	}

	if len(buffer) == 0 {
		return nil
	}

	return peer.Send(buffer)
}
