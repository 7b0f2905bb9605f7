//go:build integration

package main

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globfs/globd/glob"
	"github.com/globfs/globd/transport"
	"github.com/globfs/globd/wire"
)

var registerOnce sync.Once

func newTestServer(t *testing.T, root string) (*GlobServer, string) {
	t.Helper()
	registerOnce.Do(wire.RegisterMessageTypes)

	tr := transport.NewTCPTransport(transport.TCPTransportConfig{
		ListenAddress: "127.0.0.1:0",
	})
	server := NewGlobServer(GlobServerConfig{
		ServeRoot:   root,
		Transport:   tr,
		Parallelism: 2,
	})
	tr.OnPeer = server.OnPeer
	tr.OnPeerClose = server.OnPeerClose

	require.NoError(t, tr.ListenAndAccept())
	go server.loop()
	t.Cleanup(server.Stop)

	return server, tr.Addr()
}

func scenarioTree(t *testing.T) string {
	t.Helper()
	return writeIntegrationTree(t, map[string]string{
		"src/a.txt":        "alpha contents",
		"src/b.txt":        "bravo contents",
		"src/c.log":        "log contents",
		"src/nested/b.txt": "nested contents",
	})
}

func writeIntegrationTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for path, contents := range files {
		target := filepath.Join(root, filepath.FromSlash(path))
		require.NoError(t, os.MkdirAll(filepath.Dir(target), 0755))
		require.NoError(t, os.WriteFile(target, []byte(contents), 0644))
	}
	return root
}

// expand performs one full client exchange against addr.
func expand(t *testing.T, addr string, msg wire.ExpandGlobsMessage) (*wire.GlobExpansionComplete, []byte) {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	payload := new(bytes.Buffer)
	require.NoError(t, gob.NewEncoder(payload).Encode(&wire.Message{Payload: msg}))
	_, err = conn.Write([]byte{transport.IncomingMessage})
	require.NoError(t, err)
	require.NoError(t, binary.Write(conn, binary.LittleEndian, int64(payload.Len())))
	_, err = conn.Write(payload.Bytes())
	require.NoError(t, err)

	rpc := transport.RPC{}
	require.NoError(t, (transport.DefaultDecoder{}).Decode(conn, &rpc))
	require.False(t, rpc.Stream, "first frame must be the response message")

	var envelope wire.Message
	require.NoError(t, gob.NewDecoder(bytes.NewReader(rpc.Payload)).Decode(&envelope))
	response, ok := envelope.Payload.(wire.GlobExpansionComplete)
	require.True(t, ok, "unexpected payload %T", envelope.Payload)

	if response.Status != wire.StatusOK {
		return &response, nil
	}

	frame := make([]byte, 1)
	_, err = io.ReadFull(conn, frame)
	require.NoError(t, err)
	require.EqualValues(t, transport.IncomingStream, frame[0])

	var size int64
	require.NoError(t, binary.Read(conn, binary.LittleEndian, &size))
	buffer := make([]byte, size)
	_, err = io.ReadFull(conn, buffer)
	require.NoError(t, err)

	return &response, buffer
}

func globsRequest(id int64, include, exclude []string, strictness glob.Strictness, conjunction glob.Conjunction) wire.ExpandGlobsMessage {
	return wire.ExpandGlobsMessage{
		MessageID: id,
		PathGlobs: wire.PathGlobsSpec{
			IncludePatterns: include,
			ExcludePatterns: exclude,
			Strictness:      strictness,
			Conjunction:     conjunction,
		},
	}
}

func descriptorPaths(response *wire.GlobExpansionComplete) []string {
	paths := make([]string, 0, len(response.AllFiles))
	for _, fd := range response.AllFiles {
		paths = append(paths, fd.Path)
	}
	return paths
}

func TestExpandGlobsSimpleInclude(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	response, buffer := expand(t, addr, globsRequest(1,
		[]string{"src/*.txt"}, nil, glob.StrictnessError, glob.ConjunctionAllMatch))

	assert.EqualValues(t, 1, response.MessageID)
	assert.Equal(t, wire.StatusOK, response.Status)
	assert.Empty(t, response.ErrorText)
	assert.Equal(t, []string{"src/a.txt", "src/b.txt"}, descriptorPaths(response))

	// Round-trip: every range reproduces the file exactly.
	assert.Equal(t, []byte("alpha contents"),
		buffer[response.AllFiles[0].ContentsStart:response.AllFiles[0].ContentsEnd])
	assert.Equal(t, []byte("bravo contents"),
		buffer[response.AllFiles[1].ContentsStart:response.AllFiles[1].ContentsEnd])
}

func TestExpandGlobsMissingPatternErrorStrictness(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	response, _ := expand(t, addr, globsRequest(2,
		[]string{"src/*.txt", "missing/*.md"}, nil, glob.StrictnessError, glob.ConjunctionAllMatch))

	assert.EqualValues(t, 2, response.MessageID)
	assert.Equal(t, wire.StatusError, response.Status)
	assert.Empty(t, response.AllFiles)
	assert.Contains(t, response.ErrorText, "missing/*.md")
}

func TestExpandGlobsMissingPatternIgnoreStrictness(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	response, _ := expand(t, addr, globsRequest(3,
		[]string{"src/*.txt", "missing/*.md"}, nil, glob.StrictnessIgnore, glob.ConjunctionAnyMatch))

	assert.Equal(t, wire.StatusOK, response.Status)
	assert.Equal(t, []string{"src/a.txt", "src/b.txt"}, descriptorPaths(response))
}

func TestExpandGlobsRecursiveWithExclude(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	response, _ := expand(t, addr, globsRequest(4,
		[]string{"src/**"}, []string{"src/*.log"}, glob.StrictnessError, glob.ConjunctionAllMatch))

	assert.Equal(t, wire.StatusOK, response.Status)
	assert.Equal(t, []string{"src/a.txt", "src/b.txt", "src/nested/b.txt"}, descriptorPaths(response))
}

func TestExpandGlobsMalformedPattern(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	for id, strictness := range map[int64]glob.Strictness{
		5: glob.StrictnessError,
		6: glob.StrictnessWarn,
		7: glob.StrictnessIgnore,
	} {
		response, _ := expand(t, addr, globsRequest(id,
			[]string{"[unclosed.md"}, nil, strictness, glob.ConjunctionAnyMatch))

		assert.Equal(t, wire.StatusError, response.Status, "strictness %s", strictness)
		assert.NotEmpty(t, response.ErrorText)
	}
}

func TestExpandGlobsEmptyIncludeSet(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	response, _ := expand(t, addr, globsRequest(8,
		nil, nil, glob.StrictnessIgnore, glob.ConjunctionAnyMatch))

	assert.Equal(t, wire.StatusError, response.Status)
	assert.Contains(t, response.ErrorText, "include pattern set is empty")
}

func TestExpandGlobsMissingMessageID(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	response, _ := expand(t, addr, globsRequest(0,
		[]string{"src/*.txt"}, nil, glob.StrictnessError, glob.ConjunctionAllMatch))

	assert.EqualValues(t, 0, response.MessageID)
	assert.Equal(t, wire.StatusError, response.Status)
	assert.Contains(t, response.ErrorText, "message_id")
}

func TestExpandGlobsDeterministicAcrossRequests(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	first, firstBuf := expand(t, addr, globsRequest(9,
		[]string{"src/**"}, nil, glob.StrictnessError, glob.ConjunctionAllMatch))
	second, secondBuf := expand(t, addr, globsRequest(10,
		[]string{"src/**"}, nil, glob.StrictnessError, glob.ConjunctionAllMatch))

	assert.Equal(t, first.AllFiles, second.AllFiles)
	assert.Equal(t, firstBuf, secondBuf)
}

func TestExpandGlobsConcurrentRequests(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	var wg sync.WaitGroup
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()

			response, _ := expand(t, addr, globsRequest(id,
				[]string{"src/*.txt"}, nil, glob.StrictnessError, glob.ConjunctionAllMatch))
			assert.Equal(t, id, response.MessageID)
			assert.Equal(t, wire.StatusOK, response.Status)
		}(int64(100 + i))
	}
	wg.Wait()
}

func TestExpandGlobsMessageIDReusableAfterResponse(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	// The id is released before the response is written, so reading the
	// response means the id may be reused immediately.
	for i := 0; i < 3; i++ {
		response, _ := expand(t, addr, globsRequest(42,
			[]string{"src/*.txt"}, nil, glob.StrictnessError, glob.ConjunctionAllMatch))

		assert.EqualValues(t, 42, response.MessageID)
		assert.Equal(t, wire.StatusOK, response.Status)
	}
}

func TestExpandGlobsRejectsUnknownPolicyValues(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	response, _ := expand(t, addr, globsRequest(12,
		[]string{"src/*.txt"}, nil, glob.Strictness(7), glob.ConjunctionAllMatch))

	assert.Equal(t, wire.StatusError, response.Status)
	assert.Contains(t, response.ErrorText, "strictness")

	response, _ = expand(t, addr, globsRequest(13,
		[]string{"src/*.txt"}, nil, glob.StrictnessError, glob.Conjunction(7)))

	assert.Equal(t, wire.StatusError, response.Status)
	assert.Contains(t, response.ErrorText, "conjunction")
}

func TestPeerPrunedOnDisconnect(t *testing.T) {
	server, addr := newTestServer(t, scenarioTree(t))

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return server.peerCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return server.peerCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "dropped connection must leave the peer table")
}

func TestExpandGlobsExcludeEverything(t *testing.T) {
	_, addr := newTestServer(t, scenarioTree(t))

	// Includes matched pre-exclusion, so this is a legitimate empty OK.
	response, buffer := expand(t, addr, globsRequest(11,
		[]string{"src/*.log"}, []string{"**/*.log"}, glob.StrictnessError, glob.ConjunctionAllMatch))

	assert.Equal(t, wire.StatusOK, response.Status)
	assert.Empty(t, response.AllFiles)
	assert.Empty(t, buffer)
}
