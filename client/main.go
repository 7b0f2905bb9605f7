// Command globctl issues one glob expansion request against a running
// glob server and prints the matched files.
package main

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/globfs/globd/glob"
	"github.com/globfs/globd/transport"
	"github.com/globfs/globd/wire"
)

// messageIDCounter assigns correlation ids; ids must be positive.
var messageIDCounter atomic.Int64

type patternList []string

func (l *patternList) String() string { return strings.Join(*l, ",") }

func (l *patternList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	var (
		include patternList
		exclude patternList

		addr        = flag.String("addr", "localhost:7077", "glob server address")
		strictness  = flag.String("strictness", "error", "zero-match policy: error, warn or ignore")
		conjunction = flag.String("conjunction", "all_match", "include set policy: all_match or any_match")
		outDir      = flag.String("out", "", "extract matched file contents under this directory")
	)
	flag.Var(&include, "include", "include pattern (repeatable)")
	flag.Var(&exclude, "exclude", "exclude pattern (repeatable)")
	flag.Parse()

	if len(include) == 0 {
		fatalf("at least one -include pattern is required")
	}

	strict, err := glob.ParseStrictness(*strictness)
	if err != nil {
		fatalf("%v", err)
	}

	conj, err := glob.ParseConjunction(*conjunction)
	if err != nil {
		fatalf("%v", err)
	}

	wire.RegisterMessageTypes()

	response, buffer, err := expandGlobs(*addr, wire.ExpandGlobsMessage{
		MessageID: messageIDCounter.Add(1),
		PathGlobs: wire.PathGlobsSpec{
			IncludePatterns: include,
			ExcludePatterns: exclude,
			Strictness:      strict,
			Conjunction:     conj,
		},
	})
	if err != nil {
		fatalf("%v", err)
	}

	for _, fd := range response.AllFiles {
		fmt.Printf("%s\t[%d:%d)\n", fd.Path, fd.ContentsStart, fd.ContentsEnd)
	}

	if *outDir != "" {
		if err := extract(*outDir, response.AllFiles, buffer); err != nil {
			fatalf("extracting contents: %v", err)
		}
	}
}

// expandGlobs performs one request/response exchange: send the framed
// request, read the terminal response, and on OK drain the content
// buffer stream that follows it.
func expandGlobs(addr string, msg wire.ExpandGlobsMessage) (*wire.GlobExpansionComplete, []byte, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	payload := new(bytes.Buffer)
	if err := gob.NewEncoder(payload).Encode(&wire.Message{Payload: msg}); err != nil {
		return nil, nil, err
	}

	if _, err := conn.Write([]byte{transport.IncomingMessage}); err != nil {
		return nil, nil, err
	}
	if err := binary.Write(conn, binary.LittleEndian, int64(payload.Len())); err != nil {
		return nil, nil, err
	}
	if _, err := conn.Write(payload.Bytes()); err != nil {
		return nil, nil, err
	}

	response, err := readResponse(conn)
	if err != nil {
		return nil, nil, err
	}

	if response.MessageID != msg.MessageID {
		return nil, nil, fmt.Errorf("response message_id %d does not match request %d",
			response.MessageID, msg.MessageID)
	}

	if response.Status == wire.StatusError {
		return nil, nil, fmt.Errorf("glob expansion failed: %s", response.ErrorText)
	}

	buffer, err := readBuffer(conn)
	if err != nil {
		return nil, nil, err
	}

	if want := response.BufferLen(); int64(len(buffer)) != want {
		return nil, nil, fmt.Errorf("content buffer is %d bytes, descriptors expect %d", len(buffer), want)
	}

	return response, buffer, nil
}

func readResponse(conn net.Conn) (*wire.GlobExpansionComplete, error) {
	rpc := transport.RPC{}
	if err := (transport.DefaultDecoder{}).Decode(conn, &rpc); err != nil {
		return nil, err
	}
	if rpc.Stream {
		return nil, fmt.Errorf("unexpected stream frame before response")
	}

	var msg wire.Message
	if err := gob.NewDecoder(bytes.NewReader(rpc.Payload)).Decode(&msg); err != nil {
		return nil, err
	}

	response, ok := msg.Payload.(wire.GlobExpansionComplete)
	if !ok {
		return nil, fmt.Errorf("unexpected response type %T", msg.Payload)
	}

	return &response, nil
}

func readBuffer(conn net.Conn) ([]byte, error) {
	frame := make([]byte, 1)
	if _, err := io.ReadFull(conn, frame); err != nil {
		return nil, err
	}
	if frame[0] != transport.IncomingStream {
		return nil, fmt.Errorf("expected stream frame, got 0x%x", frame[0])
	}

	var size int64
	if err := binary.Read(conn, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, fmt.Errorf("negative buffer size %d", size)
	}

	buffer := make([]byte, size)
	if _, err := io.ReadFull(conn, buffer); err != nil {
		return nil, err
	}

	return buffer, nil
}

// extract writes each descriptor's byte range to outDir, recreating the
// matched relative paths.
func extract(outDir string, descriptors []wire.FileWithContentsDescriptor, buffer []byte) error {
	for _, fd := range descriptors {
		target := filepath.Join(outDir, filepath.FromSlash(fd.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}

		if err := os.WriteFile(target, buffer[fd.ContentsStart:fd.ContentsEnd], 0644); err != nil {
			return err
		}
	}

	return nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "globctl: "+format+"\n", args...)
	os.Exit(1)
}
