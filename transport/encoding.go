package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessageSize bounds one framed message payload.
const MaxMessageSize = 16 << 20

// Decoder reads one RPC from the wire.
type Decoder interface {
	Decode(io.Reader, *RPC) error
}

// DefaultDecoder reads a frame byte, then for message frames a
// little-endian int64 size prefix and the payload. Stream frames leave the
// remaining bytes on the connection for the consumer.
type DefaultDecoder struct{}

func (DefaultDecoder) Decode(r io.Reader, rpc *RPC) error {
	frame := make([]byte, 1)
	if _, err := io.ReadFull(r, frame); err != nil {
		return err
	}

	if frame[0] == IncomingStream {
		rpc.Stream = true
		return nil
	}

	if frame[0] != IncomingMessage {
		return fmt.Errorf("unknown frame byte 0x%x", frame[0])
	}

	var size int64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return err
	}

	if size < 0 || size > MaxMessageSize {
		return fmt.Errorf("message size %d out of bounds", size)
	}

	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	rpc.Payload = buf
	return nil
}

// SendMessage writes one framed message payload to a peer.
func SendMessage(p Peer, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("message size %d out of bounds", len(payload))
	}

	if err := p.Send([]byte{IncomingMessage}); err != nil {
		return err
	}

	if err := binary.Write(p, binary.LittleEndian, int64(len(payload))); err != nil {
		return err
	}

	return p.Send(payload)
}
