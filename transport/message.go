package transport

// Frame bytes distinguishing framed messages from raw bulk streams.
const (
	IncomingMessage = 0x1
	IncomingStream  = 0x2
)

// RPC is one unit of data received from a peer. For stream frames the
// payload is not buffered here; the consumer reads it directly from the
// peer and then calls CloseStream.
type RPC struct {
	From    string
	Payload []byte
	Stream  bool
}
