package wire

import "encoding/gob"

// RegisterMessageTypes registers all message payload types with gob.
// Both sides of a connection must call this before encoding or decoding.
func RegisterMessageTypes() {
	gob.Register(ExpandGlobsMessage{})
	gob.Register(GlobExpansionComplete{})
	gob.Register(PathGlobsSpec{})
	gob.Register(FileWithContentsDescriptor{})
}
