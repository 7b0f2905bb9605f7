// Package wire defines the glob expansion request/response contract
// exchanged between the server and its callers.
package wire

import "github.com/globfs/globd/glob"

// Message is the envelope for all wire payloads.
type Message struct {
	Payload any
}

// PathGlobsSpec carries one request's pattern sets and matching policy.
type PathGlobsSpec struct {
	IncludePatterns []string
	ExcludePatterns []string
	Strictness      glob.Strictness
	Conjunction     glob.Conjunction
}

// ExpandGlobsMessage asks the server to resolve globs and pack contents.
// MessageID correlates the eventual response and must be positive; zero
// means the caller omitted it, which is a malformed request.
type ExpandGlobsMessage struct {
	MessageID int64
	PathGlobs PathGlobsSpec
}

// GlobExpansionStatus is the terminal outcome of one request.
type GlobExpansionStatus int32

const (
	StatusOK GlobExpansionStatus = iota
	StatusError
)

func (s GlobExpansionStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FileWithContentsDescriptor locates one file's bytes inside the content
// buffer that accompanies a successful response: buffer[ContentsStart:ContentsEnd].
type FileWithContentsDescriptor struct {
	Path          string
	ContentsStart int64
	ContentsEnd   int64
}

// GlobExpansionComplete is the single terminal response for one request.
// On StatusOK, AllFiles is populated and ErrorText empty; on StatusError,
// ErrorText names the cause and AllFiles is empty. The content buffer
// follows as a bulk stream after every StatusOK response: a stream frame,
// a little-endian int64 size, then the raw bytes.
type GlobExpansionComplete struct {
	MessageID int64
	Status    GlobExpansionStatus
	AllFiles  []FileWithContentsDescriptor
	ErrorText string
}

// BufferLen returns the content buffer size implied by the descriptor
// ranges, which is also the stream size a caller should expect.
func (m *GlobExpansionComplete) BufferLen() int64 {
	var max int64
	for _, fd := range m.AllFiles {
		if fd.ContentsEnd > max {
			max = fd.ContentsEnd
		}
	}
	return max
}
