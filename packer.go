package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/globfs/globd/wire"
)

// ErrContentRead indicates a resolved file could not be read while packing.
var ErrContentRead = errors.New("content read failure")

// Packer reads resolved files into one contiguous buffer with per-file
// offset ranges. Packing amortizes framing overhead to one bulk transfer
// per request regardless of match-set size.
type Packer struct {
	fsys fs.FS
}

func NewPacker(fsys fs.FS) *Packer {
	return &Packer{fsys: fsys}
}

// Pack reads each path's full contents in order, appending to a single
// buffer and recording [start, end) for each. Packing is fail-fast: a
// file that vanished or became unreadable since resolution aborts the
// whole request so descriptors always index valid, complete ranges.
func (p *Packer) Pack(paths []string) ([]byte, []wire.FileWithContentsDescriptor, error) {
	var buf bytes.Buffer
	descriptors := make([]wire.FileWithContentsDescriptor, 0, len(paths))

	for _, path := range paths {
		start := int64(buf.Len())

		f, err := p.fsys.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: opening %q: %v", ErrContentRead, path, err)
		}

		_, err = io.Copy(&buf, f)
		f.Close()
		if err != nil {
			return nil, nil, fmt.Errorf("%w: reading %q: %v", ErrContentRead, path, err)
		}

		descriptors = append(descriptors, wire.FileWithContentsDescriptor{
			Path:          path,
			ContentsStart: start,
			ContentsEnd:   int64(buf.Len()),
		})
	}

	return buf.Bytes(), descriptors, nil
}
