package buffer

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

// Channel is a read-only byte source addressed by absolute offset. Every
// read names its own offset and length, so one Channel may be shared by any
// number of concurrent readers.
type Channel interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() int64
}

// Output is an append-only byte sink that knows its current offset.
type Output interface {
	io.Writer
	Offset() int64
}

// Read loads n bytes at off into a fresh ReadBuffer.
func Read(ch Channel, off int64, n int) (ReadBuffer, error) {
	if n == 0 {
		return ReadBuffer{}, nil
	}
	if off < 0 || off+int64(n) > ch.Size() {
		return ReadBuffer{}, lxerrors.Newf(lxerrors.ErrCorrupt, "channel read", "offset %d length %d beyond size %d", off, n, ch.Size())
	}
	p := make([]byte, n)
	got, err := ch.ReadAt(p, off)
	if got < n {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return ReadBuffer{}, lxerrors.IO(fmt.Sprintf("reading %d bytes at %d", n, off), err)
	}
	return NewReadBuffer(p), nil
}

// MemChannel serves reads from an in-memory byte slice.
func MemChannel(b []byte) Channel {
	return bytes.NewReader(b)
}

// FileChannel is a Channel over an open file.
type FileChannel struct {
	f    *os.File
	size int64
}

// OpenFile opens path for positional reads.
func OpenFile(path string) (*FileChannel, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, lxerrors.IO("opening channel", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, lxerrors.IO("stat channel", err)
	}
	return &FileChannel{f: f, size: st.Size()}, nil
}

func (c *FileChannel) ReadAt(p []byte, off int64) (int, error) { return c.f.ReadAt(p, off) }

func (c *FileChannel) Size() int64 { return c.size }

func (c *FileChannel) Close() error { return c.f.Close() }

// FileOutput is a buffered, offset-tracking Output over a file. It also
// supports WriteAt so reserved headers can be backpatched.
type FileOutput struct {
	f   *os.File
	w   *bufio.Writer
	off int64
}

// CreateFile creates (or truncates) path for writing.
func CreateFile(path string) (*FileOutput, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, lxerrors.IO("creating channel", err)
	}
	return &FileOutput{f: f, w: bufio.NewWriterSize(f, 64<<10)}, nil
}

func (o *FileOutput) Write(p []byte) (int, error) {
	n, err := o.w.Write(p)
	o.off += int64(n)
	if err != nil {
		return n, lxerrors.IO("writing channel", err)
	}
	return n, nil
}

func (o *FileOutput) Offset() int64 { return o.off }

// WriteAt flushes pending bytes and overwrites at off.
func (o *FileOutput) WriteAt(p []byte, off int64) (int, error) {
	if err := o.w.Flush(); err != nil {
		return 0, lxerrors.IO("flushing channel", err)
	}
	n, err := o.f.WriteAt(p, off)
	if err != nil {
		return n, lxerrors.IO("patching channel", err)
	}
	return n, nil
}

// Close flushes, syncs and closes the file.
func (o *FileOutput) Close() error {
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return lxerrors.IO("flushing channel", err)
	}
	if err := o.f.Sync(); err != nil {
		o.f.Close()
		return lxerrors.IO("syncing channel", err)
	}
	if err := o.f.Close(); err != nil {
		return lxerrors.IO("closing channel", err)
	}
	return nil
}

// Patch is a deferred overwrite of a reserved region.
type Patch struct {
	Offset int64
	Data   []byte
}

// Patcher is anything that can overwrite bytes in place.
type Patcher interface {
	WriteAt(p []byte, off int64) (int, error)
}

// ApplyPatches writes every patch in order.
func ApplyPatches(p Patcher, patches []Patch) error {
	for _, patch := range patches {
		if _, err := p.WriteAt(patch.Data, patch.Offset); err != nil {
			return fmt.Errorf("applying patch at %d: %w", patch.Offset, err)
		}
	}
	return nil
}
