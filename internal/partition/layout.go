// Package partition stores independent chunks of the index. A live Memory
// partition accepts documents; dumping it writes a directory holding the
// dictionary file, two postings channels and the deletion bitmap, which
// Open maps back for querying.
package partition

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
)

const (
	// Magic identifies a partition dictionary file ("LXP1").
	Magic   int32 = 0x4c585031
	Version int32 = 1

	DictFile    = "dict"
	DeletedFile = "deleted.bm"
	tmpSuffix   = ".tmp"
	namePrefix  = "p-"
)

// PostingsFile names postings channel ch.
func PostingsFile(ch int) string { return fmt.Sprintf("post.%d", ch) }

// Name is the directory name of partition seq.
func Name(seq uint64) string { return namePrefix + strconv.FormatUint(seq, 10) }

// ParseName returns the sequence number of a committed partition
// directory name.
func ParseName(name string) (uint64, bool) {
	if !strings.HasPrefix(name, namePrefix) || strings.HasSuffix(name, tmpSuffix) {
		return 0, false
	}
	seq, err := strconv.ParseUint(strings.TrimPrefix(name, namePrefix), 10, 64)
	return seq, err == nil
}

// List returns the sequence numbers of the committed partitions under root
// in ascending order. Leftover temporary directories are ignored.
func List(root string) ([]uint64, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, lxerrors.IO("listing partitions", err)
	}
	var seqs []uint64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if seq, ok := ParseName(e.Name()); ok {
			seqs = append(seqs, seq)
		}
	}
	slices.Sort(seqs)
	return seqs, nil
}

// Path is the directory of partition seq under root.
func Path(root string, seq uint64) string { return filepath.Join(root, Name(seq)) }

type fieldRef struct {
	id     int32
	offset int64
}

// header is the fixed preamble of the dictionary file.
type header struct {
	maxDocID uint32
	docKeys  int64
	fields   []fieldRef
}

func headerSize(fields int) int { return 4*4 + 8 + fields*(4+8) }

func (h *header) encode() []byte {
	b := buffer.NewWriteBuffer(headerSize(len(h.fields)))
	b.PutInt32(Magic)
	b.PutInt32(Version)
	b.PutInt32(int32(h.maxDocID))
	b.PutInt32(int32(len(h.fields)))
	b.PutInt64(h.docKeys)
	for _, f := range h.fields {
		b.PutInt32(f.id)
		b.PutInt64(f.offset)
	}
	return b.Bytes()
}

func readHeader(ch buffer.Channel) (header, error) {
	fixed, err := buffer.Read(ch, 0, headerSize(0))
	if err != nil {
		return header{}, err
	}
	if m := fixed.GetInt32(); m != Magic {
		return header{}, lxerrors.Newf(lxerrors.ErrCorrupt, "open partition", "bad magic %#x", m)
	}
	if v := fixed.GetInt32(); v != Version {
		return header{}, lxerrors.Newf(lxerrors.ErrCorrupt, "open partition", "version %d", v)
	}
	h := header{maxDocID: uint32(fixed.GetInt32())}
	n := int(fixed.GetInt32())
	h.docKeys = fixed.GetInt64()
	if n < 0 {
		return header{}, lxerrors.Newf(lxerrors.ErrCorrupt, "open partition", "%d fields", n)
	}
	refs, err := buffer.Read(ch, int64(headerSize(0)), n*(4+8))
	if err != nil {
		return header{}, err
	}
	h.fields = make([]fieldRef, n)
	for i := range h.fields {
		h.fields[i] = fieldRef{id: refs.GetInt32(), offset: refs.GetInt64()}
	}
	return h, nil
}
