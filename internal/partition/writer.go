package partition

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/buffer"
	lxerrors "github.com/Adithya-Monish-Kumar-K/lexicon/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/metrics"
)

// Writer builds one partition directory. Everything is written under
// p-<seq>.tmp; Commit applies the deferred patches and renames the
// directory, so readers never see a partial partition.
type Writer struct {
	root    string
	seq     uint64
	tmp     string
	dict    *buffer.FileOutput
	outs    [2]*buffer.FileOutput
	hdr     header
	patches []buffer.Patch
	metrics *metrics.Metrics
	logger  *slog.Logger
	begun   bool
	done    bool
}

// Create prepares the temporary directory of partition seq under root.
func Create(root string, seq uint64, m *metrics.Metrics) (*Writer, error) {
	tmp := Path(root, seq) + tmpSuffix
	if err := os.RemoveAll(tmp); err != nil {
		return nil, lxerrors.IO("clearing partition directory", err)
	}
	if err := os.MkdirAll(tmp, 0755); err != nil {
		return nil, lxerrors.IO("creating partition directory", err)
	}
	w := &Writer{
		root:    root,
		seq:     seq,
		tmp:     tmp,
		metrics: metrics.Or(m),
		logger:  slog.Default().With("component", "partition-writer", "partition", Name(seq)),
	}
	var err error
	if w.dict, err = buffer.CreateFile(filepath.Join(tmp, DictFile)); err != nil {
		w.Abort()
		return nil, err
	}
	for ch := range w.outs {
		if w.outs[ch], err = buffer.CreateFile(filepath.Join(tmp, PostingsFile(ch))); err != nil {
			w.Abort()
			return nil, err
		}
	}
	return w, nil
}

func (w *Writer) Seq() uint64 { return w.seq }

// Begin reserves the partition header for the given number of fields.
func (w *Writer) Begin(maxDocID uint32, fields int) error {
	w.hdr = header{maxDocID: maxDocID, fields: make([]fieldRef, 0, fields), docKeys: -1}
	if _, err := w.dict.Write(make([]byte, headerSize(fields))); err != nil {
		return err
	}
	w.begun = true
	return nil
}

// Dict is the dictionary file.
func (w *Writer) Dict() buffer.Output { return w.dict }

// Outs are the postings channels.
func (w *Writer) Outs() []buffer.Output { return []buffer.Output{w.outs[0], w.outs[1]} }

// AddField records the header offset of a field section and the patches
// the section still needs.
func (w *Writer) AddField(id int32, offset int64, patches []buffer.Patch) error {
	if len(w.hdr.fields) == cap(w.hdr.fields) {
		return lxerrors.Newf(lxerrors.ErrInvalidInput, "add field", "more than %d fields reserved", cap(w.hdr.fields))
	}
	w.hdr.fields = append(w.hdr.fields, fieldRef{id: id, offset: offset})
	w.patches = append(w.patches, patches...)
	return nil
}

// SetDocKeys records the offset of the document key dictionary.
func (w *Writer) SetDocKeys(offset int64, patches []buffer.Patch) {
	w.hdr.docKeys = offset
	w.patches = append(w.patches, patches...)
}

// Commit backpatches the dictionary file, writes the deletion bitmap,
// syncs everything and publishes the partition directory. It returns the
// final path.
func (w *Writer) Commit(deleted *roaring.Bitmap) (string, error) {
	if !w.begun {
		w.Abort()
		return "", lxerrors.New(lxerrors.ErrInvalidInput, "commit partition", "header not reserved")
	}
	if len(w.hdr.fields) != cap(w.hdr.fields) {
		w.Abort()
		return "", lxerrors.Newf(lxerrors.ErrInvalidInput, "commit partition", "%d of %d fields written", len(w.hdr.fields), cap(w.hdr.fields))
	}
	patches := append(w.patches, buffer.Patch{Offset: 0, Data: w.hdr.encode()})
	if err := buffer.ApplyPatches(w.dict, patches); err != nil {
		w.Abort()
		return "", err
	}
	dictBytes := w.dict.Offset()
	for ch, o := range w.outs {
		w.metrics.PostingsBytesWritten.WithLabelValues(strconv.Itoa(ch)).Add(float64(o.Offset()))
	}
	if err := w.closeFiles(); err != nil {
		w.Abort()
		return "", err
	}
	if deleted == nil {
		deleted = roaring.New()
	}
	if err := writeBitmap(filepath.Join(w.tmp, DeletedFile), deleted); err != nil {
		w.Abort()
		return "", err
	}
	final := Path(w.root, w.seq)
	if err := os.Rename(w.tmp, final); err != nil {
		w.Abort()
		return "", lxerrors.IO("publishing partition", err)
	}
	w.done = true
	w.logger.Info("partition committed",
		"max_doc_id", w.hdr.maxDocID,
		"fields", len(w.hdr.fields),
		"dict_bytes", dictBytes,
	)
	return final, nil
}

func (w *Writer) closeFiles() error {
	var first error
	for _, o := range []*buffer.FileOutput{w.dict, w.outs[0], w.outs[1]} {
		if o == nil {
			continue
		}
		if err := o.Close(); err != nil && first == nil {
			first = err
		}
	}
	w.dict, w.outs[0], w.outs[1] = nil, nil, nil
	return first
}

// Abort discards everything written so far. It is safe to call after a
// failed Commit.
func (w *Writer) Abort() {
	if w.done {
		return
	}
	w.done = true
	_ = w.closeFiles()
	if err := os.RemoveAll(w.tmp); err != nil {
		w.logger.Error("removing partition directory", "error", err)
	}
}

// writeBitmap writes bm to path through a temporary file and a rename.
func writeBitmap(path string, bm *roaring.Bitmap) error {
	tmp := path + tmpSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return lxerrors.IO("creating deletion bitmap", err)
	}
	if _, err := bm.WriteTo(f); err != nil {
		f.Close()
		return lxerrors.IO("writing deletion bitmap", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return lxerrors.IO("syncing deletion bitmap", err)
	}
	if err := f.Close(); err != nil {
		return lxerrors.IO("closing deletion bitmap", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return lxerrors.IO("renaming deletion bitmap", err)
	}
	return nil
}

func readBitmap(path string) (*roaring.Bitmap, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return roaring.New(), nil
		}
		return nil, lxerrors.IO("opening deletion bitmap", err)
	}
	defer f.Close()
	bm := roaring.New()
	if _, err := bm.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("reading deletion bitmap %s: %w", path, lxerrors.ErrCorrupt)
	}
	return bm, nil
}
