package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/wikirank/internal/store"
	apperrors "github.com/Adithya-Monish-Kumar-K/wikirank/pkg/errors"
)

// Reader serves document frequencies from the in-memory dictionary and reads
// posting lists lazily from disk. It is safe for concurrent use.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	postBase int64
}

var _ store.IndexStore = (*Reader)(nil)

// OpenReader opens and validates the segment at path. Structural damage is
// reported as errors.ErrCorruptSegment.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := newReader(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func newReader(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	size := info.Size()
	if size < int64(HeaderSize+FooterSize) {
		return nil, corrupt(path, "file too short (%d bytes)", size)
	}

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, corrupt(path, "bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, corrupt(path, "unsupported format version %d", header.Version)
	}
	if header.DictOffset < int64(HeaderSize) || header.DictSize < 0 ||
		header.DictOffset+header.DictSize+int64(FooterSize) > size {
		return nil, corrupt(path, "dictionary out of bounds")
	}

	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, size-int64(FooterSize)); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if got, want := crc32.ChecksumIEEE(dictBytes), binary.LittleEndian.Uint32(footer[0:4]); got != want {
		return nil, corrupt(path, "dictionary checksum mismatch")
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, corrupt(path, "parsing dictionary: %v", err)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}, nil
}

func (r *Reader) lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// DocumentFrequency returns the number of postings for term, or 0 if the
// segment does not contain it.
func (r *Reader) DocumentFrequency(ctx context.Context, term string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entry, ok := r.lookup(term)
	if !ok {
		return 0, nil
	}
	return entry.DocFreq, nil
}

// ReadPostingList reads the postings for term from disk. A missing term yields
// an empty list.
func (r *Reader) ReadPostingList(ctx context.Context, term string) ([]store.Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := r.lookup(term)
	if !ok {
		return nil, nil
	}
	if entry.PostOffset < 0 || entry.PostLen < 0 || entry.PostOffset+int64(entry.PostLen) > r.header.PostSize {
		return nil, corrupt(r.filePath, "postings for %q out of bounds", term)
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings for %q: %w", term, err)
	}
	var postings []store.Posting
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, corrupt(r.filePath, "parsing postings for %q: %v", term, err)
	}
	return postings, nil
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}

func corrupt(path, format string, args ...any) error {
	return fmt.Errorf("segment %s: %w: %s", path, apperrors.ErrCorruptSegment, fmt.Sprintf(format, args...))
}
