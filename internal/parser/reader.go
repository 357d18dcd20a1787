package parser

import (
	"encoding/hex"
	"hash"
	"io"
	"sort"

	"golang.org/x/crypto/blake2b"
)

// ProgressEvent reports read progress at byte-interval boundaries.
type ProgressEvent struct {
	BytesRead  int64   `json:"bytes_read"`
	TotalBytes int64   `json:"total_bytes"`
	Percent    float64 `json:"percent"`
}

// ProgressFunc receives progress events during parsing.
type ProgressFunc func(ProgressEvent)

// countingReader counts bytes pulled by the decoder, hashes the content,
// records newline offsets for error positions and emits progress events
// every interval bytes.
type countingReader struct {
	r        io.Reader
	read     int64
	total    int64
	interval int64
	nextMark int64
	progress ProgressFunc
	events   int

	newlines []int64
	digest   hash.Hash
}

func newCountingReader(r io.Reader, total, interval int64, progress ProgressFunc) *countingReader {
	digest, _ := blake2b.New256(nil)
	return &countingReader{
		r:        r,
		total:    total,
		interval: interval,
		nextMark: interval,
		progress: progress,
		digest:   digest,
	}
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		chunk := p[:n]
		cr.digest.Write(chunk)
		for i, b := range chunk {
			if b == '\n' {
				cr.newlines = append(cr.newlines, cr.read+int64(i))
			}
		}
		cr.read += int64(n)
		for cr.progress != nil && cr.interval > 0 && cr.read >= cr.nextMark {
			cr.emit()
			cr.nextMark += cr.interval
		}
	}
	return n, err
}

func (cr *countingReader) emit() {
	percent := 0.0
	if cr.total > 0 {
		percent = float64(cr.read) / float64(cr.total) * 100
		if percent > 100 {
			percent = 100
		}
	}
	cr.events++
	cr.progress(ProgressEvent{BytesRead: cr.read, TotalBytes: cr.total, Percent: percent})
}

// finish drains the remaining input so the digest covers the whole file,
// then emits a terminal progress event.
func (cr *countingReader) finish() {
	_, _ = io.Copy(io.Discard, cr)
	if cr.progress != nil {
		cr.emit()
	}
}

// sum returns the hex digest of everything read so far.
func (cr *countingReader) sum() string {
	return hex.EncodeToString(cr.digest.Sum(nil))
}

// lineCol converts a byte offset into a 1-based line and column.
func (cr *countingReader) lineCol(offset int64) (int, int) {
	idx := sort.Search(len(cr.newlines), func(i int) bool {
		return cr.newlines[i] >= offset
	})
	col := offset + 1
	if idx > 0 {
		col = offset - cr.newlines[idx-1]
	}
	return idx + 1, int(col)
}

// hashBytes returns the hex digest of data using the same function the
// reader applies, so converted documents hash their original bytes.
func hashBytes(data []byte) string {
	digest := blake2b.Sum256(data)
	return hex.EncodeToString(digest[:])
}
