package segment

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

// Segment layout:
//
//	header : "RDSG" | version | compression | sync marker[16]
//	block  : uvarint count | uvarint size | payload[size] | crc32c(payload) BE4 | sync marker[16]
//	trailer: block with count=0, size=0
//
// The payload is count length-prefixed records, compressed as a whole when
// the header says so.

const (
	// SyncSize is the length of the per-segment sync marker.
	SyncSize = 16
	// HeaderSize is the length of the segment header.
	HeaderSize = 4 + 1 + 1 + SyncSize

	formatVersion = 1
	maxBlockSize  = 256 << 20
	maxHeaderLen  = 2 * binary.MaxVarintLen64
)

var magic = [4]byte{'R', 'D', 'S', 'G'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var (
	// ErrIncomplete means the bytes needed lie beyond the durable limit.
	ErrIncomplete = errors.New("segment: incomplete block")
	// ErrCorrupt means the segment bytes are malformed.
	ErrCorrupt = errors.New("segment: corrupt")
	// ErrSealed is returned when appending to a sealed segment.
	ErrSealed = errors.New("segment: sealed")
)

// Compression selects the block payload codec.
type Compression byte

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionS2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionS2:
		return "s2"
	default:
		return fmt.Sprintf("compression(%d)", byte(c))
	}
}

// ParseCompression maps a config name to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	}
	return CompressionNone, fmt.Errorf("segment: unknown compression %q", s)
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
	zstdDec  *zstd.Decoder
	zstdErr  error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEnc, zstdErr = zstd.NewWriter(nil)
		if zstdErr != nil {
			return
		}
		zstdDec, zstdErr = zstd.NewReader(nil)
	})
	return zstdEnc, zstdDec, zstdErr
}

func compress(c Compression, src []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionZstd:
		enc, _, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(src, nil), nil
	case CompressionS2:
		return s2.Encode(nil, src), nil
	}
	return nil, fmt.Errorf("segment: unknown compression %d", c)
}

func decompress(c Compression, src []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return src, nil
	case CompressionZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(src, nil)
	case CompressionS2:
		return s2.Decode(nil, src)
	}
	return nil, fmt.Errorf("%w: unknown compression %d", ErrCorrupt, c)
}

// WriterOptions configures a Writer.
type WriterOptions struct {
	Compression Compression
	// BlockBytes cuts a block once this many record bytes are pending.
	// Zero cuts blocks only on Flush.
	BlockBytes int
}

// Writer appends blocks to one segment.
type Writer struct {
	w       io.Writer
	opts    WriterOptions
	sync    [SyncSize]byte
	pending []byte
	count   int
	off     int64
	blocks  int
	sealed  bool
	err     error
}

// NewWriter writes the segment header to w.
func NewWriter(w io.Writer, opts WriterOptions) (*Writer, error) {
	sw := &Writer{w: w, opts: opts}
	if _, err := io.ReadFull(rand.Reader, sw.sync[:]); err != nil {
		return nil, fmt.Errorf("segment: sync marker: %w", err)
	}
	hdr := make([]byte, 0, HeaderSize)
	hdr = append(hdr, magic[:]...)
	hdr = append(hdr, formatVersion, byte(opts.Compression))
	hdr = append(hdr, sw.sync[:]...)
	if err := sw.write(hdr); err != nil {
		return nil, err
	}
	return sw, nil
}

// Append encodes m into the pending block and returns the encoded size. It
// writes the pending block when BlockBytes is reached.
func (w *Writer) Append(m Message) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.sealed {
		return 0, ErrSealed
	}
	before := len(w.pending)
	pending, err := AppendRecord(w.pending, m)
	if err != nil {
		return 0, err
	}
	w.pending = pending
	w.count++
	n := len(w.pending) - before
	if w.opts.BlockBytes > 0 && len(w.pending) >= w.opts.BlockBytes {
		if _, err := w.Flush(); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Flush writes the pending records as one block and returns the bytes
// written. It is a no-op when nothing is pending.
func (w *Writer) Flush() (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.sealed {
		return 0, ErrSealed
	}
	if w.count == 0 {
		return 0, nil
	}
	payload, err := compress(w.opts.Compression, w.pending)
	if err != nil {
		return 0, err
	}
	n, err := w.writeBlock(uint64(w.count), payload)
	if err != nil {
		return 0, err
	}
	w.pending = w.pending[:0]
	w.count = 0
	w.blocks++
	return n, nil
}

// Seal flushes pending records and writes the trailer.
func (w *Writer) Seal() error {
	if w.sealed {
		return nil
	}
	if _, err := w.Flush(); err != nil {
		return err
	}
	if _, err := w.writeBlock(0, nil); err != nil {
		return err
	}
	w.sealed = true
	return nil
}

// Offset returns the bytes written so far.
func (w *Writer) Offset() int64 { return w.off }

// Blocks returns the number of message blocks written.
func (w *Writer) Blocks() int { return w.blocks }

// Pending returns the number of records not yet written.
func (w *Writer) Pending() int { return w.count }

func (w *Writer) writeBlock(count uint64, payload []byte) (int64, error) {
	buf := make([]byte, 0, maxHeaderLen+len(payload)+4+SyncSize)
	buf = binary.AppendUvarint(buf, count)
	buf = binary.AppendUvarint(buf, uint64(len(payload)))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.Checksum(payload, castagnoli))
	buf = append(buf, w.sync[:]...)
	if err := w.write(buf); err != nil {
		return 0, err
	}
	return int64(len(buf)), nil
}

func (w *Writer) write(b []byte) error {
	n, err := w.w.Write(b)
	w.off += int64(n)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		w.err = fmt.Errorf("segment: write: %w", err)
		return w.err
	}
	return nil
}

// Block is one decoded block.
type Block struct {
	Offset   int64
	End      int64
	Messages []Message
}

// Reader decodes blocks from a segment that may still be growing. Every call
// takes the current durable limit; nothing past it is returned.
type Reader struct {
	src    io.ReaderAt
	comp   Compression
	sync   [SyncSize]byte
	off    int64
	sealed bool
}

// NewReader reads and checks the header. It returns ErrIncomplete when limit
// does not yet cover the header.
func NewReader(src io.ReaderAt, limit int64) (*Reader, error) {
	if limit < HeaderSize {
		return nil, ErrIncomplete
	}
	var hdr [HeaderSize]byte
	if err := readFull(src, hdr[:], 0); err != nil {
		return nil, err
	}
	if !bytes.Equal(hdr[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if hdr[4] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, hdr[4])
	}
	r := &Reader{src: src, comp: Compression(hdr[5]), off: HeaderSize}
	copy(r.sync[:], hdr[6:])
	return r, nil
}

// Offset returns the start of the next block.
func (r *Reader) Offset() int64 { return r.off }

// Sealed reports whether the trailer has been read.
func (r *Reader) Sealed() bool { return r.sealed }

// Reset restarts reading at a block boundary.
func (r *Reader) Reset(off int64) {
	if off < HeaderSize {
		off = HeaderSize
	}
	r.off = off
	r.sealed = false
}

// Next decodes the block at the current offset. It returns io.EOF after the
// trailer, ErrIncomplete when the block is not fully below limit, and an
// ErrCorrupt wrapper for malformed bytes.
func (r *Reader) Next(limit int64) (Block, error) {
	if r.sealed {
		return Block{}, io.EOF
	}
	start := r.off
	count, size, hlen, err := r.header(limit)
	if err != nil {
		return Block{}, err
	}
	end := start + int64(hlen) + int64(size) + 4 + SyncSize
	if end > limit {
		return Block{}, ErrIncomplete
	}
	body := make([]byte, end-start-int64(hlen))
	if err := readFull(r.src, body, start+int64(hlen)); err != nil {
		return Block{}, err
	}
	if !bytes.Equal(body[len(body)-SyncSize:], r.sync[:]) {
		return Block{}, fmt.Errorf("%w: sync marker mismatch at %d", ErrCorrupt, start)
	}
	payload := body[:size]
	if crc32.Checksum(payload, castagnoli) != binary.BigEndian.Uint32(body[size:size+4]) {
		return Block{}, fmt.Errorf("%w: checksum mismatch at %d", ErrCorrupt, start)
	}
	if count == 0 {
		if size != 0 {
			return Block{}, fmt.Errorf("%w: empty block with payload at %d", ErrCorrupt, start)
		}
		r.off = end
		r.sealed = true
		return Block{}, io.EOF
	}
	raw, err := decompress(r.comp, payload)
	if err != nil {
		return Block{}, fmt.Errorf("%w: decompress at %d: %v", ErrCorrupt, start, err)
	}
	msgs := make([]Message, 0, count)
	for i := uint64(0); i < count; i++ {
		m, n, err := DecodeRecord(raw)
		if err != nil {
			return Block{}, fmt.Errorf("block at %d: %w", start, err)
		}
		msgs = append(msgs, m)
		raw = raw[n:]
	}
	if len(raw) != 0 {
		return Block{}, fmt.Errorf("%w: %d trailing bytes in block at %d", ErrCorrupt, len(raw), start)
	}
	r.off = end
	return Block{Offset: start, End: end, Messages: msgs}, nil
}

// header parses the two varints at the current offset.
func (r *Reader) header(limit int64) (count, size uint64, hlen int, err error) {
	avail := limit - r.off
	if avail <= 0 {
		return 0, 0, 0, ErrIncomplete
	}
	if avail > maxHeaderLen {
		avail = maxHeaderLen
	}
	buf := make([]byte, avail)
	if err := readFull(r.src, buf, r.off); err != nil {
		return 0, 0, 0, err
	}
	count, c1 := binary.Uvarint(buf)
	if c1 == 0 {
		return 0, 0, 0, ErrIncomplete
	}
	if c1 < 0 {
		return 0, 0, 0, fmt.Errorf("%w: bad block count at %d", ErrCorrupt, r.off)
	}
	size, c2 := binary.Uvarint(buf[c1:])
	if c2 == 0 {
		return 0, 0, 0, ErrIncomplete
	}
	if c2 < 0 || size > maxBlockSize {
		return 0, 0, 0, fmt.Errorf("%w: bad block size at %d", ErrCorrupt, r.off)
	}
	return count, size, c1 + c2, nil
}

// LastBlock returns the last complete message block below limit. It walks
// block headers forward, checking only sync markers, and decodes the final
// block alone.
func LastBlock(src io.ReaderAt, limit int64) (Block, bool, error) {
	r, err := NewReader(src, limit)
	if errors.Is(err, ErrIncomplete) {
		return Block{}, false, nil
	}
	if err != nil {
		return Block{}, false, err
	}
	last := int64(-1)
	var marker [SyncSize]byte
	for {
		start := r.off
		count, size, hlen, err := r.header(limit)
		if errors.Is(err, ErrIncomplete) {
			break
		}
		if err != nil {
			return Block{}, false, err
		}
		end := start + int64(hlen) + int64(size) + 4 + SyncSize
		if end > limit {
			break
		}
		if err := readFull(src, marker[:], end-SyncSize); err != nil {
			return Block{}, false, err
		}
		if marker != r.sync {
			return Block{}, false, fmt.Errorf("%w: sync marker mismatch at %d", ErrCorrupt, start)
		}
		if count == 0 {
			break
		}
		last = start
		r.off = end
	}
	if last < 0 {
		return Block{}, false, nil
	}
	r.Reset(last)
	blk, err := r.Next(limit)
	if err != nil {
		return Block{}, false, err
	}
	return blk, true, nil
}

// readFull reads len(p) bytes at off. A short read at EOF is ErrIncomplete.
func readFull(src io.ReaderAt, p []byte, off int64) error {
	n, err := src.ReadAt(p, off)
	if n == len(p) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrIncomplete
	}
	return err
}
