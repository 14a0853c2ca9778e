// Package snapshot serializes the complete database state into a
// portable archive: the set of indexes, every document, the id to
// index assignments, and the filter postings.
//
// Vectors are not stored separately. They are recovered from each
// document's "vectors" field on restore, so an archive is independent
// of any backend's internal file format.
//
// Archive layout:
//
//	[4]  magic "VSNP"
//	[1]  format version
//	[1]  compression
//	[1]  codec name length
//	[n]  codec name
//	[..] compressed payload (codec-encoded State)
//	[4]  CRC32 (IEEE, little endian) of everything before it
package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/hupe1980/vecd/codec"
	"github.com/hupe1980/vecd/index"
	"github.com/hupe1980/vecd/metadata"
)

var magic = [4]byte{'V', 'S', 'N', 'P'}

// formatVersion is the current archive format version.
const formatVersion = 1

var (
	// ErrInvalidMagic is returned when the archive does not start with
	// the snapshot magic.
	ErrInvalidMagic = errors.New("invalid magic number")

	// ErrInvalidVersion is returned for archives written by a newer
	// format version.
	ErrInvalidVersion = errors.New("unsupported version")

	// ErrTruncated is returned when the archive is shorter than its
	// fixed framing.
	ErrTruncated = errors.New("truncated snapshot")
)

// IndexRecord identifies one index in an archive. Algorithm and metric
// are stored as names so archives stay readable across releases.
type IndexRecord struct {
	Algorithm string `json:"algorithm"`
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`

	// Size is the number of vectors the index held at snapshot time,
	// used as a capacity hint on restore.
	Size int `json:"size,omitempty"`
}

// RecordFromKey builds the archive form of an index key.
func RecordFromKey(key index.Key, size int) IndexRecord {
	return IndexRecord{
		Algorithm: key.Algorithm.String(),
		Dimension: key.Dimension,
		Metric:    key.Metric.String(),
		Size:      size,
	}
}

// Key converts the record back to an index key.
func (r IndexRecord) Key() (index.Key, error) {
	algorithm, err := index.ParseAlgorithm(r.Algorithm)
	if err != nil {
		return index.Key{}, err
	}

	metric, err := index.ParseMetric(r.Metric)
	if err != nil {
		return index.Key{}, err
	}

	key := index.Key{Algorithm: algorithm, Dimension: r.Dimension, Metric: metric}

	if err := key.Validate(); err != nil {
		return index.Key{}, err
	}

	return key, nil
}

// State is the complete serializable content of a database.
type State struct {
	// Indexes lists every registered index, including empty ones.
	Indexes []IndexRecord `json:"indexes"`

	// Documents maps record ids to their encoded documents.
	Documents map[uint64][]byte `json:"documents"`

	// Owners maps each record id to its position in Indexes.
	Owners map[uint64]int `json:"owners"`

	// Filters holds the filter index postings.
	Filters *metadata.State `json:"filters,omitempty"`
}

// Write serializes state into w. The codec used for the envelope is
// recorded in the archive so Read can decode it without out-of-band
// knowledge.
func Write(w io.Writer, state *State, c codec.Codec, comp Compression) error {
	name := c.Name()
	if len(name) > 255 {
		return fmt.Errorf("codec name too long: %q", name)
	}

	cw := newChecksumWriter(w)

	header := make([]byte, 0, 7+len(name))
	header = append(header, magic[:]...)
	header = append(header, formatVersion, byte(comp), byte(len(name)))
	header = append(header, name...)

	if _, err := cw.Write(header); err != nil {
		return err
	}

	zw, err := comp.newWriter(cw)
	if err != nil {
		return err
	}

	payload, err := c.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if _, err := zw.Write(payload); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return err
	}

	var trailer [4]byte

	binary.LittleEndian.PutUint32(trailer[:], cw.Sum())

	_, err = w.Write(trailer[:])

	return err
}

// Read deserializes an archive. It returns the state together with
// the codec the archive was written with, so callers can decode the
// document payloads.
func Read(r io.Reader) (*State, codec.Codec, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}

	// Fixed framing: 7 header bytes plus the 4-byte trailer.
	if len(data) < 11 {
		return nil, nil, ErrTruncated
	}

	body, trailer := data[:len(data)-4], data[len(data)-4:]

	expected := binary.LittleEndian.Uint32(trailer)
	if actual := crc32.ChecksumIEEE(body); actual != expected {
		return nil, nil, &ChecksumMismatchError{Expected: expected, Actual: actual}
	}

	if !bytes.Equal(body[:4], magic[:]) {
		return nil, nil, ErrInvalidMagic
	}

	if body[4] != formatVersion {
		return nil, nil, fmt.Errorf("%w: %d", ErrInvalidVersion, body[4])
	}

	comp := Compression(body[5])

	nameLen := int(body[6])
	if len(body) < 7+nameLen {
		return nil, nil, ErrTruncated
	}

	name := string(body[7 : 7+nameLen])

	c, ok := codec.ByName(name)
	if !ok {
		return nil, nil, fmt.Errorf("unknown codec %q", name)
	}

	zr, err := comp.newReader(bytes.NewReader(body[7+nameLen:]))
	if err != nil {
		return nil, nil, err
	}

	defer zr.Close()

	payload, err := io.ReadAll(zr)
	if err != nil {
		return nil, nil, fmt.Errorf("decompress snapshot: %w", err)
	}

	var state State
	if err := c.Unmarshal(payload, &state); err != nil {
		return nil, nil, fmt.Errorf("decode snapshot: %w", err)
	}

	return &state, c, nil
}
