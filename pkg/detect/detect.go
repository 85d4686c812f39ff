// Package detect decides whether a source file still needs to be copied
// to its destination. It compares cheap filesystem metadata first and
// falls back to content hashing only when the metadata matches.
package detect

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"lukechampine.com/blake3"

	"github.com/safekeephq/safekeep/pkg/message"
	"github.com/safekeephq/safekeep/pkg/pool"
)

// Snapshot captures the metadata compared between a source file and its
// destination counterpart.
type Snapshot struct {
	Modified int64 // unix nanoseconds
	Length   int64
	Mode     fs.FileMode
}

// Equal reports whether two snapshots describe an unchanged file.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Modified == o.Modified && s.Length == o.Length && s.Mode == o.Mode
}

func snapshotOf(info fs.FileInfo) Snapshot {
	return Snapshot{
		Modified: info.ModTime().UnixNano(),
		Length:   info.Size(),
		Mode:     info.Mode(),
	}
}

const hashSize = 32

// Detector answers copy/skip questions for file pairs. Hashing shares
// read buffers through the pool.
type Detector struct {
	buffers *pool.Buffers
	sink    message.Sink
}

// New returns a Detector that reads through buffers and reports
// non-fatal trouble to sink.
func New(buffers *pool.Buffers, sink message.Sink) *Detector {
	return &Detector{buffers: buffers, sink: sink}
}

// Decide reports whether src must be copied to dst. A missing destination
// always means copy. Metadata differences mean copy without reading
// content. When metadata matches, both files are hashed and compared.
//
// Trouble reading metadata or content is not an error: the detector fails
// open, emits a warning, and asks for the copy so the destination ends up
// correct either way.
func (d *Detector) Decide(src, dst string) bool {
	dstInfo, err := os.Stat(dst)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.sink.Send(message.Warning{
				Kind:        message.WarningCannotGetMetadata,
				Source:      src,
				Destination: dst,
				Err:         err,
			})
		}
		return true
	}
	srcInfo, err := os.Stat(src)
	if err != nil {
		d.sink.Send(message.Warning{
			Kind:        message.WarningCannotGetMetadata,
			Source:      src,
			Destination: dst,
			Err:         err,
		})
		return true
	}
	if !snapshotOf(srcInfo).Equal(snapshotOf(dstInfo)) {
		return true
	}

	srcSum, err := d.hashFile(src)
	if err != nil {
		d.sink.Send(message.Warning{
			Kind:        message.WarningCannotGetHash,
			Source:      src,
			Destination: dst,
			Err:         err,
		})
		return true
	}
	dstSum, err := d.hashFile(dst)
	if err != nil {
		d.sink.Send(message.Warning{
			Kind:        message.WarningCannotGetHash,
			Source:      src,
			Destination: dst,
			Err:         err,
		})
		return true
	}
	return srcSum != dstSum
}

func (d *Detector) hashFile(path string) ([hashSize]byte, error) {
	var sum [hashSize]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := blake3.New(hashSize, nil)
	buf := d.buffers.Get()
	defer d.buffers.Put(buf)
	if _, err := io.CopyBuffer(h, f, *buf); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
