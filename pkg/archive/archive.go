// Package archive exports a directory tree into a single compressed
// archive file. It supports zip, gzip-compressed tar and
// zstandard-compressed tar containers.
package archive

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/safekeephq/safekeep/pkg/exclude"
	"github.com/safekeephq/safekeep/pkg/pool"
	"github.com/safekeephq/safekeep/pkg/util"
	"github.com/safekeephq/safekeep/pkg/walker"
)

// Writer produces archives of directory trees.
type Writer struct {
	format   Format
	level    Level
	buffers  *pool.Buffers
	excludes *exclude.Set
}

// NewWriter builds a Writer for the given format and level.
func NewWriter(format Format, level Level, buffers *pool.Buffers, excludes *exclude.Set) *Writer {
	if buffers == nil {
		buffers = pool.NewBuffers(pool.DefaultBufferSize)
	}
	return &Writer{format: format, level: level, buffers: buffers, excludes: excludes}
}

// Create archives the tree rooted at source into the file at target. The
// archive is written to a temporary file next to the target and renamed
// into place, so a failed run never leaves a truncated archive behind.
func (w *Writer) Create(ctx context.Context, source, target string) (retErr error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".safekeep-*.tmp")
	if err != nil {
		return fmt.Errorf("cannot create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	switch w.format {
	case Zip:
		err = w.writeZip(ctx, source, tmp)
	case TarGz, TarZst:
		err = w.writeTar(ctx, source, tmp)
	default:
		err = fmt.Errorf("unsupported archive format %q", w.format)
	}
	if err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("cannot close temp archive: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return fmt.Errorf("cannot move archive into place: %w", err)
	}
	return nil
}

func (w *Writer) writeTar(ctx context.Context, source string, out io.Writer) (retErr error) {
	bw := bufio.NewWriterSize(out, int(w.buffers.Size()))

	var compressed io.WriteCloser
	switch w.format {
	case TarZst:
		zw, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(w.zstdLevel()))
		if err != nil {
			return fmt.Errorf("cannot create zstd writer: %w", err)
		}
		compressed = zw
	default:
		gw, err := pgzip.NewWriterLevel(bw, w.gzipLevel())
		if err != nil {
			return fmt.Errorf("cannot create gzip writer: %w", err)
		}
		compressed = gw
	}

	tw := tar.NewWriter(compressed)
	defer func() {
		if err := tw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("tar writer close failed: %w", err)
		}
		if err := compressed.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("compressed writer close failed: %w", err)
		}
		if err := bw.Flush(); err != nil && retErr == nil {
			retErr = fmt.Errorf("buffer flush failed: %w", err)
		}
	}()

	err := w.eachEntry(ctx, source, func(rel string, info os.FileInfo, path string) error {
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("cannot build tar header for %s: %w", rel, err)
		}
		header.Name = rel
		if info.IsDir() {
			header.Name += "/"
			return tw.WriteHeader(header)
		}
		if err := tw.WriteHeader(header); err != nil {
			return fmt.Errorf("cannot write tar header for %s: %w", rel, err)
		}
		return w.copyContents(tw, path)
	})
	return err
}

func (w *Writer) writeZip(ctx context.Context, source string, out io.Writer) (retErr error) {
	zw := zip.NewWriter(out)
	level := w.gzipLevel()
	zw.RegisterCompressor(zip.Deflate, func(dst io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(dst, level)
	})
	defer func() {
		if err := zw.Close(); err != nil && retErr == nil {
			retErr = fmt.Errorf("zip writer close failed: %w", err)
		}
	}()

	return w.eachEntry(ctx, source, func(rel string, info os.FileInfo, path string) error {
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return fmt.Errorf("cannot build zip header for %s: %w", rel, err)
		}
		header.Name = rel
		if info.IsDir() {
			header.Name += "/"
			header.Method = zip.Store
		} else {
			header.Method = zip.Deflate
		}
		entry, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("cannot write zip header for %s: %w", rel, err)
		}
		if info.IsDir() {
			return nil
		}
		return w.copyContents(entry, path)
	})
}

// eachEntry visits every non-excluded directory, then every non-excluded
// file under source, calling fn with the slash-separated relative path.
func (w *Writer) eachEntry(ctx context.Context, source string, fn func(rel string, info os.FileInfo, path string) error) error {
	for _, mode := range []walker.Mode{walker.DirectoriesOnly, walker.FilesOnly} {
		wk, err := walker.New(source, mode)
		if err != nil {
			return fmt.Errorf("cannot read source %s: %w", source, err)
		}
		err = func() error {
			defer wk.Close()
			for {
				if err := ctx.Err(); err != nil {
					return err
				}
				item, ok := wk.Next()
				if !ok {
					return nil
				}
				if item.Err != nil {
					return item.Err
				}
				rel, err := util.RelPath(source, item.Path)
				if err != nil {
					return err
				}
				if mode == walker.DirectoriesOnly && w.excludes.Dir(rel) {
					continue
				}
				if mode == walker.FilesOnly && w.excludes.File(rel) {
					continue
				}
				info, err := os.Stat(item.Path)
				if err != nil {
					return fmt.Errorf("cannot stat %s: %w", item.Path, err)
				}
				if err := fn(filepath.ToSlash(rel), info, item.Path); err != nil {
					return err
				}
			}
		}()
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) copyContents(dst io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()
	buf := w.buffers.Get()
	defer w.buffers.Put(buf)
	if _, err := io.CopyBuffer(dst, f, *buf); err != nil {
		return fmt.Errorf("cannot archive %s: %w", path, err)
	}
	return nil
}

func (w *Writer) gzipLevel() int {
	switch w.level {
	case Fastest:
		return flate.BestSpeed
	case Better:
		return 6
	case Best:
		return flate.BestCompression
	default:
		return flate.DefaultCompression
	}
}

func (w *Writer) zstdLevel() zstd.EncoderLevel {
	switch w.level {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
