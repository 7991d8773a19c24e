package repository

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// ErasedByte is the value of an erased NOR flash cell.
const ErasedByte = 0xFF

var (
	ErrOutOfRange = errors.New("flash: access out of range")
	ErrUnaligned  = errors.New("flash: erase offset not sector aligned")
)

// Flash is a non-volatile region with NOR semantics: erase sets a whole sector to
// 0xFF, program can only clear bits.
type Flash interface {
	SectorSize() int
	EraseSector(offset int64) error
	Program(offset int64, data []byte) error
	ReadAt(p []byte, off int64) (int, error)
}

// FileFlash emulates a flash part in a regular file.
type FileFlash struct {
	mu         sync.Mutex
	f          *os.File
	size       int64
	sectorSize int
}

var _ Flash = (*FileFlash)(nil)

// OpenFileFlash opens or creates the backing file and pads it to size with erased bytes.
func OpenFileFlash(path string, size int64, sectorSize int) (*FileFlash, error) {
	if sectorSize <= 0 || size <= 0 || size%int64(sectorSize) != 0 {
		return nil, fmt.Errorf("flash geometry size=%d sector=%d: %w", size, sectorSize, ErrUnaligned)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open flash image %q: %w", path, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat flash image: %w", err)
	}
	if st.Size() < size {
		pad := make([]byte, size-st.Size())
		for i := range pad {
			pad[i] = ErasedByte
		}
		if _, err := f.WriteAt(pad, st.Size()); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("pad flash image: %w", err)
		}
	}
	return &FileFlash{f: f, size: size, sectorSize: sectorSize}, nil
}

func (ff *FileFlash) SectorSize() int { return ff.sectorSize }

// EraseSector resets the sector starting at offset.
func (ff *FileFlash) EraseSector(offset int64) error {
	if offset%int64(ff.sectorSize) != 0 {
		return ErrUnaligned
	}
	if offset < 0 || offset+int64(ff.sectorSize) > ff.size {
		return ErrOutOfRange
	}
	buf := make([]byte, ff.sectorSize)
	for i := range buf {
		buf[i] = ErasedByte
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if _, err := ff.f.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("erase sector at %#x: %w", offset, err)
	}
	return ff.f.Sync()
}

// Program writes data; every byte is ANDed with what is already stored.
func (ff *FileFlash) Program(offset int64, data []byte) error {
	if offset < 0 || offset+int64(len(data)) > ff.size {
		return ErrOutOfRange
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()

	cur := make([]byte, len(data))
	if _, err := ff.f.ReadAt(cur, offset); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read before program: %w", err)
	}
	for i := range cur {
		cur[i] &= data[i]
	}
	if _, err := ff.f.WriteAt(cur, offset); err != nil {
		return fmt.Errorf("program at %#x: %w", offset, err)
	}
	return ff.f.Sync()
}

func (ff *FileFlash) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > ff.size {
		return 0, ErrOutOfRange
	}
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.f.ReadAt(p, off)
}

// Close releases the backing file.
func (ff *FileFlash) Close() error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.f.Close()
}
