//go:build unix

package flash

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is a Memory whose contents live in a memory-mapped image file, so a
// simulated board keeps its OTP, uptime ledger and crash record across runs.
// The image holds the flash contents followed by the option bytes.
type File struct {
	*Memory

	f    *os.File
	data []byte
}

// OpenFile maps the image at path, creating an erased image when the file
// does not exist or has the wrong size.
func OpenFile(path string, geom Geometry) (*File, error) {
	size := int64(geom.Size()) + int64(2*geom.Sectors)

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("flash: could not open image %q: %w", path, err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flash: could not stat image %q: %w", path, err)
	}

	fresh := fi.Size() != size
	if fresh {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, fmt.Errorf("flash: could not size image %q: %w", path, err)
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flash: could not mmap image %q: %w", path, err)
	}

	mem := newMemory(geom, data[:geom.Size()], data[geom.Size():], fresh)
	return &File{Memory: mem, f: f, data: data}, nil
}

// Sync flushes the mapping to disk.
func (f *File) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return os.ErrClosed
	}
	return unix.Msync(f.data, unix.MS_SYNC)
}

// Close unmaps and closes the image.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data == nil {
		return nil
	}
	data := f.data
	f.data = nil
	if err := unix.Munmap(data); err != nil {
		f.f.Close()
		return fmt.Errorf("flash: could not unmap image: %w", err)
	}
	return f.f.Close()
}
