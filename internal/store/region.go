package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"unsafe"
)

// region is a single memory-mapped backing file owned by the store — one
// per array (vectors, norms, ids). It is a narrowed form of the teacher
// library's MemoryMap: always read-write, never shared across a named
// registry, since the store always owns exactly three of these directly.
type region struct {
	mu   sync.RWMutex
	file *os.File
	data []byte
	size int64
	path string
}

// openRegion opens or creates path and maps exactly size bytes into memory,
// first setting the backing file to size bytes with Truncate (which grows
// or shrinks it). A size of 0 maps the file at its current size.
func openRegion(path string, size int64) (*region, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if size > 0 {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	} else {
		stat, err := file.Stat()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		size = stat.Size()
	}

	if size == 0 {
		file.Close()
		return nil, fmt.Errorf("cannot memory map empty file %s", path)
	}

	data, err := syscall.Mmap(int(file.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}

	return &region{file: file, data: data, size: size, path: path}, nil
}

// Bytes returns the full mapped region.
func (r *region) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.data
}

// Sync flushes the mapping to disk via msync.
func (r *region) Sync() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.data == nil {
		return fmt.Errorf("region %s is closed", r.path)
	}
	_, _, errno := syscall.Syscall(syscall.SYS_MSYNC, uintptr(unsafe.Pointer(&r.data[0])), uintptr(r.size), syscall.MS_SYNC)
	if errno != 0 {
		return fmt.Errorf("msync %s: %v", r.path, errno)
	}
	return nil
}

// Resize unmaps, truncates the backing file and remaps at the new size.
func (r *region) Resize(newSize int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.data == nil {
		return fmt.Errorf("region %s is closed", r.path)
	}
	if err := syscall.Munmap(r.data); err != nil {
		return fmt.Errorf("unmap %s: %w", r.path, err)
	}
	if err := r.file.Truncate(newSize); err != nil {
		return fmt.Errorf("truncate %s: %w", r.path, err)
	}
	data, err := syscall.Mmap(int(r.file.Fd()), 0, int(newSize), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("remap %s: %w", r.path, err)
	}
	r.data = data
	r.size = newSize
	return nil
}

// Close unmaps the region and closes its file.
func (r *region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.data != nil {
		if uerr := syscall.Munmap(r.data); uerr != nil {
			err = fmt.Errorf("unmap %s: %w", r.path, uerr)
		}
		r.data = nil
	}
	if r.file != nil {
		if cerr := r.file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", r.path, cerr)
		}
		r.file = nil
	}
	return err
}

// float32View reinterprets the region's bytes as a []float32 without
// copying.
func (r *region) float32View() []float32 {
	b := r.Bytes()
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}

// int64View reinterprets the region's bytes as an []int64 without copying.
func (r *region) int64View() []int64 {
	b := r.Bytes()
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*int64)(unsafe.Pointer(&b[0])), len(b)/8)
}
