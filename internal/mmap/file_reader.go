// Package mmap provides a zero-copy reader for large encrypted files,
// falling back to plain os.File I/O below a size threshold or on platforms
// without a syscall.Mmap.
package mmap

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"syscall"
)

const minMmapSize = 1024 * 1024

// MmapReader reads a file through a read-only memory mapping.
type MmapReader struct {
	file   *os.File
	data   []byte
	offset int64
	size   int64
}

// NewMmapReader maps filename into memory. Files under 1MB return an error
// rather than mapping, since the syscall overhead isn't worth it for them.
func NewMmapReader(filename string) (*MmapReader, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat file: %w", err)
	}

	size := stat.Size()
	if size < minMmapSize {
		file.Close()
		return nil, fmt.Errorf("file too small for mmap: %d bytes", size)
	}

	data, err := mmapFile(file, size)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("mmap file: %w", err)
	}

	return &MmapReader{
		file: file,
		data: data,
		size: size,
	}, nil
}

func (mr *MmapReader) Read(p []byte) (n int, err error) {
	if mr.offset >= mr.size {
		return 0, io.EOF
	}

	available := mr.size - mr.offset
	if int64(len(p)) > available {
		p = p[:available]
	}

	n = copy(p, mr.data[mr.offset:mr.offset+int64(len(p))])
	mr.offset += int64(n)

	if mr.offset >= mr.size {
		err = io.EOF
	}

	return n, err
}

func (mr *MmapReader) ReadAt(p []byte, off int64) (n int, err error) {
	if off >= mr.size {
		return 0, io.EOF
	}

	available := mr.size - off
	if int64(len(p)) > available {
		p = p[:available]
		err = io.EOF
	}

	n = copy(p, mr.data[off:off+int64(len(p))])
	return n, err
}

func (mr *MmapReader) Seek(offset int64, whence int) (int64, error) {
	var newOffset int64

	switch whence {
	case io.SeekStart:
		newOffset = offset
	case io.SeekCurrent:
		newOffset = mr.offset + offset
	case io.SeekEnd:
		newOffset = mr.size + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}

	if newOffset < 0 {
		return 0, fmt.Errorf("negative seek position: %d", newOffset)
	}

	mr.offset = newOffset
	return newOffset, nil
}

func (mr *MmapReader) Size() int64 {
	return mr.size
}

func (mr *MmapReader) Close() error {
	var err error

	if mr.data != nil {
		if unmapErr := munmapFile(mr.data); unmapErr != nil {
			err = fmt.Errorf("unmap file: %w", unmapErr)
		}
		mr.data = nil
	}

	if mr.file != nil {
		if closeErr := mr.file.Close(); closeErr != nil {
			if err != nil {
				err = fmt.Errorf("%w; close file: %w", err, closeErr)
			} else {
				err = fmt.Errorf("close file: %w", closeErr)
			}
		}
		mr.file = nil
	}

	return err
}

func mmapFile(file *os.File, size int64) ([]byte, error) {
	if runtime.GOOS == "windows" {
		return nil, fmt.Errorf("mmap not implemented on windows")
	}
	return mmapUnix(file, size)
}

func munmapFile(data []byte) error {
	if runtime.GOOS == "windows" {
		return fmt.Errorf("munmap not implemented on windows")
	}
	return munmapUnix(data)
}

func mmapUnix(file *os.File, size int64) ([]byte, error) {
	data, err := syscall.Mmap(
		int(file.Fd()),
		0,
		int(size),
		syscall.PROT_READ,
		syscall.MAP_SHARED,
	)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func munmapUnix(data []byte) error {
	return syscall.Munmap(data)
}

// OptimizedFileReader picks mmap or plain file I/O per-file based on size
// and platform, presenting the same io.Reader/io.ReaderAt/io.Seeker surface
// either way so callers never need to know which one was chosen.
type OptimizedFileReader struct {
	mmapReader *MmapReader
	fileReader *os.File
	useMmap    bool
	size       int64
}

func NewOptimizedFileReader(filename string) (*OptimizedFileReader, error) {
	stat, err := os.Stat(filename)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	size := stat.Size()

	if size >= minMmapSize && runtime.GOOS != "windows" {
		if mmapReader, err := NewMmapReader(filename); err == nil {
			return &OptimizedFileReader{
				mmapReader: mmapReader,
				useMmap:    true,
				size:       size,
			}, nil
		}
		// mmap failed (permissions, unusual filesystem); fall through to
		// plain file I/O below.
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	return &OptimizedFileReader{
		fileReader: file,
		useMmap:    false,
		size:       size,
	}, nil
}

func (ofr *OptimizedFileReader) Read(p []byte) (n int, err error) {
	if ofr.useMmap {
		return ofr.mmapReader.Read(p)
	}
	return ofr.fileReader.Read(p)
}

func (ofr *OptimizedFileReader) ReadAt(p []byte, off int64) (n int, err error) {
	if ofr.useMmap {
		return ofr.mmapReader.ReadAt(p, off)
	}
	return ofr.fileReader.ReadAt(p, off)
}

func (ofr *OptimizedFileReader) Seek(offset int64, whence int) (int64, error) {
	if ofr.useMmap {
		return ofr.mmapReader.Seek(offset, whence)
	}
	return ofr.fileReader.Seek(offset, whence)
}

func (ofr *OptimizedFileReader) Size() int64 {
	return ofr.size
}

func (ofr *OptimizedFileReader) Close() error {
	if ofr.useMmap {
		return ofr.mmapReader.Close()
	}
	return ofr.fileReader.Close()
}

// IsUsingMmap reports which path NewOptimizedFileReader chose, exposed
// mainly for tests.
func (ofr *OptimizedFileReader) IsUsingMmap() bool {
	return ofr.useMmap
}
