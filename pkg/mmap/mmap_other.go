//go:build !linux && !darwin
// +build !linux,!darwin

package mmap

import "errors"

// Memory mapping is only wired up for linux and darwin. NewReader fails on
// other platforms and callers fall back to buffered reads.

func mmap(fd int, offset int64, length int, prot int, flags int) ([]byte, error) {
	return nil, errors.New("memory mapping not supported on this platform")
}

func munmap(b []byte) error { return nil }

func madvise(b []byte, advice int) error { return nil }

const (
	ProtRead       = 0
	MapShared      = 0
	MadvSequential = 0
	MadvWillneed   = 0
)
