// Package goid identifies goroutines.
//
// The runtime does not expose goroutine IDs directly. Current parses the
// header line of runtime.Stack ("goroutine 42 [running]:"), which is stable
// across Go releases and cheap enough for ownership checks on submission
// paths.
package goid

import (
	"runtime"
	"strconv"
)

// ID is a goroutine identifier. Zero is never a valid goroutine.
type ID uint64

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Current returns the ID of the calling goroutine.
func Current() ID {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return ID(id)
}
