package container

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID parses the current goroutine id from the stack header,
// "goroutine 42 [running]:". It returns 0 if the header is unexpected.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	fields := bytes.Fields(buf[:n])
	if len(fields) < 2 {
		return 0
	}
	id, err := strconv.ParseUint(string(fields[1]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
