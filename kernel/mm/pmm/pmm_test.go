package pmm

import (
	"testing"
	"unsafe"

	"learnos/kernel"
	"learnos/kernel/mm"
)

// newTestTable returns a frame table for frameCount frames backed by a Go
// slice.
func newTestTable(frameCount uint64) *FrameTable {
	buf := make([]FrameInfo, frameCount+1)
	return NewFrameTable(mm.VirtAddr(uintptr(unsafe.Pointer(&buf[0]))), frameCount)
}

// expectPanic runs fn and fails the test unless it panics with expErr.
func expectPanic(t *testing.T, expErr *kernel.Error, fn func()) {
	t.Helper()

	defer func() {
		t.Helper()
		err := recover()
		if err != expErr {
			t.Fatalf("expected panic with error %v; got %v", expErr, err)
		}
	}()

	fn()
}
