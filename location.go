package yk

import (
	"sync/atomic"
	"unsafe"
)

// Location is a single machine word attached to one program point in the
// host interpreter's dispatch loop. It is either a small counter, atomically
// incremented until it reaches the configured hot threshold, or a tagged
// pointer to a heap-allocated HotLocation. The low bit of the word
// discriminates the two: counters are stored shifted left by one with the
// tag bit clear, hot-location pointers are stored with the tag bit set (heap pointers
// returned by the Go allocator are always at least 2-byte aligned, so the
// low bit is free).
//
// Once a Location transitions to a HotLocation it never goes back: the
// pointer, once published, remains valid for the process lifetime.
type Location struct {
	word uint64
}

const locationTagBit = uint64(1)

// NewLocation returns a fresh, cold Location with a zero counter.
func NewLocation() *Location {
	return &Location{}
}

// isHot reports whether word currently holds a tagged HotLocation pointer.
func isHot(word uint64) bool {
	return word&locationTagBit != 0
}

func packCounter(n uint32) uint64 {
	return uint64(n) << 1
}

func unpackCounter(word uint64) uint32 {
	return uint32(word >> 1)
}

func packHotLocation(hl *HotLocation) uint64 {
	return uint64(uintptr(unsafe.Pointer(hl))) | locationTagBit
}

func unpackHotLocation(word uint64) *HotLocation {
	return (*HotLocation)(unsafe.Pointer(uintptr(word &^ locationTagBit)))
}

// hotLocationOrNil returns the Location's HotLocation if it has been
// upgraded, or nil if it is still counting.
func (l *Location) hotLocationOrNil() *HotLocation {
	word := atomic.LoadUint64(&l.word)
	if !isHot(word) {
		return nil
	}
	return unpackHotLocation(word)
}

// incCount atomically increments the counter and reports whether this call
// is the one that crosses hotThreshold (the caller that observes this wins
// the race to upgrade the Location to a HotLocation). If the Location has
// already been upgraded by another thread, incCount is a no-op and returns
// false so the caller re-reads the hot location itself.
//
// The loop is a compare-exchange retry: every losing thread simply re-reads
// the current word and tries again, which is what makes the "exactly one
// thread wins" guarantee hold even under heavy contention (scenario 2 in
// spec §8).
func (l *Location) incCount(hotThreshold uint32) (crossed bool) {
	for {
		old := atomic.LoadUint64(&l.word)
		if isHot(old) {
			return false
		}
		n := unpackCounter(old)
		next := n + 1
		newWord := packCounter(next)
		if atomic.CompareAndSwapUint64(&l.word, old, newWord) {
			return next == hotThreshold+1
		}
	}
}

// count returns the current counter value, or 0 if the Location has already
// been upgraded (the spec does not require the counter to remain readable
// past the upgrade; callers must not rely on it).
func (l *Location) count() uint32 {
	word := atomic.LoadUint64(&l.word)
	if isHot(word) {
		return 0
	}
	return unpackCounter(word)
}

// upgrade installs hl as this Location's HotLocation with an atomic store,
// overwriting whatever counter value the word holds by then (increments
// other threads made after the crossing are discarded). Only the winning
// thread calls this, because no other thread can also observe the same
// crossing increment (incCount's CAS already serialized that). upgrade returns the HotLocation that ended up installed,
// which is always hl in practice but is returned for symmetry with callers
// that only have a *Location in hand.
func (l *Location) upgrade(hl *HotLocation) *HotLocation {
	newWord := packHotLocation(hl)
	atomic.StoreUint64(&l.word, newWord)
	return hl
}
