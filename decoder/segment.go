package decoder

import "fmt"

// Segment is one executable region of a loaded object, cached at decoder
// startup (spec §4.2.4). Shaped directly on vm.MemorySegment: a
// start/size/bytes triple with a linear-scan lookup, since the number of
// loaded objects in a trace session is small (a handful of shared objects,
// not thousands of dynamic mappings) and a segment tree would be premature
// here the same way the teacher's Memory never needed one.
type Segment struct {
	Name       string
	Start      uint64
	Size       uint64
	Data       []byte
	IsMainObj  bool
	ObjectName string
}

// SegmentCache is the interval-indexed view over every segment live for the
// duration of a trace. The decoder assumes no dlopen/dlclose occurs while
// tracing (spec §4.2.4), so the cache is built once and never mutated.
type SegmentCache struct {
	segments []Segment
}

// NewSegmentCache builds a cache from a copy of the given segments, kept in
// the order given; Lookup scans them linearly and returns the first match.
func NewSegmentCache(segments []Segment) *SegmentCache {
	c := &SegmentCache{segments: append([]Segment(nil), segments...)}
	return c
}

// Lookup returns the segment covering vaddr, or NoSuchVAddr if none does.
func (c *SegmentCache) Lookup(vaddr uint64) (*Segment, error) {
	for i := range c.segments {
		seg := &c.segments[i]
		if vaddr >= seg.Start && vaddr < seg.Start+seg.Size {
			return seg, nil
		}
	}
	return nil, fmt.Errorf("vaddr 0x%x not covered by any cached segment", vaddr)
}

// Bytes returns n bytes starting at vaddr, for disassembly-mode decoding.
func (c *SegmentCache) Bytes(vaddr uint64, n int) ([]byte, error) {
	seg, err := c.Lookup(vaddr)
	if err != nil {
		return nil, err
	}
	off := vaddr - seg.Start
	if off+uint64(n) > seg.Size {
		return nil, fmt.Errorf("read of %d bytes at 0x%x overruns segment %q", n, vaddr, seg.Name)
	}
	return seg.Data[off : off+uint64(n)], nil
}

// IsMainObject reports whether vaddr falls inside the segment flagged as
// the main traced binary, used to choose between the two decode modes
// (spec §4.2.1).
func (c *SegmentCache) IsMainObject(vaddr uint64) bool {
	seg, err := c.Lookup(vaddr)
	return err == nil && seg.IsMainObj
}
