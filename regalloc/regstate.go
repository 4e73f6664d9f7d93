package regalloc

// NumGPRegs and NumFPRegs size the fixed register files this allocator
// manages — named, fixed-size arrays in the same idiom as vm.CPU.R[15].
const (
	NumGPRegs = 16
	NumFPRegs = 16
)

// SlotState describes whether a value has a stack spill slot and, if so,
// where (spec §4.3.4: "a value's spill slot, once allocated, is stable for
// the trace's lifetime").
type SlotState struct {
	Spilled bool
	Offset  int
}

// regContent is what a single physical register currently holds.
type regContent struct {
	occupied bool
	op       OpRef
	isConst  bool
	constVal uint64
	ext      RegExtension
}

// RegState is the allocator's live view of every physical register plus
// the spill-slot map for values that have been pushed to the stack (spec
// §4.3.2 Stage 2, §4.3.4). One RegState exists per in-progress trace
// compilation.
type RegState struct {
	gp [NumGPRegs]regContent
	fp [NumFPRegs]regContent

	slots    map[OpRef]SlotState
	reserved map[Reg]bool // registers the allocator must never hand out (e.g. SP)

	nextSlotOffset int
}

// NewRegState returns a RegState with every register Empty and reserved
// marking the registers the code generator has reserved for its own use
// (stack pointer, frame pointer, etc).
func NewRegState(reserved []Reg) *RegState {
	rs := &RegState{
		slots:    make(map[OpRef]SlotState),
		reserved: make(map[Reg]bool, len(reserved)),
	}
	for _, r := range reserved {
		rs.reserved[r] = true
	}
	return rs
}

// Reset returns every register to Empty, respecting reserved registers
// (spec §4.3.6: used once the trace header/prologue has finished
// compiling). Spill slots are kept, so a value spilled before the reset
// keeps its slot for the rest of the trace.
func (rs *RegState) Reset() {
	rs.gp = [NumGPRegs]regContent{}
	rs.fp = [NumFPRegs]regContent{}
}

func (rs *RegState) isReserved(r Reg) bool { return rs.reserved[r] }

// FindHoldingGP returns the register currently holding op, if any.
func (rs *RegState) FindHoldingGP(op OpRef) (Reg, bool) {
	for i, c := range rs.gp {
		if c.occupied && !c.isConst && c.op == op {
			return Reg(i), true
		}
	}
	return 0, false
}

// FindEmptyGP returns any unreserved, unoccupied GP register.
func (rs *RegState) FindEmptyGP() (Reg, bool) {
	for i, c := range rs.gp {
		if !c.occupied && !rs.isReserved(Reg(i)) {
			return Reg(i), true
		}
	}
	return 0, false
}

// IsConstant reports whether r currently holds a re-materializable
// constant rather than a live SSA value (spec §4.3.2 Stage 1.4(a)).
func (rs *RegState) IsConstant(r Reg) bool { return rs.gp[r].isConst }

// IsSpilled reports whether the value in r already has a stack slot (spec
// §4.3.2 Stage 1.4(b)).
func (rs *RegState) IsSpilled(r Reg) bool {
	c := rs.gp[r]
	if !c.occupied || c.isConst {
		return false
	}
	s, ok := rs.slots[c.op]
	return ok && s.Spilled
}

// Occupant returns the OpRef held in r, or false if r is empty or holds a
// constant.
func (rs *RegState) Occupant(r Reg) (OpRef, bool) {
	c := rs.gp[r]
	if !c.occupied || c.isConst {
		return 0, false
	}
	return c.op, true
}

// SetEmpty marks r as holding nothing.
func (rs *RegState) SetEmpty(r Reg) { rs.gp[r] = regContent{} }

// SetValue records that r now holds op with the given extension state.
func (rs *RegState) SetValue(r Reg, op OpRef, ext RegExtension) {
	rs.gp[r] = regContent{occupied: true, op: op, ext: ext}
}

// Extension returns r's current RegExtension.
func (rs *RegState) Extension(r Reg) RegExtension { return rs.gp[r].ext }

// SetExtension corrects r's recorded extension without otherwise touching
// its contents (spec §4.3.3: "lazily corrected at the point it is
// needed").
func (rs *RegState) SetExtension(r Reg, ext RegExtension) { rs.gp[r].ext = ext }

// SpillSlot returns op's stack slot, allocating one on first use (spec
// §4.3.4). Width rounds the offset up so differently-sized values never
// overlap.
func (rs *RegState) SpillSlot(op OpRef, width Width) SlotState {
	if s, ok := rs.slots[op]; ok {
		return s
	}
	size := int(width) / 8
	if size < 1 {
		size = 1
	}
	// Align the new slot to its own width.
	if rem := rs.nextSlotOffset % size; rem != 0 {
		rs.nextSlotOffset += size - rem
	}
	s := SlotState{Spilled: true, Offset: rs.nextSlotOffset}
	rs.nextSlotOffset += size
	rs.slots[op] = s
	return s
}
