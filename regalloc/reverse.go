package regalloc

// ReverseAnalysis holds, for each instruction index, the register the
// code generator would prefer the output in (a "hint"), and, for each
// value, the ascending indices of the instructions that use it — the two inputs Stage 1 of the allocator consults when no
// force_reg or already-live register settles the choice (spec §4.3.2).
//
// Run once per trace segment (header vs body, spec §4.3.6) before
// allocation starts forward; nothing here mutates RegState.
type ReverseAnalysis struct {
	hints   map[int]Reg
	nextUse map[OpRef][]int // sorted ascending indices where op is used
}

// NewReverseAnalysis records hints and use indices from a flat list
// of (iidx, uses) records, where uses[i] lists every OpRef instruction i
// reads, and outputHints optionally names, per instruction index, the register a later instruction
// would prefer its output already be in (e.g. a move-elimination
// opportunity spotted by the code generator).
func NewReverseAnalysis(iidxCount int, uses [][]OpRef, outputHints map[int]Reg) *ReverseAnalysis {
	ra := &ReverseAnalysis{
		hints:   make(map[int]Reg, len(outputHints)),
		nextUse: make(map[OpRef][]int),
	}
	for k, v := range outputHints {
		ra.hints[k] = v
	}
	for i := 0; i < iidxCount && i < len(uses); i++ {
		for _, op := range uses[i] {
			ra.nextUse[op] = append(ra.nextUse[op], i)
		}
	}
	return ra
}

// Hint returns the preferred output register for iidx, if the code
// generator supplied one.
func (ra *ReverseAnalysis) Hint(iidx int) (Reg, bool) {
	r, ok := ra.hints[iidx]
	return r, ok
}

// NextUseAfter returns the index of op's next use strictly after from, or
// -1 if there is none (a value with no further use is the best spill
// victim, spec §4.3.2 Stage 1.4(c): "furthest in the future" treats "never
// again" as maximally far).
func (ra *ReverseAnalysis) NextUseAfter(op OpRef, from int) int {
	uses := ra.nextUse[op]
	for _, u := range uses {
		if u > from {
			return u
		}
	}
	return -1
}

// Reprime resets hints/next-use data for a new segment (spec §4.3.6).
func (ra *ReverseAnalysis) Reprime(iidxCount int, uses [][]OpRef, outputHints map[int]Reg) {
	ra.hints = make(map[int]Reg, len(outputHints))
	for k, v := range outputHints {
		ra.hints[k] = v
	}
	ra.nextUse = make(map[OpRef][]int)
	for i := 0; i < iidxCount && i < len(uses); i++ {
		for _, op := range uses[i] {
			ra.nextUse[op] = append(ra.nextUse[op], i)
		}
	}
}
