package decoder

// InsnKind is the small slice of x64 instruction shapes disassembly-mode
// decoding needs to distinguish (spec §4.2.1): everything else is just
// "sequential, keep stepping".
type InsnKind int

const (
	InsnSequential InsnKind = iota
	InsnCondBranch
	InsnIndirectBranch
	InsnReturn
	InsnCall
)

// Insn is one decoded instruction, as much detail as the decoder needs to
// drive TNT/TIP consumption.
type Insn struct {
	VAddr      uint64
	Len        uint64
	Kind       InsnKind
	BranchDest uint64 // valid for InsnCondBranch (direct) and InsnCall
	IsDirect   bool   // for InsnCondBranch/InsnCall/InsnIndirectBranch
}

// Disassembler decodes a single instruction at vaddr from the given bytes.
// Full x64 instruction decoding lives with the host, not here; this is the
// seam it plugs into, playing the same role for disassembly-mode decoding
// that yk.TraceCompiler plays for the compile side.
type Disassembler func(vaddr uint64, bytes []byte) (Insn, error)
