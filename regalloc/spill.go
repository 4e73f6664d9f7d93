package regalloc

// Assembler is the seam the allocator emits code through: it never
// constructs machine code itself, only asks the code generator's assembler
// handle to do so (spec §4.3, public contract). This mirrors the
// TraceCompiler/Disassembler seams elsewhere in this module — the actual
// machine code emission is the host's job.
type Assembler interface {
	EmitStore(r Reg, offset int, width Width)
	EmitLoad(r Reg, offset int, width Width)
	EmitLoadConst(r Reg, val uint64, width Width)
	EmitMove(dst, src Reg)
	EmitSwap(a, b Reg)
	// EmitExtend performs the sign/zero-extension sequence described in
	// spec §4.3.3: 1-bit values need `and reg,1` then `neg reg` for sign
	// extension; 8/16/32-bit widths use movsx/movzx; 64-bit needs nothing.
	EmitExtend(r Reg, from Width, to RegExtension)
}

// spillValue stores the value currently in r to its (possibly newly
// allocated) stack slot, correcting 1-bit values to a canonical zero/one
// before the store (spec §4.3.2 Stage 2.1). It is a no-op if the value is
// already spilled.
func spillValue(asm Assembler, rs *RegState, r Reg, op OpRef, width Width) {
	if s, ok := rs.slots[op]; ok && s.Spilled {
		return
	}
	slot := rs.SpillSlot(op, width)
	if width == Width1 && rs.Extension(r) != ZeroExtended {
		asm.EmitExtend(r, width, ZeroExtended)
		rs.SetExtension(r, ZeroExtended)
	}
	asm.EmitStore(r, slot.Offset, width)
}

// reloadValue loads op from its existing stack slot into r, aligning the
// result's RegExtension to want (spec §4.3.2 Stage 2.3).
func reloadValue(asm Assembler, rs *RegState, r Reg, op OpRef, width Width, want RegExtension) {
	slot, ok := rs.slots[op]
	if !ok {
		// Nothing was ever spilled for op; the caller is responsible for
		// having already confirmed it must come from the stack.
		return
	}
	asm.EmitLoad(r, slot.Offset, width)
	rs.SetExtension(r, Undefined)
	if want != Undefined {
		asm.EmitExtend(r, width, want)
		rs.SetExtension(r, want)
	}
}

// ensureExtension corrects r's extension in place to meet want, emitting
// the minimal sequence needed (spec §4.3.3's "lazily corrected" rule: a
// no-op if already satisfied).
func ensureExtension(asm Assembler, rs *RegState, r Reg, width Width, want RegExtension) {
	if rs.Extension(r) == want {
		return
	}
	asm.EmitExtend(r, width, want)
	rs.SetExtension(r, want)
}

// GuardSnapshot is the list the allocator hands off at a guard: one
// (register, source-bitwidth) pair per live register whose current
// RegExtension is not ZeroExtended (spec §4.3.5).
type GuardSnapshot struct {
	Entries []GuardSnapshotEntry
}

type GuardSnapshotEntry struct {
	Reg      Reg
	SrcWidth Width
}

// TakeGuardSnapshot scans every occupied, non-constant GP register and
// records the ones that are not already ZeroExtended.
func TakeGuardSnapshot(rs *RegState, widths map[OpRef]Width) GuardSnapshot {
	var snap GuardSnapshot
	for i, c := range rs.gp {
		if !c.occupied || c.isConst {
			continue
		}
		if c.ext == ZeroExtended {
			continue
		}
		w := widths[c.op]
		if w == 0 {
			w = Width64
		}
		snap.Entries = append(snap.Entries, GuardSnapshotEntry{Reg: Reg(i), SrcWidth: w})
	}
	return snap
}

// GetReadyForDeopt emits the zero-extension sequence for every register in
// snap so the deopt consumer observes only canonical (zero-extended)
// values (spec §4.3.5).
func GetReadyForDeopt(asm Assembler, rs *RegState, snap GuardSnapshot) {
	for _, e := range snap.Entries {
		asm.EmitExtend(e.Reg, e.SrcWidth, ZeroExtended)
		rs.SetExtension(e.Reg, ZeroExtended)
	}
}
