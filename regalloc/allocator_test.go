package regalloc

import "testing"

type fakeAsm struct {
	stores, loads, extends, moves, swaps int
}

func (f *fakeAsm) EmitStore(r Reg, offset int, width Width)     { f.stores++ }
func (f *fakeAsm) EmitLoad(r Reg, offset int, width Width)      { f.loads++ }
func (f *fakeAsm) EmitLoadConst(r Reg, val uint64, width Width) {}
func (f *fakeAsm) EmitMove(dst, src Reg)                        { f.moves++ }
func (f *fakeAsm) EmitSwap(a, b Reg)                            { f.swaps++ }
func (f *fakeAsm) EmitExtend(r Reg, from Width, to RegExtension) { f.extends++ }

func TestAssignRegsHonorsForceReg(t *testing.T) {
	rs := NewRegState(nil)
	ra := NewReverseAnalysis(0, nil, nil)
	asm := &fakeAsm{}
	alloc := NewAllocator(asm, rs, ra, map[OpRef]Width{1: Width32})

	chosen, err := alloc.AssignRegs(0, []GPConstraint{
		{Kind: GPOutput, Op: 1, HasForceReg: true, ForceReg: Reg(5), OutExt: ZeroExtended},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen[0] != Reg(5) {
		t.Fatalf("expected forced register 5, got %d", chosen[0])
	}
	op, ok := rs.Occupant(Reg(5))
	if !ok || op != OpRef(1) {
		t.Fatalf("expected register 5 to now hold op 1")
	}
}

func TestAssignRegsReusesLiveInput(t *testing.T) {
	rs := NewRegState(nil)
	rs.SetValue(Reg(3), OpRef(7), ZeroExtended)
	ra := NewReverseAnalysis(0, nil, nil)
	asm := &fakeAsm{}
	alloc := NewAllocator(asm, rs, ra, map[OpRef]Width{7: Width32})

	chosen, err := alloc.AssignRegs(1, []GPConstraint{
		{Kind: GPInput, Op: 7, InExt: ZeroExtended},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen[0] != Reg(3) {
		t.Fatalf("expected reuse of register 3 already holding op 7, got %d", chosen[0])
	}
	if asm.loads != 0 {
		t.Fatalf("reusing an already-live register should not reload, got %d loads", asm.loads)
	}
}

func TestAssignRegsSpillsWhenNoRegistersFree(t *testing.T) {
	reserved := make([]Reg, 0)
	rs := NewRegState(reserved)
	uses := make([][]OpRef, 20)
	for i := 0; i < NumGPRegs; i++ {
		op := OpRef(i + 100)
		rs.SetValue(Reg(i), op, ZeroExtended)
		// every existing value is used again soon, except op 100 (register
		// 0) which is never used again and should be the spill victim.
		if i != 0 {
			uses[10] = append(uses[10], op)
		}
	}
	ra := NewReverseAnalysis(20, uses, nil)
	asm := &fakeAsm{}
	widths := map[OpRef]Width{}
	for i := 0; i < NumGPRegs; i++ {
		widths[OpRef(i+100)] = Width32
	}
	widths[OpRef(999)] = Width32
	alloc := NewAllocator(asm, rs, ra, widths)

	chosen, err := alloc.AssignRegs(5, []GPConstraint{
		{Kind: GPOutput, Op: 999, OutExt: ZeroExtended},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if chosen[0] != Reg(0) {
		t.Fatalf("expected register 0 (never used again) to be the spill victim, got %d", chosen[0])
	}
	op, ok := rs.Occupant(Reg(0))
	if !ok || op != OpRef(999) {
		t.Fatalf("expected register 0 to now hold the new output")
	}
}

func TestGuardSnapshotSkipsZeroExtendedRegisters(t *testing.T) {
	rs := NewRegState(nil)
	rs.SetValue(Reg(0), OpRef(1), ZeroExtended)
	rs.SetValue(Reg(1), OpRef(2), SignExtended)
	rs.SetValue(Reg(2), OpRef(3), Undefined)

	snap := TakeGuardSnapshot(rs, map[OpRef]Width{2: Width32, 3: Width16})
	if len(snap.Entries) != 2 {
		t.Fatalf("expected 2 non-zero-extended entries, got %d", len(snap.Entries))
	}

	asm := &fakeAsm{}
	GetReadyForDeopt(asm, rs, snap)
	if asm.extends != 2 {
		t.Fatalf("expected 2 extend emissions, got %d", asm.extends)
	}
	if rs.Extension(Reg(1)) != ZeroExtended || rs.Extension(Reg(2)) != ZeroExtended {
		t.Fatal("GetReadyForDeopt should leave every snapshotted register ZeroExtended")
	}
}
