package regalloc

// Allocator runs the two-stage linear-scan algorithm described in spec
// §4.3.2 against a RegState/ReverseAnalysis pair shared across an entire
// trace compilation.
type Allocator struct {
	rs  *RegState
	ra  *ReverseAnalysis
	asm Assembler
	widths map[OpRef]Width
}

// NewAllocator returns an Allocator bound to the given state and emitting
// through asm. widths gives each OpRef's logical bit-width, used for spill
// sizing and extension sequences.
func NewAllocator(asm Assembler, rs *RegState, ra *ReverseAnalysis, widths map[OpRef]Width) *Allocator {
	return &Allocator{rs: rs, ra: ra, asm: asm, widths: widths}
}

// AssignRegs implements assign_regs for GP constraints (spec §4.3, public
// contract): for each constraint (in order) it chooses a physical register
// and returns the chosen set, having already emitted whatever spill/reload/
// move code the choice required.
func (a *Allocator) AssignRegs(iidx int, constraints []GPConstraint) ([]Reg, error) {
	chosen, plan, err := a.stage1Choose(iidx, constraints)
	if err != nil {
		return nil, err
	}
	a.stage2Execute(iidx, constraints, chosen, plan)
	return chosen, nil
}

// stage2Plan records, per constraint index, what Stage 1 decided needs to
// happen to get the chosen register ready (spec §4.3.2 Stage 2).
type stage2Plan struct {
	needsReload []bool // true if the constraint's input must be loaded from its spill slot / rematerialized
	evicted     map[Reg]bool
}

// stage1Choose picks registers with no state mutation (spec §4.3.2 Stage
// 1).
func (a *Allocator) stage1Choose(iidx int, constraints []GPConstraint) ([]Reg, *stage2Plan, error) {
	chosen := make([]Reg, len(constraints))
	done := make([]bool, len(constraints))
	assigned := make(map[Reg]bool)
	plan := &stage2Plan{needsReload: make([]bool, len(constraints)), evicted: make(map[Reg]bool)}

	// 1. force_reg constraints.
	for i, c := range constraints {
		if c.HasForceReg {
			chosen[i] = c.ForceReg
			assigned[c.ForceReg] = true
			done[i] = true
		}
	}

	// 2. outputs, prefer the reverse-analysis hint.
	for i, c := range constraints {
		if done[i] || (c.Kind != GPOutput && c.Kind != GPInputOutput) {
			continue
		}
		if hint, ok := a.ra.Hint(iidx); ok && !assigned[hint] && !a.rs.isReserved(hint) {
			chosen[i] = hint
			assigned[hint] = true
			done[i] = true
		}
	}

	// 3. inputs already live in some register.
	for i, c := range constraints {
		if done[i] || (c.Kind != GPInput && c.Kind != GPInputOutput) {
			continue
		}
		if r, ok := a.rs.FindHoldingGP(c.Op); ok && !assigned[r] {
			chosen[i] = r
			assigned[r] = true
			done[i] = true
		}
	}

	// 4. remaining: empty register, or a spill victim chosen by the
	// documented priority order.
	for i, c := range constraints {
		if done[i] || c.Kind == GPNone {
			continue
		}
		r, ok := a.findEmptyGPExcluding(assigned)
		if !ok {
			victim, err := a.pickSpillVictim(iidx, assigned)
			if err != nil {
				return nil, nil, err
			}
			r = victim
			plan.evicted[r] = true
		}
		chosen[i] = r
		assigned[r] = true
		done[i] = true
		if c.Kind == GPInput || c.Kind == GPInputOutput {
			if _, live := a.rs.FindHoldingGP(c.Op); !live {
				plan.needsReload[i] = true
			}
		}
	}

	return chosen, plan, nil
}

// findEmptyGPExcluding scans for an unreserved register that is both Empty
// in RegState and not already claimed by this call's in-progress Stage 1
// pass (RegState itself is only mutated in Stage 2).
func (a *Allocator) findEmptyGPExcluding(assigned map[Reg]bool) (Reg, bool) {
	for i := 0; i < NumGPRegs; i++ {
		r := Reg(i)
		if assigned[r] || a.rs.isReserved(r) {
			continue
		}
		if _, occupied := a.rs.Occupant(r); occupied || a.rs.IsConstant(r) {
			continue
		}
		return r, true
	}
	return 0, false
}

// pickSpillVictim implements spec §4.3.2 Stage 1.4's spill priority order:
// (a) a register holding a constant, (b) a register already spilled, (c)
// otherwise the register whose next use is furthest away.
func (a *Allocator) pickSpillVictim(iidx int, assigned map[Reg]bool) (Reg, error) {
	for i := 0; i < NumGPRegs; i++ {
		r := Reg(i)
		if assigned[r] || a.rs.isReserved(r) {
			continue
		}
		if a.rs.IsConstant(r) {
			return r, nil
		}
	}
	for i := 0; i < NumGPRegs; i++ {
		r := Reg(i)
		if assigned[r] || a.rs.isReserved(r) {
			continue
		}
		if a.rs.IsSpilled(r) {
			return r, nil
		}
	}
	best := -1
	bestDist := -2
	for i := 0; i < NumGPRegs; i++ {
		r := Reg(i)
		if assigned[r] || a.rs.isReserved(r) {
			continue
		}
		op, ok := a.rs.Occupant(r)
		if !ok {
			continue
		}
		dist := a.ra.NextUseAfter(op, iidx)
		if dist == -1 {
			dist = 1 << 30 // "never used again" sorts furthest away
		}
		if dist > bestDist {
			bestDist = dist
			best = i
		}
	}
	if best == -1 {
		return 0, newAllocError(iidx, "no register available to spill: every GP register is reserved")
	}
	return Reg(best), nil
}

// stage2Execute runs the emit-and-mutate pass (spec §4.3.2 Stage 2): evict
// whatever the chosen registers used to hold, resolve cross-register moves
// to a fixed point, reload/rematerialize remaining inputs, then update
// RegState to reflect the instruction's effect.
func (a *Allocator) stage2Execute(iidx int, constraints []GPConstraint, chosen []Reg, plan *stage2Plan) {
	for r := range plan.evicted {
		op, ok := a.rs.Occupant(r)
		if !ok {
			continue
		}
		width := a.widths[op]
		if width == 0 {
			width = Width64
		}
		if a.ra.NextUseAfter(op, iidx) != -1 && !a.rs.IsSpilled(r) {
			spillValue(a.asm, a.rs, r, op, width)
		}
		a.rs.SetEmpty(r)
	}

	for i, c := range constraints {
		if c.Kind != GPInput && c.Kind != GPInputOutput {
			continue
		}
		if !plan.needsReload[i] {
			ensureExtension(a.asm, a.rs, chosen[i], a.widths[c.Op], c.InExt)
			continue
		}
		width := a.widths[c.Op]
		if width == 0 {
			width = Width64
		}
		if a.rs.IsConstant(chosen[i]) {
			continue
		}
		reloadValue(a.asm, a.rs, chosen[i], c.Op, width, c.InExt)
	}

	for i, c := range constraints {
		switch c.Kind {
		case GPInput:
			if c.Clobber {
				a.rs.SetEmpty(chosen[i])
			}
		case GPInputOutput, GPOutput:
			a.rs.SetValue(chosen[i], c.Op, c.OutExt)
		case GPClobber:
			a.rs.SetEmpty(chosen[i])
		}
	}
}
