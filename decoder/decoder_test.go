package decoder

import "testing"

func TestCompressedReturnStackCapacity(t *testing.T) {
	s := newCompressedReturnStack()
	for i := 0; i < returnStackCapacity+10; i++ {
		s.pushVAddr(uint64(i))
	}
	if s.len() != returnStackCapacity {
		t.Fatalf("stack grew past capacity: len=%d", s.len())
	}
	e, ok := s.pop()
	if !ok {
		t.Fatal("expected an entry")
	}
	if e.addr != uint64(returnStackCapacity+9) {
		t.Fatalf("expected most recent push on top, got %d", e.addr)
	}
}

func TestCompressedReturnStackClear(t *testing.T) {
	s := newCompressedReturnStack()
	s.pushVAddr(1)
	s.pushAfterCall(2)
	s.clear()
	if s.len() != 0 {
		t.Fatalf("expected empty stack after clear, got len=%d", s.len())
	}
	if _, ok := s.pop(); ok {
		t.Fatal("pop on cleared stack should report not-ok")
	}
}

func TestDecoderUnconditionalBlockMapWalk(t *testing.T) {
	blocks := NewBlockMap([]*Block{
		{VAddr: 0x1000, Len: 4, Successor: Successor{Kind: SuccessorUnconditional, Target: 0x2000, TargetKnown: true}},
		{VAddr: 0x2000, Len: 4, Successor: Successor{Kind: SuccessorReturn}},
	})
	d := NewDecoder(nil, blocks, nil, nil, 0x1000)

	b, derr := d.Next()
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if b.VAddr != 0x1000 {
		t.Fatalf("expected block 0x1000, got 0x%x", b.VAddr)
	}
	if d.cur.VAddr() != 0x2000 {
		t.Fatalf("expected cur_loc advanced to 0x2000, got 0x%x", d.cur.VAddr())
	}
}

func TestDecoderConditionalTakesFirstTakenBit(t *testing.T) {
	blocks := NewBlockMap([]*Block{
		{
			VAddr: 0x1000, Len: 4,
			Successor: Successor{
				Kind: SuccessorConditional, NumCondBrs: 3,
				TakenTarget: 0x3000, NotTakenTarget: 0x4000, NotTakenKnown: true,
			},
		},
	})
	packets := []Packet{
		{Kind: PacketTNT, Bits: []bool{false, false, true}},
	}
	d := NewDecoder(packets, blocks, nil, nil, 0x1000)

	b, derr := d.Next()
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if b.VAddr != 0x1000 {
		t.Fatalf("expected block 0x1000, got 0x%x", b.VAddr)
	}
	if d.cur.VAddr() != 0x3000 {
		t.Fatalf("expected taken branch to 0x3000, got 0x%x", d.cur.VAddr())
	}
}

func TestDecoderConditionalFallsThroughWhenNoneTaken(t *testing.T) {
	blocks := NewBlockMap([]*Block{
		{
			VAddr: 0x1000, Len: 4,
			Successor: Successor{
				Kind: SuccessorConditional, NumCondBrs: 2,
				TakenTarget: 0x3000, NotTakenTarget: 0x4000, NotTakenKnown: true,
			},
		},
	})
	packets := []Packet{{Kind: PacketTNT, Bits: []bool{false, false}}}
	d := NewDecoder(packets, blocks, nil, nil, 0x1000)

	_, derr := d.Next()
	if derr != nil {
		t.Fatalf("unexpected error: %v", derr)
	}
	if d.cur.VAddr() != 0x4000 {
		t.Fatalf("expected fall-through to 0x4000, got 0x%x", d.cur.VAddr())
	}
}

func TestDecoderPSBClearsStateAndRejectsPendingTNT(t *testing.T) {
	blocks := NewBlockMap([]*Block{
		{VAddr: 0x1000, Len: 4, Successor: Successor{Kind: SuccessorDynamic}},
	})
	packets := []Packet{
		{Kind: PacketTNT, Bits: []bool{true}},
		{Kind: PacketPSB},
	}
	d := NewDecoder(packets, blocks, nil, nil, 0x1000)

	_, derr := d.Next()
	if derr == nil || derr.Kind != TraceInterrupted {
		t.Fatalf("expected TraceInterrupted when PSB arrives with pending TNT, got %v", derr)
	}
	if d.cur.IsKnown() {
		t.Fatal("PSB did not clear cur_loc")
	}
	if d.returns.len() != 0 {
		t.Fatalf("PSB did not clear the return stack: %d entries left", d.returns.len())
	}
}

func TestDecoderOverflowIsReported(t *testing.T) {
	blocks := NewBlockMap([]*Block{
		{VAddr: 0x1000, Len: 4, Successor: Successor{Kind: SuccessorDynamic}},
	})
	packets := []Packet{{Kind: PacketOVF}}
	d := NewDecoder(packets, blocks, nil, nil, 0x1000)

	_, derr := d.Next()
	if derr == nil || derr.Kind != TraceBufferOverflow {
		t.Fatalf("expected TraceBufferOverflow, got %v", derr)
	}
	if !derr.Kind.Recoverable() {
		t.Fatal("TraceBufferOverflow should be recoverable at trace level")
	}
}

func TestDecodeErrorInterruptedIsNotRecoverable(t *testing.T) {
	if TraceInterrupted.Recoverable() {
		t.Fatal("TraceInterrupted must be fatal, not recoverable")
	}
}
