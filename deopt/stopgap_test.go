package deopt

import "testing"

// single-body program: local0 = local1 + local2 (with overflow flag into
// local3), then return local0.
func addBody() *Body {
	return &Body{
		ID:        1,
		NumLocals: 4,
		Blocks: []BasicBlock{
			{
				Stmts: []Stmt{
					{
						Kind: StmtBinOp,
						Op:   BinAdd,
						Lhs:  IRPlace{Local: 1},
						Rhs:  IRPlace{Local: 2},
						Out:  IRPlace{Local: 0},
						OverflowOut: IRPlace{Local: 3},
						HasOverflow: true,
					},
				},
				Term: Terminator{Kind: TermReturn, ReturnValue: IRPlace{Local: 0}},
			},
		},
	}
}

func resolverFor(bodies ...*Body) BodyResolver {
	m := make(map[int]*Body)
	for _, b := range bodies {
		m[b.ID] = b
	}
	return func(id int) (*Body, error) {
		b, ok := m[id]
		if !ok {
			return nil, newDeoptError("no such body %d", id)
		}
		return b, nil
	}
}

func TestStopgapBinOpAndReturn(t *testing.T) {
	body := addBody()
	frame := NewFrameInfo(body, 0)
	frame.Locals[1] = 40
	frame.Locals[2] = 2

	interp := NewStopgapInterpreter([]*FrameInfo{frame}, resolverFor(body))
	got, err := interp.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
}

func TestStopgapBinOpReportsOverflow(t *testing.T) {
	body := addBody()
	frame := NewFrameInfo(body, 0)
	frame.Locals[1] = ^uint64(0)
	frame.Locals[2] = 1

	interp := NewStopgapInterpreter([]*FrameInfo{frame}, resolverFor(body))
	if _, err := interp.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if frame.Locals[3] != 1 {
		t.Fatalf("overflow flag = %d, want 1", frame.Locals[3])
	}
}

// caller body: calls callee(local0), stores its result in local1, returns
// local1. callee body: returns local0 * local0.
func callGraph() (caller, callee *Body) {
	callee = &Body{
		ID:        2,
		NumLocals: 1,
		Blocks: []BasicBlock{
			{
				Stmts: []Stmt{
					{Kind: StmtBinOp, Op: BinMul, Lhs: IRPlace{Local: 0}, Rhs: IRPlace{Local: 0}, Out: IRPlace{Local: 0}},
				},
				Term: Terminator{Kind: TermReturn, ReturnValue: IRPlace{Local: 0}},
			},
		},
	}
	caller = &Body{
		ID:        1,
		NumLocals: 2,
		Blocks: []BasicBlock{
			{
				Term: Terminator{
					Kind:       TermCall,
					CalleeBody: callee.ID,
					Args:       []IRPlace{{Local: 0}},
					Dest:       IRPlace{Local: 1},
					ReturnBB:   1,
				},
			},
			{
				Term: Terminator{Kind: TermReturn, ReturnValue: IRPlace{Local: 1}},
			},
		},
	}
	return caller, callee
}

func TestStopgapCallAndReturn(t *testing.T) {
	caller, callee := callGraph()
	frame := NewFrameInfo(caller, 0)
	frame.Locals[0] = 21

	interp := NewStopgapInterpreter([]*FrameInfo{frame}, resolverFor(caller, callee))
	got, err := interp.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 21*21 {
		t.Fatalf("got %d, want %d", got, 21*21)
	}
}

func TestStopgapSwitchIntAndGoto(t *testing.T) {
	body := &Body{
		ID:        1,
		NumLocals: 2,
		Blocks: []BasicBlock{
			{
				Term: Terminator{
					Kind:         TermSwitchInt,
					Discriminant: IRPlace{Local: 0},
					DiscrWidth:   8,
					Targets:      map[uint64]int{1: 2},
					Default:      1,
				},
			},
			{
				Stmts: []Stmt{{Kind: StmtLoadStore, Src: IRPlace{Local: 0}, Dst: IRPlace{Local: 1}}},
				Term:  Terminator{Kind: TermGoto, Target: 2},
			},
			{
				Stmts: []Stmt{{Kind: StmtRefCreate, RefOf: IRPlace{Local: 1}, RefTo: IRPlace{Local: 1}}},
				Term:  Terminator{Kind: TermReturn, ReturnValue: IRPlace{Local: 1}},
			},
		},
	}
	frame := NewFrameInfo(body, 0)
	frame.Locals[0] = 9 // not 1, so default branch taken -> block 1 -> block 2

	interp := NewStopgapInterpreter([]*FrameInfo{frame}, resolverFor(body))
	got, err := interp.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 1 {
		t.Fatalf("got %d, want 1 (local index written by RefCreate)", got)
	}
}

func TestStopgapAssertFailureReturnsDeoptError(t *testing.T) {
	body := &Body{
		ID:        1,
		NumLocals: 1,
		Blocks: []BasicBlock{
			{
				Term: Terminator{Kind: TermAssert, Condition: IRPlace{Local: 0}, ExpectedValue: 1},
			},
		},
	}
	frame := NewFrameInfo(body, 0)
	frame.Locals[0] = 0

	interp := NewStopgapInterpreter([]*FrameInfo{frame}, resolverFor(body))
	_, err := interp.Run()
	if err == nil {
		t.Fatal("expected assert failure, got nil error")
	}
	if _, ok := err.(*DeoptError); !ok {
		t.Fatalf("expected *DeoptError, got %T", err)
	}
}

func TestStopgapAssertSuccessFallsThrough(t *testing.T) {
	body := &Body{
		ID:        1,
		NumLocals: 1,
		Blocks: []BasicBlock{
			{
				Term: Terminator{Kind: TermAssert, Condition: IRPlace{Local: 0}, ExpectedValue: 1},
			},
			{
				Term: Terminator{Kind: TermReturn, ReturnValue: IRPlace{Local: 0}},
			},
		},
	}
	frame := NewFrameInfo(body, 0)
	frame.Locals[0] = 1

	interp := NewStopgapInterpreter([]*FrameInfo{frame}, resolverFor(body))
	got, err := interp.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
}

func TestStopgapNoFramesIsError(t *testing.T) {
	interp := NewStopgapInterpreter(nil, resolverFor())
	if _, err := interp.Run(); err == nil {
		t.Fatal("expected error starting with no frames")
	}
}
