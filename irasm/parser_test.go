package irasm

import (
	"strings"
	"testing"

	"github.com/lookbusy1344/yk-mt/deopt"
)

func TestParseSimpleBody(t *testing.T) {
	src := `
body square locals=1
block 0:
  binop mul %0, %0 -> %0
  ret %0
`
	bodies, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, ok := bodies["square"]
	if !ok {
		t.Fatalf("expected body %q to be parsed", "square")
	}
	if body.NumLocals != 1 {
		t.Fatalf("NumLocals = %d, want 1", body.NumLocals)
	}
	if len(body.Blocks) != 1 {
		t.Fatalf("len(Blocks) = %d, want 1", len(body.Blocks))
	}
	bb := body.Blocks[0]
	if len(bb.Stmts) != 1 {
		t.Fatalf("len(Stmts) = %d, want 1", len(bb.Stmts))
	}
	st := bb.Stmts[0]
	if st.Kind != deopt.StmtBinOp || st.Op != deopt.BinMul {
		t.Fatalf("unexpected stmt: %+v", st)
	}
	if bb.Term.Kind != deopt.TermReturn || bb.Term.ReturnValue.Local != 0 {
		t.Fatalf("unexpected terminator: %+v", bb.Term)
	}
}

func TestParseCallResolvesCalleeBeforeDefinition(t *testing.T) {
	src := `
body main locals=1
block 0:
  call callee(%0) -> %0 returnbb=1
block 1:
  ret %0

body callee locals=1
block 0:
  binop add %0, %0 -> %0
  ret %0
`
	bodies, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	main, ok := bodies["main"]
	if !ok {
		t.Fatalf("missing body %q", "main")
	}
	callee, ok := bodies["callee"]
	if !ok {
		t.Fatalf("missing body %q", "callee")
	}

	term := main.Blocks[0].Term
	if term.Kind != deopt.TermCall {
		t.Fatalf("unexpected terminator kind: %v", term.Kind)
	}
	if term.CalleeBody != callee.ID {
		t.Fatalf("CalleeBody = %d, want %d (callee's assigned ID)", term.CalleeBody, callee.ID)
	}
	if term.ReturnBB != 1 {
		t.Fatalf("ReturnBB = %d, want 1", term.ReturnBB)
	}
	if len(term.Args) != 1 || term.Args[0].Local != 0 {
		t.Fatalf("unexpected args: %+v", term.Args)
	}
}

func TestParseSwitchIntWithTargetsAndDefault(t *testing.T) {
	src := `
body pick locals=1
block 0:
  switch %0 width=32 (0 -> 1, 1 -> 2) default 3
block 1:
  ret %0
block 2:
  ret %0
block 3:
  ret %0
`
	bodies, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	term := bodies["pick"].Blocks[0].Term
	if term.Kind != deopt.TermSwitchInt {
		t.Fatalf("unexpected terminator kind: %v", term.Kind)
	}
	if term.DiscrWidth != 32 {
		t.Fatalf("DiscrWidth = %d, want 32", term.DiscrWidth)
	}
	if term.Targets[0] != 1 || term.Targets[1] != 2 {
		t.Fatalf("unexpected targets: %+v", term.Targets)
	}
	if term.Default != 3 {
		t.Fatalf("Default = %d, want 3", term.Default)
	}
}

func TestParseAssert(t *testing.T) {
	src := `
body check locals=1
block 0:
  assert %0 == 42
block 1:
  ret %0
`
	bodies, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	term := bodies["check"].Blocks[0].Term
	if term.Kind != deopt.TermAssert {
		t.Fatalf("unexpected terminator kind: %v", term.Kind)
	}
	if term.ExpectedValue != 42 {
		t.Fatalf("ExpectedValue = %d, want 42", term.ExpectedValue)
	}
}

func TestParseUndefinedBodyIsReported(t *testing.T) {
	src := `
body main locals=1
block 0:
  call ghost(%0) -> %0 returnbb=1
block 1:
  ret %0
`
	_, err := NewParser(src).ParseProgram()
	if err == nil {
		t.Fatalf("expected an error for a call to an undefined body")
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Fatalf("error %q does not mention the undefined body", err.Error())
	}
}

func TestParseDuplicateBodyIsReported(t *testing.T) {
	src := `
body dup locals=0
block 0:
  ret %0

body dup locals=0
block 0:
  ret %0
`
	_, err := NewParser(src).ParseProgram()
	if err == nil {
		t.Fatalf("expected an error for a body defined twice")
	}
	if !strings.Contains(err.Error(), "already defined") {
		t.Fatalf("error %q does not mention the duplicate definition", err.Error())
	}
}

func TestParseRefAndMov(t *testing.T) {
	src := `
body refs locals=2
block 0:
  mov %1, %0
  ref %0 -> %1
  ret %1
`
	bodies, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stmts := bodies["refs"].Blocks[0].Stmts
	if len(stmts) != 2 {
		t.Fatalf("len(Stmts) = %d, want 2", len(stmts))
	}
	if stmts[0].Kind != deopt.StmtLoadStore || stmts[0].Dst.Local != 1 || stmts[0].Src.Local != 0 {
		t.Fatalf("unexpected mov stmt: %+v", stmts[0])
	}
	if stmts[1].Kind != deopt.StmtRefCreate || stmts[1].RefOf.Local != 0 || stmts[1].RefTo.Local != 1 {
		t.Fatalf("unexpected ref stmt: %+v", stmts[1])
	}
}

func TestParseBinOpOverflow(t *testing.T) {
	src := `
body addc locals=3
block 0:
  binop add %0, %1 -> %2 overflow %2
  ret %2
`
	bodies, err := NewParser(src).ParseProgram()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	st := bodies["addc"].Blocks[0].Stmts[0]
	if !st.HasOverflow {
		t.Fatalf("expected HasOverflow to be set")
	}
	if st.OverflowOut.Local != 2 {
		t.Fatalf("OverflowOut = %+v, want Local 2", st.OverflowOut)
	}
}
