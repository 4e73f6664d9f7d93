package deopt

import "math/bits"

// BodyResolver looks up a Body by ID, the way the host's real module table
// would; kept as a seam rather than a concrete map so the host can back it
// with whatever indexing it already has.
type BodyResolver func(id int) (*Body, error)

// StopgapInterpreter replays host IR from the point a guard failed until
// control returns past the outermost reconstructed frame, at which point
// the host interpreter resumes at the control point (spec §4.4 step 4).
// One StopgapInterpreter is used once, for a single deopt.
type StopgapInterpreter struct {
	frames   []*FrameInfo
	dests    []IRPlace // dests[i] is where frames[i]'s return value lands in frames[i-1]
	bodies   map[int]*Body
	resolver BodyResolver
}

// NewStopgapInterpreter builds an interpreter from the frame list the
// runtime materialized for this deopt (spec §4.4 steps 2-3: callers build
// frames bottom-to-top, outermost first).
func NewStopgapInterpreter(frames []*FrameInfo, resolver BodyResolver) *StopgapInterpreter {
	return &StopgapInterpreter{
		frames:   append([]*FrameInfo(nil), frames...),
		dests:    make([]IRPlace, len(frames)),
		bodies:   make(map[int]*Body),
		resolver: resolver,
	}
}

func (s *StopgapInterpreter) body(id int) (*Body, error) {
	if b, ok := s.bodies[id]; ok {
		return b, nil
	}
	b, err := s.resolver(id)
	if err != nil {
		return nil, err
	}
	s.bodies[id] = b
	return b, nil
}

// Run interprets host IR starting at the innermost frame's current block
// until the outermost frame returns, then reports the final return value
// observed by the host's control point (spec §4.4 step 4: "host observable
// state after deopt equals the state the reference interpreter would
// produce").
func (s *StopgapInterpreter) Run() (uint64, error) {
	if len(s.frames) == 0 {
		return 0, newDeoptError("stopgap started with no frames")
	}

	var lastReturn uint64
	for len(s.frames) > 0 {
		frame := s.frames[len(s.frames)-1]
		body, err := s.body(frame.BodyID)
		if err != nil {
			return 0, err
		}
		if frame.BlockIdx < 0 || frame.BlockIdx >= len(body.Blocks) {
			return 0, newDeoptError("frame %d: block index %d out of range (%d blocks)", frame.BodyID, frame.BlockIdx, len(body.Blocks))
		}
		bb := body.Blocks[frame.BlockIdx]

		for _, st := range bb.Stmts {
			if err := s.execStmt(frame, st); err != nil {
				return 0, err
			}
		}

		next, retVal, popped, err := s.execTerm(frame, bb.Term)
		if err != nil {
			return 0, err
		}
		if popped {
			lastReturn = retVal
			continue
		}
		frame.BlockIdx = next
	}

	return lastReturn, nil
}

func (s *StopgapInterpreter) execStmt(frame *FrameInfo, st Stmt) error {
	switch st.Kind {
	case StmtNop:
		return nil

	case StmtLoadStore:
		v, err := frame.Read(st.Src)
		if err != nil {
			return err
		}
		return frame.Write(st.Dst, v)

	case StmtRefCreate:
		// A reference is just the numeric local index it points at; the
		// stopgap never leaves frame-local storage, so there's no
		// allocation to perform here.
		return frame.Write(st.RefOf, uint64(st.RefTo.Local))

	case StmtBinOp:
		lhs, err := frame.Read(st.Lhs)
		if err != nil {
			return err
		}
		rhs, err := frame.Read(st.Rhs)
		if err != nil {
			return err
		}
		result, overflowed := evalBinOp(st.Op, lhs, rhs)
		if err := frame.Write(st.Out, result); err != nil {
			return err
		}
		if st.HasOverflow {
			flag := uint64(0)
			if overflowed {
				flag = 1
			}
			if err := frame.Write(st.OverflowOut, flag); err != nil {
				return err
			}
		}
		return nil

	default:
		return newDeoptError("unknown statement kind %d", st.Kind)
	}
}

func evalBinOp(op BinOp, lhs, rhs uint64) (result uint64, overflowed bool) {
	switch op {
	case BinAdd:
		sum, carry := bits.Add64(lhs, rhs, 0)
		return sum, carry != 0
	case BinSub:
		diff, borrow := bits.Sub64(lhs, rhs, 0)
		return diff, borrow != 0
	case BinMul:
		hi, lo := bits.Mul64(lhs, rhs)
		return lo, hi != 0
	default:
		return 0, false
	}
}

// execTerm runs bb's terminator, returning either the next block index to
// resume at within the same frame, or (popped=true, retVal) if the
// terminator returned out of the innermost frame.
func (s *StopgapInterpreter) execTerm(frame *FrameInfo, term Terminator) (next int, retVal uint64, popped bool, err error) {
	switch term.Kind {
	case TermGoto:
		return term.Target, 0, false, nil

	case TermSwitchInt:
		disc, err := frame.Read(term.Discriminant)
		if err != nil {
			return 0, 0, false, err
		}
		disc = maskWidth(disc, term.DiscrWidth)
		if target, ok := term.Targets[disc]; ok {
			return target, 0, false, nil
		}
		return term.Default, 0, false, nil

	case TermAssert:
		cond, err := frame.Read(term.Condition)
		if err != nil {
			return 0, 0, false, err
		}
		if cond != term.ExpectedValue {
			return 0, 0, false, newDeoptError("assert failed: got %d, expected %d", cond, term.ExpectedValue)
		}
		return frame.BlockIdx + 1, 0, false, nil

	case TermCall:
		body, err := s.body(term.CalleeBody)
		if err != nil {
			return 0, 0, false, err
		}
		callee := NewFrameInfo(body, 0)
		for i, arg := range term.Args {
			v, err := frame.Read(arg)
			if err != nil {
				return 0, 0, false, err
			}
			if i >= len(callee.Locals) {
				return 0, 0, false, newDeoptError("call to body %d passed more args than locals", term.CalleeBody)
			}
			callee.Locals[i] = v
		}
		s.frames = append(s.frames, callee)
		s.dests = append(s.dests, term.Dest)
		return term.ReturnBB, 0, false, nil

	case TermReturn:
		v, err := frame.Read(term.ReturnValue)
		if err != nil {
			return 0, 0, false, err
		}
		dest := s.dests[len(s.dests)-1]
		s.frames = s.frames[:len(s.frames)-1]
		s.dests = s.dests[:len(s.dests)-1]
		if len(s.frames) == 0 {
			return 0, v, true, nil
		}
		caller := s.frames[len(s.frames)-1]
		if err := caller.Write(dest, v); err != nil {
			return 0, 0, false, err
		}
		return caller.BlockIdx, 0, false, nil

	default:
		return 0, 0, false, newDeoptError("unknown terminator kind %d", term.Kind)
	}
}
