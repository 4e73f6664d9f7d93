package decoder

// CurLoc tracks where decoding believes execution currently is (spec
// §4.2.2): either a known virtual address, or "other object or unknown"
// once a PSB has cleared it.
type CurLoc struct {
	known bool
	vaddr uint64
}

func unknownLoc() CurLoc       { return CurLoc{} }
func knownLoc(v uint64) CurLoc { return CurLoc{known: true, vaddr: v} }
func (l CurLoc) IsKnown() bool { return l.known }
func (l CurLoc) VAddr() uint64 { return l.vaddr }

// Decoder is the finite packet-buffer iterator described in spec component
// D. Construct one with NewDecoder per trace buffer; call Next repeatedly
// until it returns a non-nil DecodeError.
type Decoder struct {
	packets  *packetReader
	blocks   *BlockMap
	segments *SegmentCache
	disasm   Disassembler

	cur     CurLoc
	tnt     []bool // queue of pending taken/not-taken decisions
	returns *compressedReturnStack

	unboundMode []byte // set by a MODE packet, consumed by the packet that binds to it
	inPSBPlus   bool
}

// NewDecoder constructs a decoder over packets, using blocks for
// compiler-assisted lookups and segments+disasm as the fallback for
// addresses without block-map coverage. startVAddr seeds cur_loc.
func NewDecoder(packets []Packet, blocks *BlockMap, segments *SegmentCache, disasm Disassembler, startVAddr uint64) *Decoder {
	return &Decoder{
		packets:  newPacketReader(packets),
		blocks:   blocks,
		segments: segments,
		disasm:   disasm,
		cur:      knownLoc(startVAddr),
		returns:  newCompressedReturnStack(),
	}
}

// Next yields the next basic block in execution order, or a terminal
// DecodeError (spec §4.2.5). Once Next returns an error, the Decoder must
// not be reused.
func (d *Decoder) Next() (*Block, *DecodeError) {
	if d.cur.IsKnown() && d.blocks != nil {
		if b := d.blocks.Lookup(d.cur.VAddr()); b != nil {
			return d.stepBlockMapped(b)
		}
	}
	return d.stepDisassembly()
}

// stepBlockMapped implements the compiler-assisted decode mode (spec
// §4.2.1): emit the block, then advance cur_loc per its successor rule,
// consuming TNT decisions from the queue for conditional successors.
func (d *Decoder) stepBlockMapped(b *Block) (*Block, *DecodeError) {
	for _, cs := range b.Callsites {
		if cs.IsDirect && cs.TargetKnown && cs.Target == cs.ReturnAddr {
			continue // fall-through call, never pushed (spec §4.2.3)
		}
		d.returns.pushAfterCall(cs.ReturnAddr)
	}

	switch b.Successor.Kind {
	case SuccessorUnconditional:
		if b.Successor.TargetKnown {
			d.cur = knownLoc(b.Successor.Target)
			return b, nil
		}
		return b, d.resolveViaTIP()

	case SuccessorConditional:
		taken, err := d.resolveConditional(b.Successor)
		if err != nil {
			return nil, err
		}
		if taken {
			d.cur = knownLoc(b.Successor.TakenTarget)
		} else if b.Successor.NotTakenKnown {
			d.cur = knownLoc(b.Successor.NotTakenTarget)
		} else {
			return b, d.resolveViaTIP()
		}
		return b, nil

	case SuccessorReturn:
		return b, d.resolveReturn()

	case SuccessorDynamic:
		return b, d.resolveViaTIP()

	default:
		return b, d.resolveViaTIP()
	}
}

// resolveConditional pops up to NumCondBrs TNT decisions, returning true on
// the first "taken" bit it sees (spec §4.2.1: "the first taken decision
// wins; if none taken, control falls through").
func (d *Decoder) resolveConditional(s Successor) (bool, *DecodeError) {
	for i := 0; i < s.NumCondBrs; i++ {
		bit, err := d.popTNT()
		if err != nil {
			return false, err
		}
		if bit {
			return true, nil
		}
	}
	return false, nil
}

// resolveReturn pops the compressed-return stack if there is a pending TNT
// decision (a compressed return), otherwise falls back to an explicit TIP
// (spec §4.2.3).
func (d *Decoder) resolveReturn() *DecodeError {
	if len(d.tnt) > 0 {
		e, ok := d.returns.pop()
		if ok {
			d.cur = knownLoc(e.addr)
			return nil
		}
	}
	return d.resolveViaTIP()
}

// resolveViaTIP advances a packet at a time until a TIP updates cur_loc,
// handling PSB/PSB+, OVF, and the supported async-interrupt FUP pattern
// along the way (spec §4.2.2).
func (d *Decoder) resolveViaTIP() *DecodeError {
	var pendingFUP *uint64
	sawPGD := false
	for {
		pkt, ok := d.packets.next()
		if !ok {
			return newDecodeError(NoMorePackets, d.packets.offset())
		}
		switch pkt.Kind {
		case PacketTNT:
			d.tnt = append(d.tnt, pkt.Bits...)
		case PacketMode:
			d.unboundMode = pkt.ModeBytes
		case PacketPSB:
			d.cur = unknownLoc()
			d.returns.clear()
			if len(d.tnt) != 0 {
				return newDecodeError(TraceInterrupted, pkt.Offset)
			}
			d.inPSBPlus = true
		case PacketOVF:
			return newDecodeError(TraceBufferOverflow, pkt.Offset)
		case PacketFUP:
			if d.unboundMode == nil {
				v := pkt.FUPTarget
				pendingFUP = &v
				continue
			}
			d.unboundMode = nil
		case PacketTIP:
			if d.inPSBPlus {
				d.inPSBPlus = false
				continue // PSB+ TIPs are status-only, must not update cur_loc
			}
			if pendingFUP != nil {
				// Supported async-interrupt recovery: [FUP, TIP.PGD, TIP.PGE]
				// — ignore the interruption and resume at the TIP.PGE target.
				// Any other TIP after the FUP is reported as TraceInterrupted.
				if pkt.TIPSub != TIPPGD {
					return newDecodeError(TraceInterrupted, pkt.Offset)
				}
				pendingFUP = nil
				sawPGD = true
				continue
			}
			if sawPGD && pkt.TIPSub != TIPPGE {
				return newDecodeError(TraceInterrupted, pkt.Offset)
			}
			d.cur = knownLoc(pkt.TIPTarget)
			d.unboundMode = nil
			return nil
		}
	}
}

func (d *Decoder) popTNT() (bool, *DecodeError) {
	for len(d.tnt) == 0 {
		pkt, ok := d.packets.next()
		if !ok {
			return false, newDecodeError(NoMorePackets, d.packets.offset())
		}
		if pkt.Kind == PacketTNT {
			d.tnt = append(d.tnt, pkt.Bits...)
		} else if pkt.Kind == PacketOVF {
			return false, newDecodeError(TraceBufferOverflow, pkt.Offset)
		}
	}
	bit := d.tnt[0]
	d.tnt = d.tnt[1:]
	return bit, nil
}

// stepDisassembly implements the fallback decode mode (spec §4.2.1):
// decode x64 instructions directly from the segment cache, popping TNT/TIP
// as needed, until landing on an address with block-map coverage (or
// running out of packets).
func (d *Decoder) stepDisassembly() (*Block, *DecodeError) {
	if d.disasm == nil || d.segments == nil {
		return nil, newDecodeError(NoSuchVAddr, d.packets.offset())
	}

	start := d.cur
	if !start.IsKnown() {
		return nil, newDecodeError(NoSuchVAddr, d.packets.offset())
	}

	vaddr := start.VAddr()
	var length uint64

	for {
		bytes, err := d.segments.Bytes(vaddr, 16)
		if err != nil {
			return nil, wrapDecodeError(NoSuchVAddr, d.packets.offset(), err)
		}
		insn, err := d.disasm(vaddr, bytes)
		if err != nil {
			return nil, wrapDecodeError(NoSuchVAddr, d.packets.offset(), err)
		}

		length += insn.Len
		nextAddr := vaddr + insn.Len

		switch insn.Kind {
		case InsnSequential:
			vaddr = nextAddr
		case InsnCall:
			if !(insn.IsDirect && insn.BranchDest == nextAddr) {
				d.returns.pushAfterCall(nextAddr)
			}
			vaddr = nextAddr
			if insn.IsDirect {
				vaddr = insn.BranchDest
			}
		case InsnCondBranch:
			bit, derr := d.popTNT()
			if derr != nil {
				return nil, derr
			}
			if bit {
				vaddr = insn.BranchDest
			} else {
				vaddr = nextAddr
			}
		case InsnReturn:
			if derr := d.resolveReturn(); derr != nil {
				return nil, derr
			}
			vaddr = d.cur.VAddr()
		case InsnIndirectBranch:
			if derr := d.resolveViaTIP(); derr != nil {
				return nil, derr
			}
			vaddr = d.cur.VAddr()
		}

		if d.blocks != nil && d.blocks.Lookup(vaddr) != nil {
			d.cur = knownLoc(vaddr)
			return &Block{VAddr: start.VAddr(), Len: length}, nil
		}
		if insn.Kind != InsnSequential {
			d.cur = knownLoc(vaddr)
			return &Block{VAddr: start.VAddr(), Len: length}, nil
		}
	}
}
