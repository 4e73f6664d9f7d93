package irasm

import (
	"strconv"
	"strings"

	"github.com/lookbusy1344/yk-mt/deopt"
)

// Parser turns host-IR text into a set of deopt.Body values, resolving
// cross-body call targets via a bodyTable the same way the teacher's
// parser.Parser resolves label references via its SymbolTable.
type Parser struct {
	lex    *Lexer
	cur    Token
	peek   Token
	bodies *bodyTable
	errs   []error
}

// NewParser creates a parser over the given host-IR source.
func NewParser(input string) *Parser {
	p := &Parser{lex: NewLexer(input), bodies: newBodyTable()}
	p.next()
	p.next()
	return p
}

func (p *Parser) next() {
	p.cur = p.peek
	p.peek = p.lex.NextToken()
}

func (p *Parser) addErr(pos Position, format string, args ...any) {
	p.errs = append(p.errs, newParseError(pos, format, args...))
}

func (p *Parser) skipNewlines() {
	for p.cur.Type == TokenNewline {
		p.next()
	}
}

// ParseProgram assembles every body definition in the source into a
// map keyed by body name, the same names resolve() uses to assign call
// targets. Returns the accumulated errors (if any), not a single
// first error, so a caller sees every malformed body in one pass — the
// same multi-error-then-report shape as parser.ErrorList.
func (p *Parser) ParseProgram() (map[string]*deopt.Body, error) {
	bodies := make(map[string]*deopt.Body)

	for {
		p.skipNewlines()
		if p.cur.Type == TokenEOF {
			break
		}
		if p.cur.Type != TokenIdentifier || p.cur.Literal != "body" {
			p.addErr(p.cur.Pos, "expected 'body', got %s", p.cur)
			p.skipToNextBody()
			continue
		}
		name, body := p.parseBody()
		if name != "" {
			bodies[name] = body
		}
	}

	for _, name := range p.bodies.undefined() {
		p.addErr(Position{}, "body %q called but never defined", name)
	}

	if len(p.errs) > 0 {
		return bodies, &ParseErrors{Errs: p.errs}
	}
	return bodies, nil
}

func (p *Parser) skipToNextBody() {
	for p.cur.Type != TokenEOF && !(p.cur.Type == TokenIdentifier && p.cur.Literal == "body") {
		p.next()
	}
}

// parseBody parses "body NAME locals=N" followed by one or more
// "block IDX:" sections.
func (p *Parser) parseBody() (string, *deopt.Body) {
	p.next() // consume "body"

	if p.cur.Type != TokenIdentifier {
		p.addErr(p.cur.Pos, "expected body name, got %s", p.cur)
		return "", nil
	}
	name := p.cur.Literal
	p.next()

	numLocals := 0
	if p.cur.Type == TokenIdentifier && strings.HasPrefix(p.cur.Literal, "locals=") {
		n, err := strconv.Atoi(strings.TrimPrefix(p.cur.Literal, "locals="))
		if err != nil {
			p.addErr(p.cur.Pos, "invalid locals count: %v", err)
		}
		numLocals = n
		p.next()
	}

	sym, err := p.bodies.define(name)
	if err != nil {
		p.addErr(p.cur.Pos, "%v", err)
	}

	body := &deopt.Body{NumLocals: numLocals}
	if sym != nil {
		body.ID = sym.ID
	}

	p.skipNewlines()
	for p.cur.Type == TokenIdentifier && p.cur.Literal == "block" {
		body.Blocks = append(body.Blocks, p.parseBlock())
		p.skipNewlines()
	}

	return name, body
}

func (p *Parser) parseBlock() deopt.BasicBlock {
	p.next() // consume "block"
	p.next() // consume index (unchecked: blocks are appended in file order)
	if p.cur.Type == TokenColon {
		p.next()
	}
	p.skipNewlines()

	var bb deopt.BasicBlock
	for {
		if p.cur.Type != TokenIdentifier {
			break
		}
		switch p.cur.Literal {
		case "ret", "goto", "switch", "call", "assert":
			bb.Term = p.parseTerminator()
			return bb
		default:
			bb.Stmts = append(bb.Stmts, p.parseStmt())
			p.skipNewlines()
		}
	}
	p.addErr(p.cur.Pos, "block ended without a terminator")
	return bb
}

func (p *Parser) parsePlace() deopt.IRPlace {
	if p.cur.Type != TokenPercent {
		p.addErr(p.cur.Pos, "expected %%N, got %s", p.cur)
		return deopt.IRPlace{}
	}
	p.next()
	if p.cur.Type != TokenNumber {
		p.addErr(p.cur.Pos, "expected local index after %%, got %s", p.cur)
		return deopt.IRPlace{}
	}
	n, _ := strconv.Atoi(p.cur.Literal)
	p.next()
	return deopt.IRPlace{Local: n}
}

func (p *Parser) expectComma() {
	if p.cur.Type == TokenComma {
		p.next()
	} else {
		p.addErr(p.cur.Pos, "expected ',', got %s", p.cur)
	}
}

func (p *Parser) parseStmt() deopt.Stmt {
	switch p.cur.Literal {
	case "nop":
		p.next()
		return deopt.Stmt{Kind: deopt.StmtNop}

	case "mov":
		p.next()
		dst := p.parsePlace()
		p.expectComma()
		src := p.parsePlace()
		return deopt.Stmt{Kind: deopt.StmtLoadStore, Dst: dst, Src: src}

	case "ref":
		p.next()
		of := p.parsePlace()
		if p.cur.Type == TokenArrow {
			p.next()
		} else {
			p.addErr(p.cur.Pos, "expected '->' in ref statement")
		}
		to := p.parsePlace()
		return deopt.Stmt{Kind: deopt.StmtRefCreate, RefOf: of, RefTo: to}

	case "binop":
		p.next()
		op := p.parseBinOp()
		lhs := p.parsePlace()
		p.expectComma()
		rhs := p.parsePlace()
		if p.cur.Type == TokenArrow {
			p.next()
		} else {
			p.addErr(p.cur.Pos, "expected '->' in binop statement")
		}
		out := p.parsePlace()
		st := deopt.Stmt{Kind: deopt.StmtBinOp, Op: op, Lhs: lhs, Rhs: rhs, Out: out}
		if p.cur.Type == TokenIdentifier && p.cur.Literal == "overflow" {
			p.next()
			st.OverflowOut = p.parsePlace()
			st.HasOverflow = true
		}
		return st

	default:
		p.addErr(p.cur.Pos, "unknown statement %q", p.cur.Literal)
		p.next()
		return deopt.Stmt{Kind: deopt.StmtNop}
	}
}

func (p *Parser) parseBinOp() deopt.BinOp {
	op := p.cur.Literal
	p.next()
	switch op {
	case "add":
		return deopt.BinAdd
	case "sub":
		return deopt.BinSub
	case "mul":
		return deopt.BinMul
	default:
		p.addErr(p.cur.Pos, "unknown binop %q", op)
		return deopt.BinAdd
	}
}

func (p *Parser) parseTerminator() deopt.Terminator {
	switch p.cur.Literal {
	case "ret":
		p.next()
		return deopt.Terminator{Kind: deopt.TermReturn, ReturnValue: p.parsePlace()}

	case "goto":
		p.next()
		n, _ := strconv.Atoi(p.cur.Literal)
		p.next()
		return deopt.Terminator{Kind: deopt.TermGoto, Target: n}

	case "assert":
		p.next()
		cond := p.parsePlace()
		p.expectIdent("==")
		n, _ := strconv.ParseUint(p.cur.Literal, 0, 64)
		p.next()
		return deopt.Terminator{Kind: deopt.TermAssert, Condition: cond, ExpectedValue: n}

	case "switch":
		return p.parseSwitch()

	case "call":
		return p.parseCall()

	default:
		p.addErr(p.cur.Pos, "unknown terminator %q", p.cur.Literal)
		p.next()
		return deopt.Terminator{Kind: deopt.TermReturn}
	}
}

// expectIdent consumes cur if it matches literal, else records an error;
// used for the small fixed keywords (== and ->) this grammar needs without
// a full operator-token set. The width= and returnbb= options are matched
// by prefix on the identifier instead.
func (p *Parser) expectIdent(literal string) {
	if p.cur.Literal == literal {
		p.next()
		return
	}
	p.addErr(p.cur.Pos, "expected %q, got %s", literal, p.cur)
}

func (p *Parser) parseSwitch() deopt.Terminator {
	p.next() // "switch"
	disc := p.parsePlace()

	width := 64
	if strings.HasPrefix(p.cur.Literal, "width=") {
		n, _ := strconv.Atoi(strings.TrimPrefix(p.cur.Literal, "width="))
		width = n
		p.next()
	}

	term := deopt.Terminator{Kind: deopt.TermSwitchInt, Discriminant: disc, DiscrWidth: width, Targets: map[uint64]int{}}

	if p.cur.Type == TokenLParen {
		p.next()
		for p.cur.Type == TokenNumber {
			key, _ := strconv.ParseUint(p.cur.Literal, 0, 64)
			p.next()
			p.expectIdent("->")
			target, _ := strconv.Atoi(p.cur.Literal)
			p.next()
			term.Targets[key] = target
			if p.cur.Type == TokenComma {
				p.next()
			}
		}
		if p.cur.Type == TokenRParen {
			p.next()
		}
	}

	if p.cur.Literal == "default" {
		p.next()
		n, _ := strconv.Atoi(p.cur.Literal)
		p.next()
		term.Default = n
	}

	return term
}

func (p *Parser) parseCall() deopt.Terminator {
	p.next() // "call"
	if p.cur.Type != TokenIdentifier {
		p.addErr(p.cur.Pos, "expected callee body name, got %s", p.cur)
		return deopt.Terminator{Kind: deopt.TermReturn}
	}
	callee := p.bodies.resolve(p.cur.Literal)
	p.next()

	term := deopt.Terminator{Kind: deopt.TermCall, CalleeBody: callee.ID}

	if p.cur.Type == TokenLParen {
		p.next()
		for p.cur.Type == TokenPercent {
			term.Args = append(term.Args, p.parsePlace())
			if p.cur.Type == TokenComma {
				p.next()
			}
		}
		if p.cur.Type == TokenRParen {
			p.next()
		}
	}

	if p.cur.Type == TokenArrow {
		p.next()
		term.Dest = p.parsePlace()
	}

	if strings.HasPrefix(p.cur.Literal, "returnbb=") {
		n, _ := strconv.Atoi(strings.TrimPrefix(p.cur.Literal, "returnbb="))
		term.ReturnBB = n
		p.next()
	}

	return term
}

// ParseErrors aggregates every error found while assembling a program.
type ParseErrors struct {
	Errs []error
}

func (e *ParseErrors) Error() string {
	var b strings.Builder
	for i, err := range e.Errs {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(err.Error())
	}
	return b.String()
}
