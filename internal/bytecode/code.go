package bytecode

import (
	"hash/fnv"
)

// LineEntry is one run of the run-length-encoded line-number mapping
// (spec §3, §6): an instruction-offset delta paired with a source-line
// delta, reconstructed by consumers into a monotonic mapping.
type LineEntry struct {
	InstrDelta uint32
	LineDelta  int32
}

// LineTable reconstructs instruction-offset -> source-line for a Code
// object's traceback rendering.
type LineTable struct {
	entries []LineEntry
}

func NewLineTable(entries []LineEntry) *LineTable { return &LineTable{entries: entries} }

// Lookup returns the source line active at instruction offset.
func (lt *LineTable) Lookup(offset uint32) int {
	var instr uint32
	var line int32
	best := line
	for _, e := range lt.entries {
		instr += e.InstrDelta
		line += e.LineDelta
		if instr > offset {
			break
		}
		best = line
	}
	return int(best)
}

// Code is the sealed, immutable unit produced by the compiler (spec §3).
// Once Freeze is called no field may be mutated. Code is a plain Go
// struct with no object header or reference count: the Go garbage
// collector keeps it alive as long as any frame references it.
type Code struct {
	Instr []byte // instruction byte stream

	Statics       []interface{} // static constant pool (tuple of constants)
	Globals       []string      // globals name tuple
	Params        []string      // parameter names tuple
	Enclosed      []string      // closure-name tuple (captured free variables)

	Lines *LineTable

	// Traps lists every TRAP handler's protected instruction range, in
	// the order the compiler emitted them. A panic unwinding through a
	// frame consults this to find the innermost range covering the
	// panicking instruction (spec §4.11: "an instruction range that
	// catches panics arising inside its range").
	Traps []TrapRange

	StackSize  int // required evaluation-stack depth
	LocalsSize int // locals count
	SyncDepth  int // sync-block depth

	QualName string
	Doc      string

	IsGenerator bool
	IsAsync     bool

	frozen bool
	hash   uint64
}

// Freeze seals the Code object and computes its content hash. Spec §3:
// "a content hash of the instruction buffer." After Freeze, InstrSize,
// Hash and every other accessor are safe to call concurrently; no field
// may be mutated.
func (c *Code) Freeze() {
	if c.frozen {
		return
	}
	h := fnv.New64a()
	_, _ = h.Write(c.Instr)
	c.hash = h.Sum64()
	c.frozen = true
}

func (c *Code) Frozen() bool { return c.frozen }
func (c *Code) Hash() uint64 { return c.hash }
func (c *Code) InstrSize() int { return len(c.Instr) }

// TrapRange is one TRAP handler's protected span: instructions in
// [Start, End) unwind to Handler on panic.
type TrapRange struct {
	Start, End uint32
	Handler    uint32
}

// ClassTemplate is the compile-time-constant half of a class/trait
// declaration, interned into a Code object's Statics pool and consumed
// by MKSTRUCT/MKTRAIT at run time to build the runtime ClassDescriptor:
// the parts known statically (name, field order, a trait's required
// method names) as opposed to the parts only known at execution time
// (composed trait values, method closures), which travel on the
// evaluation stack instead.
type ClassTemplate struct {
	Name       string
	IsTrait    bool
	FieldNames []string
	Required   []string
}

// FindTrap returns the innermost (last-emitted, since TRAP ranges nest
// as the compiler descends into nested trap bodies) range covering ip,
// or ok=false if none does.
func (c *Code) FindTrap(ip uint32) (TrapRange, bool) {
	for i := len(c.Traps) - 1; i >= 0; i-- {
		r := c.Traps[i]
		if ip >= r.Start && ip < r.End {
			return r, true
		}
	}
	return TrapRange{}, false
}

// Encode renders a single instruction's bytes at op's declared width.
func Encode(op OpCode, arg uint32) []byte {
	switch op.Width() {
	case 1:
		return []byte{byte(op)}
	case 2:
		return []byte{byte(op), byte(arg)}
	default:
		return []byte{byte(op), byte(arg), byte(arg >> 8), byte(arg >> 16)}
	}
}

// Decode reads the instruction at byte offset ip, returning its opcode,
// its raw 24-bit argument (or narrower, per the opcode's width) and the
// byte offset of the following instruction. Arguments are little-endian
// within the instruction word (spec §6).
func (c *Code) Decode(ip uint32) (op OpCode, arg uint32, next uint32) {
	op = OpCode(c.Instr[ip])
	w := op.Width()
	switch w {
	case 1:
		arg = 0
	case 2:
		arg = uint32(c.Instr[ip+1])
	case 4:
		// 24-bit argument, little-endian across the three bytes
		// following the opcode byte.
		arg = uint32(c.Instr[ip+1]) | uint32(c.Instr[ip+2])<<8 | uint32(c.Instr[ip+3])<<16
	}
	return op, arg, ip + uint32(w)
}
