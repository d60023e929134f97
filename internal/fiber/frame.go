package fiber

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/object"
)

// Namespace is a shared, mutable name->value binding table: the globals
// a module-level Code object reads and writes through LDGBL/STGBL.
type Namespace struct {
	names map[string]Value
}

func NewNamespace() *Namespace {
	return &Namespace{names: make(map[string]Value)}
}

func (n *Namespace) Get(name string) (Value, bool) {
	v, ok := n.names[name]
	return v, ok
}

func (n *Namespace) Set(name string, v Value) {
	n.names[name] = v
}

// Frame is one activation record (spec §4.4). It is pushed as a
// trailing region of its fiber's bytecode stack when enough room
// remains ("stack-allocated"); otherwise it is a "floating" frame
// allocated individually from the heap.
type Frame struct {
	back *Frame

	Code *bytecode.Code
	IP   uint32

	// SiteIP is the byte offset of the instruction currently being (or
	// most recently) dispatched, captured before IP advances past it.
	// Trap-range lookups during panic unwinding key on this rather than
	// the post-advance IP, since a trap's [Start,End) range is written
	// to cover the faulting instruction itself (spec §4.11 TRAP).
	SiteIP uint32

	// TrapIP, when >= 0, is the instruction offset a PANIC unwinding
	// through this frame should resume at (spec §4.11 TRAP).
	TrapIP int32

	EvalStack []Value
	evalTop   int
	Locals    []Value
	Enclosed  []Value

	Globals *Namespace

	Receiver Value
	RetVal   Value

	// DeferHead is the LIFO defer chain's top, drained on RET or on
	// unwind through this frame (spec §4.11 DFR).
	DeferHead *DeferEntry

	// SyncKeys is the frame's sync_keys area (spec §4.11 SYNC/UNSYNC):
	// SYNC pushes the acquired monitor's key here, UNSYNC pops and
	// releases the top one. Panic unwinding drains it the same way it
	// drains DeferHead, so a sync held across a panicking call is
	// always released.
	SyncKeys []object.SyncKey

	floating  bool
	stackBase int

	// native is set only for frames built by PushNativeFrame; the
	// interpreter's CALL handler invokes it directly instead of
	// dispatching through the synthetic stub's bytecode.
	native NativeFunc

	// GenOwner is non-nil only for a frame pushed on behalf of a
	// generator call (spec §4.11 "Generators"); the interpreter's YLD
	// and RET handlers consult it to know which object.Function's
	// GeneratorState to update (Saved/Done/Release).
	GenOwner *object.Function
}

// Native returns the Go callable backing this frame, or nil if it is a
// regular bytecode frame.
func (f *Frame) Native() NativeFunc { return f.native }

// DeferEntry is one entry on a frame's defer stack.
type DeferEntry struct {
	Callee Value
	Args   []Value
	Next   *DeferEntry
}

func (f *Frame) Caller() *Frame { return f.back }

// Relink reparents f onto a new caller frame, used when a generator's
// saved frame is resumed under a (possibly different) call site.
func (f *Frame) Relink(caller *Frame) { f.back = caller }

// Push appends a value onto this frame's evaluation stack.
func (f *Frame) Push(v Value) {
	if f.evalTop < len(f.EvalStack) {
		f.EvalStack[f.evalTop] = v
		f.evalTop++
		return
	}
	f.EvalStack = append(f.EvalStack, v)
	f.evalTop++
}

// Pop removes and returns the top of the evaluation stack.
func (f *Frame) Pop() Value {
	f.evalTop--
	v := f.EvalStack[f.evalTop]
	f.EvalStack[f.evalTop] = nil
	return v
}

// Peek returns the top of the evaluation stack without removing it.
func (f *Frame) Peek() Value { return f.EvalStack[f.evalTop-1] }

func (f *Frame) StackLen() int { return f.evalTop }

// PushSync records a newly acquired monitor key atop this frame's
// sync_keys area.
func (f *Frame) PushSync(k object.SyncKey) {
	f.SyncKeys = append(f.SyncKeys, k)
}

// PopSync removes and returns the most recently pushed sync key, or
// ok=false if the area is empty (an UNSYNC with no matching SYNC, which
// the compiler should never emit).
func (f *Frame) PopSync() (object.SyncKey, bool) {
	n := len(f.SyncKeys)
	if n == 0 {
		return object.SyncKey{}, false
	}
	k := f.SyncKeys[n-1]
	f.SyncKeys = f.SyncKeys[:n-1]
	return k, true
}

// UnwindSyncs releases every monitor this frame still holds, in LIFO
// order, so a panic propagating past this frame never leaks a lock.
func (f *Frame) UnwindSyncs() {
	for {
		k, ok := f.PopSync()
		if !ok {
			return
		}
		k.Unsync()
	}
}

// PushDefer records callee/args to be invoked, LIFO, on RET or unwind.
func (f *Frame) PushDefer(callee Value, args []Value) {
	f.DeferHead = &DeferEntry{Callee: callee, Args: args, Next: f.DeferHead}
}

// PopDefer removes and returns the most recently pushed defer entry.
func (f *Frame) PopDefer() *DeferEntry {
	d := f.DeferHead
	if d != nil {
		f.DeferHead = d.Next
	}
	return d
}

// PushFrame allocates a new Frame for code and links it atop the
// fiber's frame list. The eval stack, locals and enclosed slots are
// carved from the fiber's own bytecode stack as a bump region
// (spec §4.4); if the request exceeds the remaining stack the frame
// "floats" on the heap instead.
func (fb *Fiber) PushFrame(code *bytecode.Code, globals *Namespace, receiver Value) *Frame {
	need := code.StackSize + code.LocalsSize + len(code.Enclosed)

	fr := &Frame{
		back:     fb.top,
		Code:     code,
		TrapIP:   -1,
		Globals:  globals,
		Receiver: receiver,
	}

	if fb.stackCur+need <= fb.stackEnd {
		region := fb.stack[fb.stackCur : fb.stackCur+need]
		fr.stackBase = fb.stackCur
		fb.stackCur += need
		fr.EvalStack = region[:0:code.StackSize]
		fr.Locals = region[code.StackSize : code.StackSize+code.LocalsSize]
		fr.Enclosed = region[code.StackSize+code.LocalsSize : need]
	} else {
		fr.floating = true
		fr.EvalStack = make([]Value, 0, code.StackSize)
		fr.Locals = make([]Value, code.LocalsSize)
		fr.Enclosed = make([]Value, len(code.Enclosed))
	}

	fb.top = fr
	return fr
}

// PushFloatingFrame builds a frame exactly like PushFrame but always on
// the heap, never the bump region, regardless of remaining stack space.
// Generators need this: a yielded frame must outlive the bump region's
// normal pop-rewind lifetime since it will be resumed by some later,
// unrelated call (spec §4.4 "floating frame", spec §9 "generators and
// async both rely on frames outliving their fiber stack scope").
func (fb *Fiber) PushFloatingFrame(code *bytecode.Code, globals *Namespace, receiver Value) *Frame {
	fr := &Frame{
		back:     fb.top,
		Code:     code,
		TrapIP:   -1,
		Globals:  globals,
		Receiver: receiver,
		floating: true,
		EvalStack: make([]Value, 0, code.StackSize),
		Locals:    make([]Value, code.LocalsSize),
		Enclosed:  make([]Value, len(code.Enclosed)),
	}
	fb.top = fr
	return fr
}

// ResumeFrame re-attaches a previously detached floating frame (a
// generator's saved continuation) atop the fiber's frame chain under
// caller, without allocating a new frame or touching the bump region.
func (fb *Fiber) ResumeFrame(fr *Frame, caller *Frame) {
	fr.Relink(caller)
	fb.top = fr
}

// DetachTop unlinks and returns the fiber's current top frame without
// rewinding the bump region or freeing anything — used by YLD to park a
// floating frame as a generator's saved continuation while execution
// returns to its caller.
func (fb *Fiber) DetachTop() *Frame {
	fr := fb.top
	if fr == nil {
		return nil
	}
	fb.top = fr.back
	return fr
}

// PopFrame unlinks the fiber's current top frame, returning its
// remaining stack to the bump region (or simply dropping a floating
// frame to the heap collector) (spec §4.4).
func (fb *Fiber) PopFrame() *Frame {
	fr := fb.top
	if fr == nil {
		return nil
	}
	fb.top = fr.back
	if !fr.floating {
		fb.stackCur = fr.stackBase
	}
	return fr
}

// nativeStub is the two-instruction (CALL, RET) synthetic Code every
// native-function frame runs, per spec §4.4: "a synthesiser that
// copies arguments into locals and sets the instruction cursor to a
// two-instruction stub operating on a synthetic Code." Built once and
// shared: it is immutable and carries no per-call state of its own.
var nativeStub = func() *bytecode.Code {
	c := &bytecode.Code{
		Instr:      append(bytecode.Encode(bytecode.CALL, 0), bytecode.Encode(bytecode.RET, 0)...),
		StackSize:  1,
		LocalsSize: 0,
		Lines:      bytecode.NewLineTable(nil),
		QualName:   "<native>",
	}
	c.Freeze()
	return c
}()

// NativeFunc is a Go-implemented builtin callable from bytecode.
type NativeFunc func(fb *Fiber, args []Value) (Value, error)

// PushNativeFrame builds a frame around fn, copying args into locals
// the way the synthesiser described in spec §4.4 does for any native
// callee, so the interpreter's CALL/RET handling stays uniform across
// bytecode and native callees.
func (fb *Fiber) PushNativeFrame(fn NativeFunc, args []Value, globals *Namespace) *Frame {
	fr := &Frame{
		back:     fb.top,
		Code:     nativeStub,
		TrapIP:   -1,
		Globals:  globals,
		floating: true,
		Locals:   append([]Value(nil), args...),
	}
	fr.native = fn
	fb.top = fr
	return fr
}
