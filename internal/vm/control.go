package vm

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/object"
)

// execJump handles every conditional/unconditional jump opcode. arg is
// always the target instruction's absolute byte offset; fr.IP already
// points past the jump instruction itself (Run advances it before
// dispatch), so "don't jump" simply means leaving fr.IP alone.
func (vm *Interpreter) execJump(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode, arg uint32) {
	switch op {
	case bytecode.JMP:
		fr.IP = arg

	case bytecode.JT:
		if object.Truthy(fr.Pop()) {
			fr.IP = arg
		}

	case bytecode.JF:
		if !object.Truthy(fr.Pop()) {
			fr.IP = arg
		}

	case bytecode.JFOP:
		// Short-circuit AND: stop and keep the value only if it's
		// already false; otherwise drop it and fall through to
		// evaluate the right-hand operand.
		if !object.Truthy(fr.Peek()) {
			fr.IP = arg
			return
		}
		fr.Pop()

	case bytecode.JTOP:
		// Short-circuit OR: mirror image of JFOP.
		if object.Truthy(fr.Peek()) {
			fr.IP = arg
			return
		}
		fr.Pop()

	case bytecode.JNIL:
		v := fr.Pop()
		if v == nil || v == object.Nil {
			fr.IP = arg
		}

	case bytecode.JNN:
		// Jump keeping the value if it's not nil (e.g. a `?? default`
		// coalescing form); otherwise drop the nil and fall through to
		// compute the default.
		v := fr.Peek()
		if v != nil && v != object.Nil {
			fr.IP = arg
			return
		}
		fr.Pop()

	case bytecode.JEX:
		vm.execJex(fr, arg)
	}
}

// execJex implements the NXT/JEX for-loop pairing: NXT leaves [...,
// iter, value, more] on the stack; JEX consumes the "more" flag and, on
// exhaustion, also discards the stale value and the iterator itself
// before jumping past the loop body. On a live value it leaves [...,
// iter, value] for the loop body to consume, ready for the next NXT.
func (vm *Interpreter) execJex(fr *fiber.Frame, arg uint32) {
	more := object.Truthy(fr.Pop())
	if more {
		return
	}
	release(fr.Pop())    // stale placeholder value from the exhausted NXT
	release(fr.Pop())    // the iterator itself
	fr.IP = arg
}
