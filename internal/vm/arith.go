package vm

import (
	"github.com/lumen-lang/lumen/internal/bytecode"
	"github.com/lumen-lang/lumen/internal/fiber"
	"github.com/lumen-lang/lumen/internal/lumenerr"
	"github.com/lumen-lang/lumen/internal/object"
)

// numOf reads an Int or Float operand as a float64 plus whether it was
// already a Float, so binary arithmetic can decide its result type:
// Int op Int stays Int, anything touching a Float promotes to Float.
func numOf(v object.Value) (f float64, isFloat, isNum bool) {
	if i, ok := object.AsInt(v); ok {
		return float64(i.Val), false, true
	}
	if fl, ok := object.AsFloat(v); ok {
		return fl.Val, true, true
	}
	return 0, false, false
}

func (vm *Interpreter) execArith(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode, arg uint32) {
	if op == bytecode.CMP {
		vm.execCompare(f, fr, bytecode.CompareMode(arg))
		return
	}
	if op == bytecode.EQST {
		b, a := fr.Pop(), fr.Pop()
		fr.Push(boolValue(object.Equal(a, b)))
		return
	}

	b, a := fr.Pop(), fr.Pop()

	if op == bytecode.ADD {
		if as, aok := object.AsStr(a); aok {
			if bs, bok := object.AsStr(b); bok {
				fr.Push(&object.NewStr(as.Val + bs.Val).Header)
				return
			}
		}
		if al, aok := object.AsList(a); aok {
			if bl, bok := object.AsList(b); bok {
				items := make([]object.Value, 0, len(al.Items)+len(bl.Items))
				items = append(items, al.Items...)
				items = append(items, bl.Items...)
				fr.Push(&vm.newList(items).Header)
				return
			}
		}
	}

	af, aFloat, aNum := numOf(a)
	bf, bFloat, bNum := numOf(b)
	if !aNum || !bNum {
		vm.raise(f, typeErrorValue("unsupported operand type for arithmetic"))
		return
	}

	if op == bytecode.SHL || op == bytecode.SHR {
		ai, aok := object.AsInt(a)
		bi, bok := object.AsInt(b)
		if !aok || !bok {
			vm.raise(f, typeErrorValue("shift operands must be Int"))
			return
		}
		if op == bytecode.SHL {
			fr.Push(&object.NewInt(ai.Val << uint(bi.Val)).Header)
		} else {
			fr.Push(&object.NewInt(ai.Val >> uint(bi.Val)).Header)
		}
		return
	}

	asFloat := aFloat || bFloat
	if !asFloat {
		ai, bi := int64(af), int64(bf)
		var r int64
		switch op {
		case bytecode.SUB:
			r = ai - bi
		case bytecode.MUL:
			r = ai * bi
		case bytecode.IDIV, bytecode.MOD:
			if bi == 0 {
				vm.raise(f, lumenErrValue(lumenerr.Value, "division by zero"))
				return
			}
			if op == bytecode.IDIV {
				r = ai / bi
			} else {
				r = ai % bi
			}
		case bytecode.DIV:
			if bi == 0 {
				vm.raise(f, lumenErrValue(lumenerr.Value, "division by zero"))
				return
			}
			fr.Push(&object.NewFloat(float64(ai) / float64(bi)).Header)
			return
		default:
			r = ai + bi // ADD, reached only for numeric operands
		}
		fr.Push(&object.NewInt(r).Header)
		return
	}

	var r float64
	switch op {
	case bytecode.ADD:
		r = af + bf
	case bytecode.SUB:
		r = af - bf
	case bytecode.MUL:
		r = af * bf
	case bytecode.DIV, bytecode.IDIV:
		if bf == 0 {
			vm.raise(f, lumenErrValue(lumenerr.Value, "division by zero"))
			return
		}
		r = af / bf
	case bytecode.MOD:
		if bf == 0 {
			vm.raise(f, lumenErrValue(lumenerr.Value, "division by zero"))
			return
		}
		r = af - bf*float64(int64(af/bf))
	}
	fr.Push(&object.NewFloat(r).Header)
}

func (vm *Interpreter) execCompare(f *fiber.Fiber, fr *fiber.Frame, mode bytecode.CompareMode) {
	b, a := fr.Pop(), fr.Pop()

	if mode == bytecode.CmpEQ {
		fr.Push(boolValue(numericOrStructuralEqual(a, b)))
		return
	}
	if mode == bytecode.CmpNE {
		fr.Push(boolValue(!numericOrStructuralEqual(a, b)))
		return
	}

	af, _, aNum := numOf(a)
	bf, _, bNum := numOf(b)
	if aNum && bNum {
		fr.Push(boolValue(compareFloats(af, bf, mode)))
		return
	}
	as, aok := object.AsStr(a)
	bs, bok := object.AsStr(b)
	if aok && bok {
		fr.Push(boolValue(compareStrings(as.Val, bs.Val, mode)))
		return
	}
	vm.raise(f, typeErrorValue("unorderable types in comparison"))
}

func numericOrStructuralEqual(a, b object.Value) bool {
	af, _, aNum := numOf(a)
	bf, _, bNum := numOf(b)
	if aNum && bNum {
		return af == bf
	}
	return object.Equal(a, b)
}

func compareFloats(a, b float64, mode bytecode.CompareMode) bool {
	switch mode {
	case bytecode.CmpLT:
		return a < b
	case bytecode.CmpLE:
		return a <= b
	case bytecode.CmpGT:
		return a > b
	case bytecode.CmpGE:
		return a >= b
	}
	return false
}

func compareStrings(a, b string, mode bytecode.CompareMode) bool {
	switch mode {
	case bytecode.CmpLT:
		return a < b
	case bytecode.CmpLE:
		return a <= b
	case bytecode.CmpGT:
		return a > b
	case bytecode.CmpGE:
		return a >= b
	}
	return false
}

func boolValue(v bool) object.Value { return &object.FromBool(v).Header }

func (vm *Interpreter) execLogical(f *fiber.Fiber, fr *fiber.Frame, op bytecode.OpCode) {
	switch op {
	case bytecode.NOT:
		v := fr.Pop()
		fr.Push(boolValue(!object.Truthy(v)))
	case bytecode.NEG:
		v := fr.Pop()
		if i, ok := object.AsInt(v); ok {
			fr.Push(&object.NewInt(-i.Val).Header)
			return
		}
		if fl, ok := object.AsFloat(v); ok {
			fr.Push(&object.NewFloat(-fl.Val).Header)
			return
		}
		vm.raise(f, typeErrorValue("unary - requires a number"))
	case bytecode.POS:
		v := fr.Pop()
		if _, _, ok := numOf(v); ok {
			fr.Push(v)
			return
		}
		vm.raise(f, typeErrorValue("unary + requires a number"))
	case bytecode.INV:
		v := fr.Pop()
		i, ok := object.AsInt(v)
		if !ok {
			vm.raise(f, typeErrorValue("~ requires an Int"))
			return
		}
		fr.Push(&object.NewInt(^i.Val).Header)
	case bytecode.LAND, bytecode.LOR, bytecode.LXOR:
		b, a := fr.Pop(), fr.Pop()
		ai, aok := object.AsInt(a)
		bi, bok := object.AsInt(b)
		if !aok || !bok {
			vm.raise(f, typeErrorValue("bitwise operands must be Int"))
			return
		}
		var r int64
		switch op {
		case bytecode.LAND:
			r = ai.Val & bi.Val
		case bytecode.LOR:
			r = ai.Val | bi.Val
		case bytecode.LXOR:
			r = ai.Val ^ bi.Val
		}
		fr.Push(&object.NewInt(r).Header)
	}
}

func typeErrorValue(msg string) object.Value { return lumenErrValue(lumenerr.Type, msg) }

func lumenErrValue(kind lumenerr.Kind, msg string) object.Value {
	return &object.NewStr(lumenerr.New(kind, msg).Error()).Header
}
