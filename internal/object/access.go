package object

// The AsXxx helpers are the exported, type-checked counterparts to the
// package-private asXxx reinterpretation casts: every caller outside
// this package that needs a concrete value back from a Value must go
// through one of these so a mismatched TypeDescriptor fails as a typed
// "not this kind" result instead of silently reinterpreting the wrong
// struct layout.

func AsBool(v Value) (*Bool, bool) {
	if v == nil || v.Type != BoolType {
		return nil, false
	}
	return asBool(v), true
}

func AsInt(v Value) (*Int, bool) {
	if v == nil || v.Type != IntType {
		return nil, false
	}
	return asInt(v), true
}

func AsFloat(v Value) (*Float, bool) {
	if v == nil || v.Type != FloatType {
		return nil, false
	}
	return asFloat(v), true
}

func AsStr(v Value) (*Str, bool) {
	if v == nil || v.Type != StrType {
		return nil, false
	}
	return asStr(v), true
}

func AsList(v Value) (*List, bool) {
	if v == nil || v.Type != ListType {
		return nil, false
	}
	return asList(v), true
}

func AsTuple(v Value) (*Tuple, bool) {
	if v == nil || v.Type != TupleType {
		return nil, false
	}
	return asTuple(v), true
}

func AsDict(v Value) (*Dict, bool) {
	if v == nil || v.Type != DictType {
		return nil, false
	}
	return asDict(v), true
}

func AsSet(v Value) (*Set, bool) {
	if v == nil || v.Type != SetType {
		return nil, false
	}
	return asSet(v), true
}

func AsFunction(v Value) (*Function, bool) {
	if v == nil || v.Type != FunctionType {
		return nil, false
	}
	return asFunction(v), true
}

func AsBound(v Value) (*Bound, bool) {
	if v == nil || v.Type != BoundType {
		return nil, false
	}
	return asBound(v), true
}

// AsStruct accepts any instance whose TypeDescriptor embeds a
// ClassDescriptor (i.e. every MKSTRUCT-produced type), not just one
// exact pointer, since each user-defined class installs its own
// *ClassDescriptor as the Header's Type.
func AsStruct(v Value) (*Struct, bool) {
	if v == nil {
		return nil, false
	}
	if _, ok := classOf(v.Type); !ok {
		return nil, false
	}
	return asStruct(v), true
}

// classOf recovers the ClassDescriptor backing t, when t is one.
// It reads the TypeDescriptor's class back-link; a descriptor with no
// back-link reports false.
func classOf(t *TypeDescriptor) (*ClassDescriptor, bool) {
	if t == nil || t.class == nil {
		return nil, false
	}
	return t.class, true
}

// AsClassDescriptor recovers a ClassDescriptor from either a class value
// itself (the result of MKSTRUCT/MKTRAIT, or a name bound to one by
// STGBL/STLC) or from an instance of one, for opcodes that need the
// class rather than an instance (LDMETH resolving a method, CALL
// recognising a class value as a constructor).
func AsClassDescriptor(v Value) (*ClassDescriptor, bool) {
	if v == nil {
		return nil, false
	}
	if v.Type == ClassDescriptorType {
		return asClassDescriptor(v), true
	}
	s, ok := AsStruct(v)
	if !ok {
		return nil, false
	}
	return s.Class, true
}

// Truthy implements the language's boolean-coercion rule used by every
// conditional-jump opcode: Nil and false are falsy, the numeric zero
// values and empty containers are falsy, everything else is truthy.
func Truthy(v Value) bool {
	if v == nil || v == Nil {
		return false
	}
	switch v.Type {
	case BoolType:
		return asBool(v).Val
	case IntType:
		return asInt(v).Val != 0
	case FloatType:
		return asFloat(v).Val != 0
	case StrType:
		return asStr(v).Val != ""
	case ListType:
		return len(asList(v).Items) != 0
	case TupleType:
		return len(asTuple(v).Items) != 0
	case DictType:
		return asDict(v).Len() != 0
	case SetType:
		return asSet(v).Len() != 0
	default:
		return true
	}
}
