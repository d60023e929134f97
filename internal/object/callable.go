package object

import (
	"unsafe"

	"github.com/lumen-lang/lumen/internal/bytecode"
)

func asFunction(h *Header) *Function               { return (*Function)(unsafe.Pointer(h)) }
func asBound(h *Header) *Bound                     { return (*Bound)(unsafe.Pointer(h)) }
func asStruct(h *Header) *Struct                   { return (*Struct)(unsafe.Pointer(h)) }
func asSet(h *Header) *Set                         { return (*Set)(unsafe.Pointer(h)) }
func asClassDescriptor(h *Header) *ClassDescriptor { return (*ClassDescriptor)(unsafe.Pointer(h)) }

// Function is a compiled closure: a Code object plus the captured
// free-variable slots its Enclosed tuple names (MKFN).
type Function struct {
	Header
	Code     *bytecode.Code
	Enclosed []Value

	// Gen is non-nil only for functions whose Code.IsGenerator is set;
	// it is allocated lazily on first call (execCall) rather than here,
	// since most Functions never generate.
	Gen *GeneratorState
}

func NewFunction(code *bytecode.Code, enclosed []Value) *Function {
	f := &Function{Code: code, Enclosed: enclosed}
	f.Init(FunctionType)
	f.MarkTracked()
	return f
}

var FunctionType = &TypeDescriptor{
	Name: "Function",
	Tracer: func(o *Header, visit func(*Header)) {
		for _, v := range asFunction(o).Enclosed {
			if v != nil {
				visit(v)
			}
		}
	},
	Repr: func(o *Header) string { return "<function " + asFunction(o).Code.QualName + ">" },
}

// Bound pairs a receiver with a callable (method value), produced by
// MKBND and invoked by CALL when the callee resolves through LDMETH.
type Bound struct {
	Header
	Receiver Value
	Callee   Value
}

func NewBound(receiver, callee Value) *Bound {
	b := &Bound{Receiver: receiver, Callee: callee}
	b.Init(BoundType)
	b.MarkTracked()
	return b
}

var BoundType = &TypeDescriptor{
	Name: "Bound",
	Tracer: func(o *Header, visit func(*Header)) {
		b := asBound(o)
		if b.Receiver != nil {
			visit(b.Receiver)
		}
		if b.Callee != nil {
			visit(b.Callee)
		}
	},
	Repr: func(o *Header) string { return "<bound method>" },
}

// ClassDescriptor is a user-defined type built by MKSTRUCT/MKTRAIT. It
// plays two roles at once, each through a different embedded struct:
// as a first-class runtime Value in its own right (the thing a `class`
// statement evaluates to, bindable via STGBL like any other value) it
// carries its own Header; as the type every instance of it points to
// from their own Header.Type, it carries the embedded TypeDescriptor
// instances dispatch repr/hash/eq/tracer through.
type ClassDescriptor struct {
	Header
	TypeDescriptor
	Methods    map[string]Value
	IsTrait    bool
	Required   []string // trait-only: method names a conforming struct must define
	Traits     []*ClassDescriptor
	FieldNames []string // declared field order, for positional MKSTRUCT construction
}

var ClassDescriptorType = &TypeDescriptor{
	Name: "Class",
	Tracer: func(o *Header, visit func(*Header)) {
		c := asClassDescriptor(o)
		for _, v := range c.Methods {
			if v != nil {
				visit(v)
			}
		}
		for _, t := range c.Traits {
			visit(&t.Header)
		}
	},
	Repr: func(o *Header) string { return "<class " + asClassDescriptor(o).Name + ">" },
}

// Struct is an instance of a user-defined MKSTRUCT type.
type Struct struct {
	Header
	Class  *ClassDescriptor
	Fields map[string]Value
}

func NewStruct(class *ClassDescriptor, fields map[string]Value) *Struct {
	s := &Struct{Class: class, Fields: fields}
	s.Init(&class.TypeDescriptor)
	s.MarkTracked()
	return s
}

// LookupMethod resolves name on s's class, the way LDMETH does (spec
// §4.11): own class first, then each composed trait in declaration
// order.
func (s *Struct) LookupMethod(name string) (Value, bool) {
	return s.Class.lookupMethod(name)
}

func (c *ClassDescriptor) lookupMethod(name string) (Value, bool) {
	if v, ok := c.Methods[name]; ok {
		return v, true
	}
	for _, t := range c.Traits {
		if v, ok := t.lookupMethod(name); ok {
			return v, true
		}
	}
	return nil, false
}

func structTracer(o *Header, visit func(*Header)) {
	for _, v := range asStruct(o).Fields {
		if v != nil {
			visit(v)
		}
	}
}

func structRepr(o *Header) string {
	return "<" + asStruct(o).Class.Name + " instance>"
}

// NewClassDescriptor builds the TypeDescriptor a MKSTRUCT/MKTRAIT
// instruction installs for a freshly declared class; repr/tracer are
// wired uniformly across every struct instance, matching spec §3's
// "all table-driven via the type descriptor."
func NewClassDescriptor(name string, isTrait bool) *ClassDescriptor {
	c := &ClassDescriptor{Methods: make(map[string]Value), IsTrait: isTrait}
	c.Header.Init(ClassDescriptorType)
	c.TypeDescriptor.Name = name
	c.TypeDescriptor.Tracer = structTracer
	c.TypeDescriptor.Repr = structRepr
	c.TypeDescriptor.Eq = func(a, b *Header) bool { return a == b }
	c.TypeDescriptor.class = c
	return c
}

// Set is Lumen's hash-bucketed unique-element container (MKST), sharing
// Dict's bucketing strategy but storing only keys.
type Set struct {
	Header
	buckets map[uint64][]Value
	size    int
}

func NewSet() *Set {
	s := &Set{buckets: make(map[uint64][]Value)}
	s.Init(SetType)
	s.MarkTracked()
	return s
}

func (s *Set) Add(v Value) bool {
	h := v.Hash()
	for _, e := range s.buckets[h] {
		if Equal(e, v) {
			return false
		}
	}
	s.buckets[h] = append(s.buckets[h], v)
	s.size++
	return true
}

func (s *Set) Has(v Value) bool {
	for _, e := range s.buckets[v.Hash()] {
		if Equal(e, v) {
			return true
		}
	}
	return false
}

func (s *Set) Len() int { return s.size }

// Each visits every element; iteration order is unspecified.
func (s *Set) Each(fn func(Value)) {
	for _, bucket := range s.buckets {
		for _, v := range bucket {
			fn(v)
		}
	}
}

var SetType = &TypeDescriptor{
	Name: "Set",
	Tracer: func(o *Header, visit func(*Header)) {
		for _, bucket := range asSet(o).buckets {
			for _, v := range bucket {
				visit(v)
			}
		}
	},
	Repr: func(o *Header) string {
		s := asSet(o)
		items := make([]Value, 0, s.size)
		for _, bucket := range s.buckets {
			items = append(items, bucket...)
		}
		return reprSeq("{", "}", items)
	},
}
