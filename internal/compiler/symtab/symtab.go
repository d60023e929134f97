// Package symtab implements spec component C9: the symbol table tree and
// the translation unit that owns it, statics pool, names lists and the
// paired stack-depth counters.
package symtab

import "fmt"

// Kind classifies a symbol without requiring a concrete type name (spec
// §4.9): constant, module, struct, trait, variable, nested (anonymous),
// or unknown.
type Kind int

const (
	Unknown Kind = iota
	Constant
	Module
	Struct
	Trait
	Variable
	Nested
)

// Symbol is one entry in a symbol table. A function's locals get their
// own child table; a block scope pushes a table onto the nested stack.
type Symbol struct {
	Name  string
	Kind  Kind
	Index int // slot in locals/globals/statics, assigned at declaration

	Child *Table // owned child table, e.g. a function's locals
}

// Table is a tree node: declarations live in Entries; Nested holds the
// stack of block-scope tables layered over this one. Lookup walks the
// nested stack first, then the enclosing chain (spec §4.9).
type Table struct {
	Parent  *Table
	Entries map[string]*Symbol
	Nested  []*Table
}

func NewTable(parent *Table) *Table {
	return &Table{Parent: parent, Entries: map[string]*Symbol{}}
}

// PushScope opens a new block-scope table nested inside t.
func (t *Table) PushScope() *Table {
	child := NewTable(t)
	t.Nested = append(t.Nested, child)
	return child
}

// PopScope closes the innermost nested scope and returns to t.
func (t *Table) PopScope() *Table {
	if n := len(t.Nested); n > 0 {
		t.Nested = t.Nested[:n-1]
	}
	return t
}

// Declare adds name with kind to the innermost scope of t (t itself, if
// no nested scope is open). Redeclaring an existing symbol under a
// different Kind is a compile-time error (spec §4.9).
func (t *Table) Declare(name string, kind Kind) (*Symbol, error) {
	scope := t.innermost()
	if existing, ok := scope.Entries[name]; ok {
		if existing.Kind != kind {
			return nil, fmt.Errorf("redeclaration of %q as %v, previously declared as %v", name, kind, existing.Kind)
		}
		return existing, nil
	}
	sym := &Symbol{Name: name, Kind: kind, Index: len(scope.Entries)}
	scope.Entries[name] = sym
	return sym, nil
}

func (t *Table) innermost() *Table {
	if len(t.Nested) == 0 {
		return t
	}
	return t.Nested[len(t.Nested)-1]
}

// Lookup walks the nested stack innermost-first, then the enclosing
// chain, per spec §4.9.
func (t *Table) Lookup(name string) (*Symbol, *Table, bool) {
	for i := len(t.Nested) - 1; i >= 0; i-- {
		if sym, ok := t.Nested[i].Entries[name]; ok {
			return sym, t.Nested[i], true
		}
	}
	if sym, ok := t.Entries[name]; ok {
		return sym, t, true
	}
	if t.Parent != nil {
		return t.Parent.Lookup(name)
	}
	return nil, nil, false
}

// DepthCounter tracks a {current, required} pair where incrementing
// current auto-updates required to the running peak (spec §4.9: "paired
// counters for evaluation stack, locals, and sync-block depth").
type DepthCounter struct {
	current  int
	required int
}

func (c *DepthCounter) Add(n int) {
	c.current += n
	if c.current > c.required {
		c.required = c.current
	}
}

func (c *DepthCounter) Current() int  { return c.current }
func (c *DepthCounter) Required() int { return c.required }

// TranslationUnit owns everything the compiler accumulates while lowering
// one function/module body (spec §4.9).
type TranslationUnit struct {
	Parent *TranslationUnit

	Symbols *Table

	Statics      []interface{}
	staticsUsage map[int]int // usage counts per static slot, for dead-static elimination

	Names    []string // globals
	Locals   []string // parameters
	Enclosed []string // free variables captured from an enclosing unit

	EvalStack DepthCounter
	Locals2   DepthCounter
	SyncDepth DepthCounter
}

func NewTranslationUnit(parent *TranslationUnit) *TranslationUnit {
	var enclosing *Table
	if parent != nil {
		enclosing = parent.Symbols
	}
	return &TranslationUnit{
		Parent:       parent,
		Symbols:      NewTable(enclosing),
		staticsUsage: map[int]int{},
	}
}

// AddStatic interns value into the statics pool, returning its slot.
func (tu *TranslationUnit) AddStatic(value interface{}) int {
	for i, v := range tu.Statics {
		if v == value {
			tu.staticsUsage[i]++
			return i
		}
	}
	idx := len(tu.Statics)
	tu.Statics = append(tu.Statics, value)
	tu.staticsUsage[idx] = 1
	return idx
}

// DeadStatics returns slots with zero recorded uses, candidates for
// elimination at assembly time.
func (tu *TranslationUnit) DeadStatics() []int {
	var dead []int
	for i := range tu.Statics {
		if tu.staticsUsage[i] == 0 {
			dead = append(dead, i)
		}
	}
	return dead
}

// ResolveFree looks up name starting from tu's own table; if found only
// in an ancestor translation unit (not tu's own chain), it is a free
// variable: record it on tu's Enclosed list and return its capture index
// (spec §4.9: "Free variables ... recorded on the inner unit's enclosed
// list").
func (tu *TranslationUnit) ResolveFree(name string) (capIndex int, isFree bool) {
	// Only tu's own table and its open block scopes count as "own";
	// tu.Symbols.Lookup would also walk Parent into every ancestor unit.
	own := tu.Symbols
	for i := len(own.Nested) - 1; i >= 0; i-- {
		if _, ok := own.Nested[i].Entries[name]; ok {
			return 0, false
		}
	}
	if _, ok := own.Entries[name]; ok {
		return 0, false
	}
	for p := tu.Parent; p != nil; p = p.Parent {
		if _, _, ok := p.Symbols.Lookup(name); ok {
			for i, n := range tu.Enclosed {
				if n == name {
					return i, true
				}
			}
			tu.Enclosed = append(tu.Enclosed, name)
			return len(tu.Enclosed) - 1, true
		}
	}
	return 0, false
}
