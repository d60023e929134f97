package object

import (
	"hash/fnv"
	"math"
	"strconv"
	"strings"
)

func formatInt(v int64) string { return strconv.FormatInt(v, 10) }

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func floatBits(v float64) uint64 { return math.Float64bits(v) }

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// reprSeq renders a bracketed, comma-separated sequence, guarding
// against self-referential containers via the running fiber's
// reentrancy tracking is the caller's responsibility (internal/vm);
// this helper only handles the nil-element case defensively since a
// slot may be unset on a partially constructed container.
func reprSeq(open, shut string, items []Value) string {
	var b strings.Builder
	b.WriteString(open)
	for i, v := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if v == nil {
			b.WriteString("nil")
			continue
		}
		b.WriteString(v.Repr())
	}
	b.WriteString(shut)
	return b.String()
}

func dictRepr(d *Dict) string {
	var b strings.Builder
	b.WriteString("{")
	first := true
	for _, bucket := range d.buckets {
		for _, e := range bucket {
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(e.key.Repr())
			b.WriteString(": ")
			b.WriteString(e.val.Repr())
		}
	}
	b.WriteString("}")
	return b.String()
}
