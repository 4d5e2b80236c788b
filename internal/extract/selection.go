package extract

type mode int

const (
	modeDefault mode = iota
	modeAt
	modeSlice
)

// Selection says which of the trimmed, non-blank matches SingleText returns.
// Build one with Default, Pos, At, Range, From, To or Join; exactly one mode
// applies per call.
type Selection struct {
	mode  mode
	index int

	from, to       int
	hasFrom, hasTo bool

	join bool
	sep  string
}

// Default returns the first match, or no value.
func Default() Selection {
	return Selection{}
}

// Pos returns match p (negative counts from the end). Out of range is no
// value, never an error.
func Pos(p int) Selection {
	return Selection{index: p}
}

// At returns match i (negative counts from the end). Out of range fails with
// an IndexFault.
func At(i int) Selection {
	return Selection{mode: modeAt, index: i}
}

// Range keeps matches [from:to). Bounds clamp to the list and negative bounds
// count from the end.
func Range(from, to int) Selection {
	return Selection{mode: modeSlice, from: from, to: to, hasFrom: true, hasTo: true}
}

// From keeps matches [from:].
func From(from int) Selection {
	return Selection{mode: modeSlice, from: from, hasFrom: true}
}

// To keeps matches [:to).
func To(to int) Selection {
	return Selection{mode: modeSlice, to: to, hasTo: true}
}

// Join concatenates every match with sep.
func Join(sep string) Selection {
	return Selection{join: true, sep: sep}
}

// Join concatenates the sliced matches with sep. It has no effect on At.
func (s Selection) Join(sep string) Selection {
	if s.mode == modeAt {
		return s
	}
	s.join, s.sep = true, sep
	return s
}

// Pos picks match p leniently from the sliced matches.
func (s Selection) Pos(p int) Selection {
	if s.mode == modeAt {
		return s
	}
	s.index, s.join = p, false
	return s
}

// bounds resolves the slice against n elements.
func (s Selection) bounds(n int) (lo, hi int) {
	lo, hi = 0, n
	if s.hasFrom {
		lo = clampIndex(s.from, n)
	}
	if s.hasTo {
		hi = clampIndex(s.to, n)
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func clampIndex(i, n int) int {
	if i < 0 {
		i += n
		if i < 0 {
			return 0
		}
	}
	if i > n {
		return n
	}
	return i
}

// resolveIndex maps a possibly negative index to [0,n).
func resolveIndex(i, n int) (int, bool) {
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return 0, false
	}
	return i, true
}
