package tensor

import (
	"fmt"
	"strconv"
	"strings"
)

// QueryItem is one element of an index query: Index, Slice or Ellipsis.
type QueryItem interface {
	fmt.Stringer
	isQueryItem()
}

// Index selects one position along an axis and drops that axis.
// Negative values count from the end.
type Index int

// Slice selects start:stop:step along an axis and keeps it.
// Unset bounds default as in Python slicing.
type Slice struct {
	Start, Stop       int
	HasStart, HasStop bool
	Step              int // 0 means 1
}

// Ellipsis expands to as many full slices as needed.
type Ellipsis struct{}

func (Index) isQueryItem()    {}
func (Slice) isQueryItem()    {}
func (Ellipsis) isQueryItem() {}

func (i Index) String() string { return strconv.Itoa(int(i)) }

func (s Slice) String() string {
	var b strings.Builder
	if s.HasStart {
		b.WriteString(strconv.Itoa(s.Start))
	}
	b.WriteByte(':')
	if s.HasStop {
		b.WriteString(strconv.Itoa(s.Stop))
	}
	if s.Step != 0 && s.Step != 1 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.Step))
	}
	return b.String()
}

func (Ellipsis) String() string { return "..." }

// All selects a whole axis.
func All() Slice { return Slice{} }

// Range selects [start, stop) along an axis.
func Range(start, stop int) Slice {
	return Slice{Start: start, Stop: stop, HasStart: true, HasStop: true}
}

// RangeStep selects start:stop:step along an axis.
func RangeStep(start, stop, step int) Slice {
	return Slice{Start: start, Stop: stop, HasStart: true, HasStop: true, Step: step}
}

// Query is an ordered list of per-axis selections.
type Query []QueryItem

// String renders the query in the form accepted by ParseQuery.
func (q Query) String() string {
	parts := make([]string, len(q))
	for i, item := range q {
		parts[i] = item.String()
	}
	return strings.Join(parts, ",")
}

// ParseQuery parses a comma separated query such as "0:2, 1, ..., ::-1".
func ParseQuery(s string) (Query, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Query{}, nil
	}
	var q Query
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "...":
			q = append(q, Ellipsis{})
		case strings.Contains(part, ":"):
			sl, err := parseSlice(part)
			if err != nil {
				return nil, err
			}
			q = append(q, sl)
		default:
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidQuery, part)
			}
			q = append(q, Index(n))
		}
	}
	return q, nil
}

func parseSlice(part string) (Slice, error) {
	fields := strings.Split(part, ":")
	if len(fields) > 3 {
		return Slice{}, fmt.Errorf("%w: %q", ErrInvalidQuery, part)
	}
	var sl Slice
	for i, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return Slice{}, fmt.Errorf("%w: %q", ErrInvalidQuery, part)
		}
		switch i {
		case 0:
			sl.Start, sl.HasStart = n, true
		case 1:
			sl.Stop, sl.HasStop = n, true
		case 2:
			if n == 0 {
				return Slice{}, fmt.Errorf("%w: slice step cannot be zero", ErrInvalidQuery)
			}
			sl.Step = n
		}
	}
	return sl, nil
}

// axisSel is a resolved selection along one input axis.
type axisSel struct {
	positions []int
	keep      bool
}

// Resolve applies q to shape. It returns the selected region's shape and
// the flat row-major indices into shape of every selected element, in
// row-major order of the region.
func (q Query) Resolve(shape Shape) (Shape, []int, error) {
	sels, err := q.expand(shape)
	if err != nil {
		return nil, nil, err
	}

	var out Shape
	for _, sel := range sels {
		if sel.keep {
			out = append(out, len(sel.positions))
		}
	}
	if out == nil {
		out = Shape{}
	}

	strides := shape.ComputeStrides()
	indices := make([]int, 0, out.NumElements())
	if out.NumElements() == 0 {
		return out, indices, nil
	}
	counters := make([]int, len(sels))
	for {
		flat := 0
		for d, sel := range sels {
			flat += sel.positions[counters[d]] * strides[d]
		}
		indices = append(indices, flat)

		d := len(sels) - 1
		for ; d >= 0; d-- {
			counters[d]++
			if counters[d] < len(sels[d].positions) {
				break
			}
			counters[d] = 0
		}
		if d < 0 {
			return out, indices, nil
		}
	}
}

func (q Query) expand(shape Shape) ([]axisSel, error) {
	ellipses := 0
	for _, item := range q {
		if _, ok := item.(Ellipsis); ok {
			ellipses++
		}
	}
	if ellipses > 1 {
		return nil, fmt.Errorf("%w: more than one ellipsis", ErrInvalidQuery)
	}
	explicit := len(q) - ellipses
	if explicit > len(shape) {
		return nil, fmt.Errorf("%w: %d indices for %dD tensor", ErrInvalidQuery, explicit, len(shape))
	}

	items := make([]QueryItem, 0, len(shape))
	for _, item := range q {
		if _, ok := item.(Ellipsis); ok {
			for i := 0; i < len(shape)-explicit; i++ {
				items = append(items, All())
			}
			continue
		}
		items = append(items, item)
	}
	for len(items) < len(shape) {
		items = append(items, All())
	}

	sels := make([]axisSel, len(shape))
	for d, item := range items {
		dim := shape[d]
		switch it := item.(type) {
		case Index:
			i := int(it)
			if i < 0 {
				i += dim
			}
			if i < 0 || i >= dim {
				return nil, fmt.Errorf("%w: index %d out of range for axis %d with size %d", ErrInvalidQuery, int(it), d, dim)
			}
			sels[d] = axisSel{positions: []int{i}}
		case Slice:
			sels[d] = axisSel{positions: it.positions(dim), keep: true}
		default:
			return nil, fmt.Errorf("%w: unsupported item %v", ErrInvalidQuery, item)
		}
	}
	return sels, nil
}

// positions returns the indices selected along an axis of size dim.
func (s Slice) positions(dim int) []int {
	step := s.Step
	if step == 0 {
		step = 1
	}
	clamp := func(v, lo, hi int) int {
		if v < 0 {
			v += dim
		}
		return min(max(v, lo), hi)
	}

	var start, stop int
	if step > 0 {
		start, stop = 0, dim
		if s.HasStart {
			start = clamp(s.Start, 0, dim)
		}
		if s.HasStop {
			stop = clamp(s.Stop, 0, dim)
		}
	} else {
		start, stop = dim-1, -1
		if s.HasStart {
			start = clamp(s.Start, -1, dim-1)
		}
		if s.HasStop {
			stop = clamp(s.Stop, -1, dim-1)
		}
	}

	var out []int
	for i := start; (step > 0 && i < stop) || (step < 0 && i > stop); i += step {
		out = append(out, i)
	}
	return out
}
