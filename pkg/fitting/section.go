package fitting

import "math"

// diameterEpsilon is how close two diameters must be to count as one size.
const diameterEpsilon = 1e-9

// Section is a maximal run of same-size straight segments joined end to end
// with no junction between them. Pressure queries along a run can be batched
// per section.
type Section struct {
	Segments []*StraightSegment // trunk side first
}

// Diameter returns the common diameter of the section's segments.
func (s Section) Diameter() float64 {
	if len(s.Segments) == 0 {
		return 0
	}
	return s.Segments[0].Diameter()
}

// Length returns the total length of the section.
func (s Section) Length() float64 {
	var l float64
	for _, seg := range s.Segments {
		l += seg.Length
	}
	return l
}

// Sections groups the tree's straight segments into sections, in insertion
// order of each section's first segment. Every segment belongs to exactly
// one section.
func (t *Tree) Sections() []Section {
	var out []Section
	for _, seg := range All[*StraightSegment](t) {
		if t.continuesRun(seg) {
			continue
		}
		sec := Section{Segments: []*StraightSegment{seg}}
		for cur := seg; ; {
			next, ok := t.nextInRun(cur)
			if !ok {
				break
			}
			sec.Segments = append(sec.Segments, next)
			cur = next
		}
		out = append(out, sec)
	}
	return out
}

// continuesRun reports whether seg extends the section of its upstream neighbor.
func (t *Tree) continuesRun(seg *StraightSegment) bool {
	up, ok := t.TrunkSideComponent(seg.ID)
	if !ok {
		return false
	}
	prev, ok := up.(*StraightSegment)
	if !ok {
		return false
	}
	next, ok := t.nextInRun(prev)
	return ok && next == seg
}

// nextInRun returns the single same-size segment fed by seg, if there is one.
func (t *Tree) nextInRun(seg *StraightSegment) (*StraightSegment, bool) {
	links := t.downstream[seg.ID]
	if len(links) != 1 {
		return nil, false
	}
	next, ok := t.components[links[0].Component].(*StraightSegment)
	if !ok || math.Abs(next.Diameter()-seg.Diameter()) > diameterEpsilon {
		return nil, false
	}
	return next, true
}
