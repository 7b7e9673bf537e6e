package opt

// PrioritizeUrgent moves URGENT stops to the front, keeping the relative order
// within both groups. This can lengthen the tour.
func PrioritizeUrgent(t Tour) Tour {
	out := make(Tour, 0, len(t))
	for _, s := range t {
		if s.Priority == PriorityUrgent {
			out = append(out, s)
		}
	}
	for _, s := range t {
		if s.Priority != PriorityUrgent {
			out = append(out, s)
		}
	}
	return out
}
