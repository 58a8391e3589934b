package input

// wheelDelta is one detent of a standard mouse wheel.
const wheelDelta = 120

// wheelAccumulator turns raw wheel deltas into whole detents. High resolution
// wheels and touchpads report fractions of a detent, the remainder carries
// over to the next report.
type wheelAccumulator struct {
	rem int
}

// add returns the whole detents completed by delta, or 0 if none yet.
// Reversing direction drops the pending remainder.
func (w *wheelAccumulator) add(delta int) int {
	if (delta > 0 && w.rem < 0) || (delta < 0 && w.rem > 0) {
		w.rem = 0
	}
	w.rem += delta
	steps := w.rem / wheelDelta
	w.rem -= steps * wheelDelta
	return steps
}
