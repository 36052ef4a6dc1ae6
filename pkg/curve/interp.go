package curve

import "sort"

// Interp linearly interpolates fp at x over the grid xp, which must be in
// increasing order. Outside the grid the first or last segment is extended,
// so resampled curves keep their slope beyond the sampled range instead of
// flattening at the end points.
func Interp(x float64, xp, fp []float64) float64 {
	n := len(xp)
	if n == 1 {
		return fp[0]
	}

	switch {
	case x <= xp[0]:
		return extend(x, xp[0], xp[1], fp[0], fp[1])
	case x >= xp[n-1]:
		return extend(x, xp[n-2], xp[n-1], fp[n-2], fp[n-1])
	}

	// xp[k-1] <= x < xp[k]
	k := sort.SearchFloat64s(xp, x)
	if xp[k] == x {
		return fp[k]
	}
	return extend(x, xp[k-1], xp[k], fp[k-1], fp[k])
}

func extend(x, x0, x1, f0, f1 float64) float64 {
	if x1 == x0 {
		return f0
	}
	return f0 + (x-x0)*(f1-f0)/(x1-x0)
}

// interpInto evaluates Interp for every sample of xs and adds the results to
// dst. Used by the combiners to accumulate voltage or current contributions.
func interpInto(dst, xs, xp, fp []float64) {
	for k, x := range xs {
		dst[k] += Interp(x, xp, fp)
	}
}

// reversed returns a copy of a in reverse order.
func reversed(a []float64) []float64 {
	out := make([]float64, len(a))
	for k, v := range a {
		out[len(a)-1-k] = v
	}
	return out
}
