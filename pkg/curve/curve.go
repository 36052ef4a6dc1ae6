package curve

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// NPTS is the default number of points per grid segment.
const NPTS = 101

// Curve is a sampled I-V characteristic. By convention voltage ascends from
// reverse breakdown to forward bias and current descends, so V can be used
// directly as an interpolation grid and I after reversal.
type Curve struct {
	I []float64 // Current samples (A)
	V []float64 // Voltage samples (V)
}

// Power returns the elementwise I*V product.
func (c Curve) Power() []float64 {
	p := make([]float64, len(c.I))
	floats.MulTo(p, c.I, c.V)
	return p
}

// Isc returns the current at zero voltage by interpolation.
func (c Curve) Isc() float64 {
	return Interp(0, c.V, c.I)
}

// Voc returns the voltage at zero current by interpolation.
func (c Curve) Voc() float64 {
	return Interp(0, reversed(c.I), reversed(c.V))
}

// Sampler owns the point grids shared by the cell solver and the combiners.
// Point density is concentrated where curves bend: near the open-circuit
// voltage on voltage grids and near the short-circuit current on current
// grids.
type Sampler struct {
	Npts   int       // Points per grid segment
	Fwd    []float64 // 0..1 ascending, dense near 1
	Rev    []float64 // 1..~0 descending, never exactly zero
	ModFwd []float64 // 0..1 ascending, dense near 0
	ModNeg []float64 // ~1..~0 descending, strictly positive
}

// NewSampler builds the grids for npts points per segment. npts < 2 falls
// back to the default.
func NewSampler(npts int) *Sampler {
	if npts < 2 {
		npts = NPTS
	}
	s := &Sampler{
		Npts:   npts,
		Fwd:    make([]float64, npts),
		Rev:    make([]float64, npts),
		ModFwd: make([]float64, npts),
		ModNeg: make([]float64, npts),
	}

	// Log-spaced fractions of the interval: stepping 11^x from 11 down to 1
	// clusters points at the far end once mapped through (11-y)/10.
	span := float64(npts - 1)
	const base = 11.0
	const negBase = base - 1e-10 // keeps the reverse grid off exact zero
	for k := 0; k < npts; k++ {
		f := 1 - float64(k)/span
		s.Fwd[k] = (base - math.Pow(base, f)) / 10
		s.Rev[npts-1-k] = (base - math.Pow(negBase, f)) / 10
	}
	s.Fwd[0] = 0

	shift := 1 / float64(npts) / 10
	for k := 0; k < npts; k++ {
		s.ModFwd[k] = 1 - s.Fwd[npts-1-k]
		s.ModNeg[k] = 1 + shift - s.Rev[npts-1-k]
	}
	return s
}

func checkCurves(curves []Curve) error {
	if len(curves) == 0 {
		return fmt.Errorf("no curves to combine")
	}
	for k, c := range curves {
		if len(c.I) != len(c.V) {
			return fmt.Errorf("curve %d: current and voltage sample lengths differ (%d != %d)",
				k, len(c.I), len(c.V))
		}
		if len(c.I) < 2 {
			return fmt.Errorf("curve %d: needs at least 2 samples, got %d", k, len(c.I))
		}
	}
	return nil
}

// CombineSeries combines curves connected in series: voltages are resampled
// at matched currents on a common grid and summed. meanIsc places the grid
// density near the short-circuit knee, imax bounds the grid's upper end
// (the current reached at the weakest cell's reverse breakdown).
func (s *Sampler) CombineSeries(curves []Curve, meanIsc, imax float64) (Curve, error) {
	if err := checkCurves(curves); err != nil {
		return Curve{}, err
	}

	// Most negative current across all curves, at most zero; spans the
	// fourth-quadrant segment of the common grid.
	imin := 0.0
	for _, c := range curves {
		imin = math.Min(imin, floats.Min(c.I))
	}

	n := s.Npts
	itot := make([]float64, 3*n)
	for k := 0; k < n; k++ {
		itot[k] = imin * s.ModNeg[k]
		itot[n+k] = meanIsc * s.Fwd[k]
		itot[2*n+k] = (imax-meanIsc)*s.ModFwd[k] + meanIsc
	}

	vtot := make([]float64, 3*n)
	for _, c := range curves {
		// The interpolation grid must ascend; curves store current descending.
		interpInto(vtot, itot, reversed(c.I), reversed(c.V))
	}

	floats.Reverse(itot)
	floats.Reverse(vtot)
	return Curve{I: itot, V: vtot}, nil
}

// CombineParallel combines curves connected in parallel: currents are
// resampled at matched voltages on a common grid and summed. vmax and vmin
// bound the grid's forward and reverse ends.
func (s *Sampler) CombineParallel(curves []Curve, vmax, vmin float64) (Curve, error) {
	if err := checkCurves(curves); err != nil {
		return Curve{}, err
	}

	n := s.Npts
	vtot := make([]float64, 2*n)
	for k := 0; k < n; k++ {
		vtot[k] = vmin * s.Rev[k]
		vtot[n+k] = vmax * s.Fwd[k]
	}

	itot := make([]float64, 2*n)
	for _, c := range curves {
		interpInto(itot, vtot, c.V, c.I)
	}
	return Curve{I: itot, V: vtot}, nil
}
