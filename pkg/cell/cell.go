package cell

import (
	"fmt"
	"math"

	"pvmodel/internal/consts"
	"pvmodel/pkg/curve"
)

// eps replaces an exact zero in the breakdown fraction so the reverse
// conduction term stays finite at the breakdown voltage itself.
const eps = 2.220446049250313e-16

// Params holds the two-diode model parameters of a crystalline silicon cell.
type Params struct {
	Rs       float64 // Series resistance (ohm)
	Rsh      float64 // Shunt resistance (ohm)
	Isat1T0  float64 // First diode saturation current at T0 (A)
	Isat2T0  float64 // Second diode saturation current at T0 (A)
	Isc0T0   float64 // Short-circuit current at T0 and E0 (A)
	ARBD     float64 // Reverse breakdown coefficient, first term
	BRBD     float64 // Reverse breakdown coefficient, second term
	VRBD     float64 // Reverse breakdown voltage (V)
	NRBD     float64 // Reverse breakdown exponent
	Eg       float64 // Band gap (eV)
	AlphaIsc float64 // Isc temperature coefficient (1/K)
}

// DefaultParams returns the standard 156mm crystalline silicon cell.
func DefaultParams() Params {
	return Params{
		Rs:       4.267236774264931e-3,
		Rsh:      10.01226369025448,
		Isat1T0:  2.286188161253440e-11,
		Isat2T0:  1.117455042372326e-6,
		Isc0T0:   6.3056,
		ARBD:     1.036748445065697e-4,
		BRBD:     0,
		VRBD:     -5.527260068445654,
		NRBD:     3.284628553041425,
		Eg:       1.1,
		AlphaIsc: 0.0003551,
	}
}

// Cell is one solar cell at a fixed operating point. Instances are immutable
// once built; changing the irradiance goes through WithIrradiance, which
// returns a freshly computed cell and leaves the receiver untouched, so cells
// can be shared freely between module positions.
type Cell struct {
	params Params
	ee     float64 // Effective irradiance (suns)
	tcell  float64 // Cell temperature (K)

	isc    float64
	voc    float64
	vocSTC float64

	icell []float64
	vcell []float64

	smp *curve.Sampler
}

// New computes a cell operating at irradiance ee (suns) and temperature
// tcell (K), sampled on the grids of smp.
func New(p Params, ee, tcell float64, smp *curve.Sampler) (*Cell, error) {
	if ee <= 0 {
		return nil, fmt.Errorf("cell: irradiance must be positive, got %g", ee)
	}
	if tcell <= 0 {
		return nil, fmt.Errorf("cell: temperature must be positive, got %g", tcell)
	}
	if smp == nil {
		smp = curve.NewSampler(curve.NPTS)
	}

	c := &Cell{params: p, ee: ee, tcell: tcell, smp: smp}
	c.solve()
	return c, nil
}

// WithIrradiance returns a new cell recomputed at irradiance ee.
func (c *Cell) WithIrradiance(ee float64) (*Cell, error) {
	return New(c.params, ee, c.tcell, c.smp)
}

func (c *Cell) Params() Params      { return c.params }
func (c *Cell) Ee() float64         { return c.ee }
func (c *Cell) Tcell() float64      { return c.tcell }
func (c *Cell) Isc() float64        { return c.isc }
func (c *Cell) Voc() float64        { return c.voc }
func (c *Cell) VRBD() float64       { return c.params.VRBD }
func (c *Cell) Sampler() *curve.Sampler { return c.smp }

// IV returns the sampled I-V arrays, voltage ascending from reverse
// breakdown to forward bias. The slices are shared; callers must not modify
// them.
func (c *Cell) IV() (i, v []float64) { return c.icell, c.vcell }

// Curve returns the cell characteristic as a curve value.
func (c *Cell) Curve() curve.Curve { return curve.Curve{I: c.icell, V: c.vcell} }

// vt is the thermal voltage kT/q at the cell temperature.
func (c *Cell) vt() float64 {
	return consts.BOLTZMANN * c.tcell / consts.CHARGE
}

// isat1 adjusts the first diode saturation current to the cell temperature:
// Isat(T) = Isat(T0) * (T/T0)^3 * exp(Eg*q/k * (1/T0 - 1/T)).
func (c *Cell) isat1() float64 {
	tstar := math.Pow(c.tcell/consts.T0, 3)
	invDeltaT := 1/consts.T0 - 1/c.tcell
	return c.params.Isat1T0 * tstar *
		math.Exp(c.params.Eg*consts.CHARGE/consts.BOLTZMANN*invDeltaT)
}

// isat2 is the second (recombination) diode analog of isat1 with half the
// band gap activation.
func (c *Cell) isat2() float64 {
	tstar := math.Pow(c.tcell/consts.T0, 3)
	invDeltaT := 1/consts.T0 - 1/c.tcell
	return c.params.Isat2T0 * tstar *
		math.Exp(c.params.Eg*consts.CHARGE/(2*consts.BOLTZMANN)*invDeltaT)
}

// iscAt gives the short-circuit current at irradiance ee and the cell
// temperature.
func (c *Cell) iscAt(ee float64) float64 {
	isc0 := c.params.Isc0T0 * (1 + c.params.AlphaIsc*(c.tcell-consts.T0))
	return ee * isc0
}

// aph is the photocurrent coefficient: the generated current exceeds Isc by
// exactly the diode and shunt losses at the short-circuit point.
func (c *Cell) aph(isc float64) float64 {
	vdSC := isc * c.params.Rs
	vt := c.vt()
	id1 := c.isat1() * (math.Exp(vdSC/vt) - 1)
	id2 := c.isat2() * (math.Exp(vdSC/(2*vt)) - 1)
	ish := vdSC / c.params.Rsh
	return 1 + (id1+id2+ish)/isc
}

// vocAt solves the two-diode equation for zero terminal current in closed
// form (quadratic in exp(V/2Vt), shunt neglected).
func (c *Cell) vocAt(isc float64) float64 {
	isat1 := c.isat1()
	isat2 := c.isat2()
	cc := c.aph(isc)*isc + isat1 + isat2
	x := (-isat2 + math.Sqrt(isat2*isat2+4*isat1*cc)) / (2 * isat1)
	return c.vt() * math.Log(x*x)
}

// solve samples the full characteristic. The diode voltage grid spans three
// segments: reverse bias from the breakdown voltage up, forward bias to the
// flat-top voltage, and a fourth-quadrant extension past open circuit so
// mismatched cells can be driven to negative current when combined.
func (c *Cell) solve() {
	c.isc = c.iscAt(c.ee)
	c.voc = c.vocAt(c.isc)
	c.vocSTC = c.vocAt(c.iscAt(consts.E0))

	vff := c.voc
	deltaVoc := c.vocSTC - c.voc
	if deltaVoc == 0 {
		vff = 0.8 * c.voc
		deltaVoc = 0.2 * c.voc
	} else if deltaVoc < 0 {
		vff = 0.8 * c.vocSTC
		deltaVoc = 0.2 * c.vocSTC
	}

	n := c.smp.Npts
	vdiode := make([]float64, 3*n)
	for k := 0; k < n; k++ {
		vdiode[k] = c.params.VRBD * c.smp.Rev[k]
		vdiode[n+k] = vff * c.smp.Fwd[k]
		vdiode[2*n+k] = vff + deltaVoc*c.smp.Fwd[k]
	}

	igen := c.aph(c.isc) * c.isc
	isat1 := c.isat1()
	isat2 := c.isat2()
	vt := c.vt()

	c.icell = make([]float64, 3*n)
	c.vcell = make([]float64, 3*n)
	for k, vd := range vdiode {
		id1 := isat1 * (math.Exp(vd/vt) - 1)
		id2 := isat2 * (math.Exp(vd/(2*vt)) - 1)
		ish := vd / c.params.Rsh

		f := 1 - vd/c.params.VRBD
		if f == 0 {
			f = eps
		}
		frbd := c.params.ARBD*math.Pow(f, -c.params.NRBD) +
			c.params.BRBD*math.Pow(f, -2*c.params.NRBD)

		i := igen - id1 - id2 - ish*(1+frbd)
		c.icell[k] = i
		c.vcell[k] = vd - i*c.params.Rs
	}
}
