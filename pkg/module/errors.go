package module

import "errors"

var (
	// ErrConfiguration marks construction failures: the topology and the
	// cell list disagree, or the topology itself is malformed. Not
	// recoverable without rebuilding the module.
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidInput marks rejected mutation input, e.g. an irradiance
	// array of the wrong length. The module state is left unchanged and
	// the call may be retried with corrected input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTopology marks a crosstie boundary violation discovered while
	// assembling a substring curve.
	ErrTopology = errors.New("topology error")
)
