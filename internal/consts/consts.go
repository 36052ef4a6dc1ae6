package consts

const (
	CHARGE    = 1.6021918e-19 // Elementary charge (C)
	BOLTZMANN = 1.3806226e-23 // Boltzmann constant (J/K)
	KELVIN    = 273.15        // Kelvin temperature (K)

	T0 = 298.15 // Reference cell temperature, 25degC (K)
	E0 = 1.0    // Reference effective irradiance (suns)
)
