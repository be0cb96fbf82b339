package consts

import "math"

const (
	CHARGE     = 1.602176634e-19  // Elementary charge (C)
	BOLTZMANN  = 1.380649e-23     // Boltzmann constant (J/K)
	KELVIN     = 273.15           // Kelvin temperature (K)
	EPSILON0   = 8.8541878128e-12 // Vacuum permittivity (F/m)
	PLANCK     = 6.62607015e-34   // Planck constant (J s)
	LIGHTSPEED = 299792458.0      // Speed of light (m/s)
)

// ThermalVoltage returns kT/q in volts.
func ThermalVoltage(temp float64) float64 {
	if temp <= 0 {
		temp = 300.15
	}
	return BOLTZMANN * temp / CHARGE
}

// PhotonEnergy returns hc/lambda in joules.
func PhotonEnergy(wavelength float64) float64 {
	if wavelength <= 0 {
		return math.Inf(1)
	}
	return PLANCK * LIGHTSPEED / wavelength
}
