package device

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/interp"

	"github.com/edp1096/toy-pdd/internal/consts"
)

// Absorption returns the absorption coefficient (1/m) at a wavelength (m).
type Absorption interface {
	Alpha(wavelength float64) float64
}

type Material struct {
	Name string

	Eg   float64 // Band gap (eV)
	Chi  float64 // Electron affinity (eV)
	EpsR float64 // Relative permittivity
	Nc   float64 // Conduction band effective density of states (m^-3)
	Nv   float64 // Valence band effective density of states (m^-3)
	MuN  float64 // Electron mobility (m^2/Vs)
	MuP  float64 // Hole mobility (m^2/Vs)

	// Recombination
	TauN float64 // SRH electron lifetime (s), 0 disables SRH
	TauP float64 // SRH hole lifetime (s)
	Et   float64 // Trap level relative to midgap (eV)
	Nt   float64 // Trap density for trapped charge (m^-3), 0 disables
	Brad float64 // Radiative coefficient (m^3/s)
	Cn   float64 // Electron Auger coefficient (m^6/s)
	Cp   float64 // Hole Auger coefficient (m^6/s)

	Absorption Absorption
}

// NewMaterial builds a material from a .material card. Unknown keys are
// ignored, missing keys keep GaAs-like defaults.
func NewMaterial(model ModelParam) (*Material, error) {
	m := &Material{Name: model.Name}
	m.setDefaultParameters()
	if err := m.SetModelParameters(model.Params); err != nil {
		return nil, fmt.Errorf("material %s: %w", model.Name, err)
	}
	return m, nil
}

func (m *Material) setDefaultParameters() {
	m.Eg = 1.42
	m.Chi = 4.07
	m.EpsR = 12.9
	m.Nc = 4.7e23
	m.Nv = 9.0e24
	m.MuN = 0.85
	m.MuP = 0.04
	m.TauN = 1e-9
	m.TauP = 1e-9
	m.Brad = 7.2e-16
}

func (m *Material) SetModelParameters(params map[string]float64) error {
	set := map[string]*float64{
		"eg":   &m.Eg,
		"chi":  &m.Chi,
		"eps":  &m.EpsR,
		"nc":   &m.Nc,
		"nv":   &m.Nv,
		"mun":  &m.MuN,
		"mup":  &m.MuP,
		"taun": &m.TauN,
		"taup": &m.TauP,
		"et":   &m.Et,
		"nt":   &m.Nt,
		"brad": &m.Brad,
		"cn":   &m.Cn,
		"cp":   &m.Cp,
	}
	for key, value := range params {
		if dst, ok := set[key]; ok {
			*dst = value
		}
	}

	if a0, ok := params["alpha0"]; ok {
		m.Absorption = DirectGap{Alpha0: a0, Eg: m.Eg}
	}

	return m.Validate()
}

func (m *Material) Validate() error {
	switch {
	case m.Eg <= 0:
		return fmt.Errorf("band gap must be positive, got %g", m.Eg)
	case m.EpsR <= 0:
		return fmt.Errorf("permittivity must be positive, got %g", m.EpsR)
	case m.Nc <= 0 || m.Nv <= 0:
		return fmt.Errorf("effective densities of states must be positive")
	case m.MuN <= 0 || m.MuP <= 0:
		return fmt.Errorf("mobilities must be positive")
	case m.TauN < 0 || m.TauP < 0 || m.Brad < 0 || m.Cn < 0 || m.Cp < 0 || m.Nt < 0:
		return fmt.Errorf("recombination parameters must be non-negative")
	}
	return nil
}

// Ni returns the intrinsic carrier density (m^-3) at temperature temp.
func (m *Material) Ni(temp float64) float64 {
	vt := consts.ThermalVoltage(temp)
	return math.Sqrt(m.Nc*m.Nv) * math.Exp(-m.Eg/(2*vt))
}

func (m *Material) Alpha(wavelength float64) float64 {
	if m.Absorption == nil {
		return 0
	}
	return m.Absorption.Alpha(wavelength)
}

// DirectGap is the parabolic-band absorption edge alpha0*sqrt(E-Eg)/E,
// with E in eV.
type DirectGap struct {
	Alpha0 float64 // 1/m at 1 eV above the gap
	Eg     float64 // eV
}

func (d DirectGap) Alpha(wavelength float64) float64 {
	e := consts.PhotonEnergy(wavelength) / consts.CHARGE
	if e <= d.Eg {
		return 0
	}
	return d.Alpha0 * math.Sqrt(e-d.Eg) / e
}

// TableAbsorption interpolates tabulated data linearly and is zero outside
// the table.
type TableAbsorption struct {
	lo, hi float64
	pl     interp.PiecewiseLinear
}

func NewTableAbsorption(wavelengths, alpha []float64) (*TableAbsorption, error) {
	if len(wavelengths) < 2 || len(wavelengths) != len(alpha) {
		return nil, fmt.Errorf("absorption table needs at least two matching points")
	}
	t := &TableAbsorption{lo: wavelengths[0], hi: wavelengths[len(wavelengths)-1]}
	if err := t.pl.Fit(wavelengths, alpha); err != nil {
		return nil, fmt.Errorf("absorption table: %w", err)
	}
	return t, nil
}

func (t *TableAbsorption) Alpha(wavelength float64) float64 {
	if wavelength < t.lo || wavelength > t.hi {
		return 0
	}
	return math.Max(0, t.pl.Predict(wavelength))
}
