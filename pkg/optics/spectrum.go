package optics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"

	"github.com/edp1096/toy-pdd/internal/consts"
)

// Spectrum is a spectral photon flux density: photons m^-2 s^-1 per metre
// of wavelength, sampled on strictly increasing wavelengths (m).
type Spectrum struct {
	Wavelength []float64
	Flux       []float64

	pl interp.PiecewiseLinear
}

func NewSpectrum(wavelength, flux []float64) (*Spectrum, error) {
	if len(wavelength) < 2 || len(wavelength) != len(flux) {
		return nil, fmt.Errorf("spectrum needs at least two matching points, got %d and %d", len(wavelength), len(flux))
	}
	for i, f := range flux {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("spectrum: invalid flux %g at %g m", f, wavelength[i])
		}
	}
	s := &Spectrum{
		Wavelength: append([]float64(nil), wavelength...),
		Flux:       append([]float64(nil), flux...),
	}
	if err := s.pl.Fit(s.Wavelength, s.Flux); err != nil {
		return nil, fmt.Errorf("spectrum: %w", err)
	}
	return s, nil
}

// Blackbody returns the photon spectrum of a black body at temp, scaled to
// an incident power density (W/m^2) over the given wavelengths.
func Blackbody(temp, power float64, wavelength []float64) (*Spectrum, error) {
	if temp <= 0 || power <= 0 {
		return nil, fmt.Errorf("blackbody: temperature and power must be positive")
	}
	flux := make([]float64, len(wavelength))
	kt := consts.BOLTZMANN * temp
	for i, wl := range wavelength {
		if wl <= 0 {
			return nil, fmt.Errorf("blackbody: wavelength must be positive, got %g", wl)
		}
		flux[i] = 2 * consts.LIGHTSPEED / math.Pow(wl, 4) / math.Expm1(consts.PhotonEnergy(wl)/kt)
	}
	s, err := NewSpectrum(wavelength, flux)
	if err != nil {
		return nil, err
	}
	return s.Scaled(power / s.Power()), nil
}

// Flat returns a spectrum carrying the same photon flux density at every
// wavelength.
func Flat(flux float64, wavelength []float64) (*Spectrum, error) {
	f := make([]float64, len(wavelength))
	for i := range f {
		f[i] = flux
	}
	return NewSpectrum(wavelength, f)
}

// DefaultSun is a 5778 K black body normalised to 1000 W/m^2 over
// 280 nm - 4 um.
func DefaultSun() *Spectrum {
	wl := floats.Span(make([]float64, 1000), 280e-9, 4000e-9)
	s, err := Blackbody(5778, 1000, wl)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Spectrum) Scaled(f float64) *Spectrum {
	flux := append([]float64(nil), s.Flux...)
	floats.Scale(f, flux)
	out, err := NewSpectrum(s.Wavelength, flux)
	if err != nil {
		panic(err)
	}
	return out
}

// At interpolates the flux density. Zero outside the sampled range.
func (s *Spectrum) At(wavelength float64) float64 {
	if wavelength < s.Wavelength[0] || wavelength > s.Wavelength[len(s.Wavelength)-1] {
		return 0
	}
	return s.pl.Predict(wavelength)
}

// Power is the incident power density (W/m^2).
func (s *Spectrum) Power() float64 {
	e := make([]float64, len(s.Flux))
	for i, wl := range s.Wavelength {
		e[i] = s.Flux[i] * consts.PhotonEnergy(wl)
	}
	return integrate.Trapezoidal(s.Wavelength, e)
}

// PhotonFlux is the total photon flux (m^-2 s^-1).
func (s *Spectrum) PhotonFlux() float64 {
	return integrate.Trapezoidal(s.Wavelength, s.Flux)
}

// Lines splits the spectrum into discrete lines with trapezoidal weights,
// so that summing the line fluxes integrates the spectrum.
func (s *Spectrum) Lines() []Line {
	n := len(s.Wavelength)
	lines := make([]Line, n)
	for i := range lines {
		w := 0.0
		if i > 0 {
			w += (s.Wavelength[i] - s.Wavelength[i-1]) / 2
		}
		if i+1 < n {
			w += (s.Wavelength[i+1] - s.Wavelength[i]) / 2
		}
		lines[i] = Line{Wavelength: s.Wavelength[i], Flux: s.Flux[i] * w}
	}
	return lines
}

// Line is a monochromatic photon flux (m^-2 s^-1).
type Line struct {
	Wavelength float64
	Flux       float64
}

// Probe is a single monochromatic line, used for quantum efficiency.
func Probe(wavelength, flux float64) []Line {
	return []Line{{Wavelength: wavelength, Flux: flux}}
}

// Power is the power density (W/m^2) carried by a set of lines.
func Power(lines []Line) float64 {
	p := 0.0
	for _, l := range lines {
		p += l.Flux * consts.PhotonEnergy(l.Wavelength)
	}
	return p
}
