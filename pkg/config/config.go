package config

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-pdd/pkg/material"
	"github.com/edp1096/toy-pdd/pkg/mesh"
	"github.com/edp1096/toy-pdd/pkg/optics"
	"github.com/edp1096/toy-pdd/pkg/solver"
)

var validate = validator.New()

type Mesh struct {
	MinSpacing float64 `mapstructure:"min_spacing" validate:"gt=0"`
	MaxSpacing float64 `mapstructure:"max_spacing" validate:"gtefield=MinSpacing"`
	Growth     float64 `mapstructure:"growth" validate:"gt=1"`
	MaxNodes   int     `mapstructure:"max_nodes" validate:"gte=0"`

	// Spacing cap across the estimated depletion region, 0 disables.
	DepletionSpacing float64 `mapstructure:"depletion_spacing" validate:"gte=0"`

	// Refinement points (m from the front contact) applied to every
	// junction, in addition to the junction's own.
	Boundaries []float64 `mapstructure:"boundaries" validate:"dive,gte=0"`
}

type Solver struct {
	MaxIterations    int     `mapstructure:"max_iterations" validate:"gt=0"`
	ResidualTol      float64 `mapstructure:"residual_tol" validate:"gt=0"`
	UpdateTol        float64 `mapstructure:"update_tol" validate:"gt=0"`
	MaxUpdate        float64 `mapstructure:"max_update" validate:"gt=0"`
	Damping          float64 `mapstructure:"damping" validate:"gt=0,lte=1"`
	DivergenceFactor float64 `mapstructure:"divergence_factor" validate:"gt=1"`
	Backend          string  `mapstructure:"backend" validate:"oneof=sparse banded"`
}

// Options is the explicit option set of one solve. Voltages are stack
// voltages, InternalVoltages the per-junction sweep.
type Options struct {
	T                float64   `mapstructure:"t_ambient" validate:"gt=0"`
	DBMode           string    `mapstructure:"db_mode" validate:"oneof=boltzmann fermi-dirac"`
	Voltages         []float64 `mapstructure:"voltages" validate:"min=2"`
	InternalVoltages []float64 `mapstructure:"internal_voltages" validate:"min=2"`
	LightIV          bool      `mapstructure:"light_iv"`
	MPP              bool      `mapstructure:"mpp"`
	OpticsMethod     string    `mapstructure:"optics_method" validate:"oneof=BL"`
	Wavelengths      []float64 `mapstructure:"wavelength" validate:"omitempty,min=2,dive,gt=0"`
	RSeries          float64   `mapstructure:"r_series" validate:"gte=0"` // ohm m^2

	Mesh   Mesh   `mapstructure:"mesh"`
	Solver Solver `mapstructure:"solver"`

	MaxRetries  int     `mapstructure:"max_retries" validate:"gte=0,lte=30"`
	CouplingTol float64 `mapstructure:"coupling_tol" validate:"gt=0"` // A/m^2
	Workers     int     `mapstructure:"workers" validate:"gte=0"`
	ProbeFlux   float64 `mapstructure:"probe_flux" validate:"gt=0"` // photons m^-2 s^-1

	Light *optics.Spectrum `mapstructure:"-" validate:"required_if=LightIV true"`
	Log   io.Writer        `mapstructure:"-" validate:"-"`
}

func Default() *Options {
	s := solver.DefaultOptions()
	b := mesh.NewBuilder()
	return &Options{
		T:                298,
		DBMode:           material.Boltzmann.String(),
		Voltages:         floats.Span(make([]float64, 300), 0, 2.6),
		InternalVoltages: floats.Span(make([]float64, 201), -2, 2.61),
		OpticsMethod:     optics.MethodBeerLambert,
		Wavelengths:      floats.Span(make([]float64, 101), 300e-9, 1100e-9),
		Mesh: Mesh{
			MinSpacing:       b.MinSpacing,
			MaxSpacing:       b.MaxSpacing,
			Growth:           b.Growth,
			MaxNodes:         b.MaxNodes,
			DepletionSpacing: 5e-9,
		},
		Solver: Solver{
			MaxIterations:    s.MaxIterations,
			ResidualTol:      s.ResidualTol,
			UpdateTol:        s.UpdateTol,
			MaxUpdate:        s.MaxUpdate,
			Damping:          s.Damping,
			DivergenceFactor: s.DivergenceFactor,
			Backend:          s.Backend,
		},
		MaxRetries:  6,
		CouplingTol: 1e-6,
		ProbeFlux:   1e20,
		Light:       optics.DefaultSun(),
	}
}

func (o *Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		var errs []string
		for _, e := range validationErrors {
			errs = append(errs, formatFieldError(e))
		}
		return fmt.Errorf("invalid options: %s", strings.Join(errs, "; "))
	}
	return err
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Namespace())
	field = strings.TrimPrefix(field, "options.")

	switch e.Tag() {
	case "required_if":
		return fmt.Sprintf("%s is required when %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s values", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	case "gtefield":
		return fmt.Sprintf("%s must not be below %s", field, strings.ToLower(e.Param()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func (o *Options) Statistics() (material.Statistics, error) {
	return material.ParseStatistics(o.DBMode)
}

func (o *Options) SolverOptions() solver.Options {
	return solver.Options{
		MaxIterations:    o.Solver.MaxIterations,
		ResidualTol:      o.Solver.ResidualTol,
		UpdateTol:        o.Solver.UpdateTol,
		MaxUpdate:        o.Solver.MaxUpdate,
		Damping:          o.Solver.Damping,
		DivergenceFactor: o.Solver.DivergenceFactor,
		Backend:          o.Solver.Backend,
	}
}

// MeshBuilder returns a builder with the mesh options applied.
func (o *Options) MeshBuilder() *mesh.Builder {
	b := mesh.NewBuilder()
	b.MinSpacing = o.Mesh.MinSpacing
	b.MaxSpacing = o.Mesh.MaxSpacing
	b.Growth = o.Mesh.Growth
	b.MaxNodes = o.Mesh.MaxNodes
	b.Boundaries = append([]float64(nil), o.Mesh.Boundaries...)
	return b
}

// WorkerCount resolves Workers, 0 meaning one per CPU.
func (o *Options) WorkerCount() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.NumCPU()
}
