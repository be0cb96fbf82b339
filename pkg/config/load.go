package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/edp1096/toy-pdd/pkg/optics"
)

// Defaults returns Default() as viper keys.
func Defaults() map[string]any {
	d := Default()
	return map[string]any{
		"t_ambient":         d.T,
		"db_mode":           d.DBMode,
		"voltages":          d.Voltages,
		"internal_voltages": d.InternalVoltages,
		"light_iv":          d.LightIV,
		"mpp":               d.MPP,
		"optics_method":     d.OpticsMethod,
		"wavelength":        d.Wavelengths,
		"r_series":          d.RSeries,
		"max_retries":       d.MaxRetries,
		"coupling_tol":      d.CouplingTol,
		"workers":           d.Workers,
		"probe_flux":        d.ProbeFlux,

		"mesh.min_spacing":       d.Mesh.MinSpacing,
		"mesh.max_spacing":       d.Mesh.MaxSpacing,
		"mesh.growth":            d.Mesh.Growth,
		"mesh.max_nodes":         d.Mesh.MaxNodes,
		"mesh.depletion_spacing": d.Mesh.DepletionSpacing,
		"mesh.boundaries":        []float64{},

		"solver.max_iterations":    d.Solver.MaxIterations,
		"solver.residual_tol":      d.Solver.ResidualTol,
		"solver.update_tol":        d.Solver.UpdateTol,
		"solver.max_update":        d.Solver.MaxUpdate,
		"solver.damping":           d.Solver.Damping,
		"solver.divergence_factor": d.Solver.DivergenceFactor,
		"solver.backend":           d.Solver.Backend,
	}
}

// SetDefaults registers every option key on v.
func SetDefaults(v *viper.Viper) {
	for key, val := range Defaults() {
		v.SetDefault(key, val)
	}
}

// Load decodes the options held by v. The light source is the default sun
// and has to be replaced by the caller for other spectra.
func Load(v *viper.Viper) (*Options, error) {
	o := &Options{}
	if err := v.Unmarshal(o); err != nil {
		return nil, fmt.Errorf("decoding options: %w", err)
	}
	o.Light = optics.DefaultSun()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}
