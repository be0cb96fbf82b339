package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/edp1096/toy-pdd/pkg/cell"
	"github.com/edp1096/toy-pdd/pkg/config"
	"github.com/edp1096/toy-pdd/pkg/diag"
	"github.com/edp1096/toy-pdd/pkg/metrics"
	"github.com/edp1096/toy-pdd/pkg/netlist"
	"github.com/edp1096/toy-pdd/pkg/util"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	d := config.Default()
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "verbose",
			usage: `
              verbose logs every Newton solve to standard error.`,
			shorthand:  "v",
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "t_ambient",
			usage: `
              t_ambient is the device temperature in K. Junctions with
              their own t= parameter keep it.`,
			defaultVal: d.T,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "db_mode",
			usage: `
              db_mode selects the carrier statistics, boltzmann or
              fermi-dirac.`,
			defaultVal: d.DBMode,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "workers",
			usage: `
              workers is the number of concurrent solves. 0 uses one
              per CPU.`,
			shorthand:  "j",
			defaultVal: d.Workers,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "max_retries",
			usage: `
              max_retries is the number of times a failed bias step is
              halved before the point is recorded as failed.`,
			defaultVal: d.MaxRetries,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "solver.backend",
			usage: `
              solver.backend selects the linear solver, sparse or banded.`,
			defaultVal: d.Solver.Backend,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "light_iv",
			usage: `
              light_iv illuminates the cell with the deck's light source.`,
			shorthand:  "l",
			defaultVal: d.LightIV,
			flagsets:   []*pflag.FlagSet{ivCmd.Flags()},
		},
		{
			name: "mpp",
			usage: `
              mpp computes the maximum power point and the figures of
              merit. Requires light_iv.`,
			defaultVal: d.MPP,
			flagsets:   []*pflag.FlagSet{ivCmd.Flags()},
		},
		{
			name: "r_series",
			usage: `
              r_series is an external series resistance in ohm m^2.`,
			defaultVal: d.RSeries,
			flagsets:   []*pflag.FlagSet{ivCmd.Flags()},
		},
		{
			name: "probe_flux",
			usage: `
              probe_flux is the photon flux of the monochromatic probe
              in photons m^-2 s^-1.`,
			defaultVal: d.ProbeFlux,
			flagsets:   []*pflag.FlagSet{qeCmd.Flags()},
		},
	}

	Cfg = viper.New()
	config.SetDefaults(Cfg)

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("PDD")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	Root.AddCommand(ivCmd)
	Root.AddCommand(qeCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("pdd: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "pdd",
	Short: "A drift-diffusion solar cell simulator.",
	Long: `pdd solves the Poisson and carrier continuity equations of multi-junction
solar cells described by a device deck.

Settings in the deck (.iv, .qe, .options, ...) can be overridden by a
configuration file (--config), by environment variables in the format
'PDD_var', or by command-line flags, in increasing order of precedence.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var ivCmd = &cobra.Command{
	Use:          "iv DECK",
	Short:        "Compute the I-V curve of a cell",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, opts, err := loadDeck(args[0])
		if err != nil {
			return err
		}
		log := warnings(cmd.ErrOrStderr())
		res, err := c.SolveIV(cmd.Context(), opts)
		if res != nil {
			printIV(cmd.OutOrStdout(), c, res, log)
		}
		var ierr *metrics.InsufficientDataError
		if errors.As(err, &ierr) {
			log.Warn("figures of merit unavailable", zap.Error(err))
			return nil
		}
		return err
	},
}

var qeCmd = &cobra.Command{
	Use:          "qe DECK",
	Short:        "Compute the quantum efficiency of every junction",
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, opts, err := loadDeck(args[0])
		if err != nil {
			return err
		}
		res, err := c.SolveQE(cmd.Context(), opts)
		if err != nil {
			return err
		}
		printQE(cmd.OutOrStdout(), opts.Wavelengths, res, warnings(cmd.ErrOrStderr()))
		return nil
	},
}

// loadDeck builds the cell of a deck and its options, with the deck
// settings under everything bound to Cfg.
func loadDeck(path string) (*cell.SolarCell, *config.Options, error) {
	deck, err := netlist.ParseFile(path)
	if err != nil {
		return nil, nil, err
	}
	c, err := deck.Cell()
	if err != nil {
		return nil, nil, err
	}
	deck.Apply(Cfg)
	opts, err := config.Load(Cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := deck.SetLight(opts); err != nil {
		return nil, nil, err
	}
	if Cfg.GetBool("verbose") {
		opts.Log = os.Stderr
	}
	return c, opts, nil
}

func warnings(w io.Writer) *zap.Logger {
	return diag.NewLevel(w, zapcore.WarnLevel)
}

func printIV(w io.Writer, c *cell.SolarCell, res *cell.IVResult, log *zap.Logger) {
	fmt.Fprintf(w, "\nCell %s (%d junctions)\n", c.Name(), len(res.Junctions))
	if res.Incident > 0 {
		fmt.Fprintf(w, "Incident power: %s\n", util.FormatValueFactor(res.Incident, "W/m2"))
	}

	for _, j := range res.Junctions {
		if err := j.Sweep.Err(); err != nil {
			log.Warn("junction sweep has gaps",
				zap.String("junction", j.Name),
				zap.Int("failed", len(j.Sweep.Failed)),
				zap.Error(err))
		}
		if res.Incident == 0 {
			continue
		}
		curve, err := metrics.NewCurve(j.Sweep.X(), j.Sweep.Currents())
		if err != nil {
			continue
		}
		jsc, _ := curve.Isc()
		line := fmt.Sprintf("Junction %-10s Jsc=%s", j.Name, util.FormatCurrentDensity(jsc))
		if voc, err := curve.Voc(); err == nil {
			line += fmt.Sprintf("  Voc=%s", util.FormatValueFactor(voc, "V"))
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nI-V Results (%d points):\n", len(res.Stack.V))
	fmt.Fprintln(w, "Voltage        Current density   Junction voltages")
	fmt.Fprintln(w, "------------------------------------------------")
	for k, v := range res.Stack.V {
		fmt.Fprintf(w, "V=%-11s  J=%s ", util.FormatValueFactor(v, "V"), util.FormatCurrentDensity(res.Stack.J[k]))
		for i, vj := range res.Stack.Junction[k] {
			fmt.Fprintf(w, " V%d=%s", i+1, util.FormatMagnitude(vj))
		}
		fmt.Fprintln(w)
	}
	if err := res.Stack.Err(); err != nil {
		log.Warn("stack voltages not reached", zap.Int("failed", len(res.Stack.Failed)), zap.Error(err))
	}

	if s := res.Summary; s != nil {
		fmt.Fprintln(w, "\nFigures of merit:")
		fmt.Fprintf(w, "Isc  = %s\n", util.FormatCurrentDensity(s.Isc))
		fmt.Fprintf(w, "Voc  = %s\n", util.FormatValueFactor(s.Voc, "V"))
		fmt.Fprintf(w, "FF   = %s\n", util.FormatPercent(s.FF))
		fmt.Fprintf(w, "Pmpp = %s at %s\n", util.FormatValueFactor(s.Pmpp, "W/m2"), util.FormatValueFactor(s.Vmpp, "V"))
		fmt.Fprintf(w, "Eta  = %s\n", util.FormatPercent(s.Eta))
	}
}

func printQE(w io.Writer, wavelengths []float64, res *cell.QEResult, log *zap.Logger) {
	fmt.Fprintf(w, "\nQE Results (%d wavelengths):\n", len(wavelengths))
	fmt.Fprintf(w, "%-12s", "Wavelength")
	for _, j := range res.Junctions {
		fmt.Fprintf(w, " %10s", j.Name)
		if err := j.Sweep.Err(); err != nil {
			log.Warn("qe sweep has gaps", zap.String("junction", j.Name), zap.Error(err))
		}
	}
	fmt.Fprintf(w, " %10s\n", "total")
	fmt.Fprintln(w, "------------------------------------------------")

	for _, wl := range wavelengths {
		fmt.Fprintf(w, "%-12s", util.FormatWavelength(wl))
		for k := range res.Junctions {
			fmt.Fprintf(w, " %10s", util.FormatPercent(res.At(k, wl)))
		}
		fmt.Fprintf(w, " %10s\n", util.FormatPercent(res.Total(wl)))
	}
}
