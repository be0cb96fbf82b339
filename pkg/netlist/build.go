package netlist

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gonum.org/v1/gonum/floats"

	"github.com/edp1096/toy-pdd/pkg/cell"
	"github.com/edp1096/toy-pdd/pkg/config"
	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/optics"
)

// Cell builds the solar cell described by the deck.
func (d *Deck) Cell() (*cell.SolarCell, error) {
	materials := make(map[string]*device.Material, len(d.Models))
	for name, model := range d.Models {
		m, err := device.NewMaterial(model)
		if err != nil {
			return nil, err
		}
		if path, ok := d.Tables[name]; ok {
			if !filepath.IsAbs(path) {
				path = filepath.Join(d.BaseDir, path)
			}
			table, err := ReadAbsorption(path)
			if err != nil {
				return nil, fmt.Errorf("material %s: %w", name, err)
			}
			m.Absorption = table
		}
		materials[name] = m
	}

	c := cell.New(d.Title)
	for _, jc := range d.Junctions {
		j, err := jc.junction(materials)
		if err != nil {
			return nil, err
		}
		c.AddJunction(j)
	}
	if len(c.Junctions()) == 0 {
		return nil, fmt.Errorf("deck has no junctions")
	}
	return c, nil
}

func (jc *JunctionCard) junction(materials map[string]*device.Material) (*device.Junction, error) {
	layers := make([]*device.Layer, 0, len(jc.Layers))
	for _, lc := range jc.Layers {
		m, ok := materials[lc.Material]
		if !ok {
			return nil, fmt.Errorf("junction %s: layer %s: undefined material %s", jc.Name, lc.Name, lc.Material)
		}
		layers = append(layers, device.NewLayer(lc.Name, device.ParseRole(lc.Role), lc.Width, m, lc.Na, lc.Nd))
	}

	// Temperature 0 follows the options.
	j := device.NewJunction(jc.Name, layers, 0)
	for key, value := range jc.Params {
		if key == "kind" {
			kind, err := device.ParseKind(value)
			if err != nil {
				return nil, fmt.Errorf("junction %s: %w", jc.Name, err)
			}
			j.Kind = kind
			continue
		}
		if key == "refine" {
			xs, err := parseList(value)
			if err != nil {
				return nil, fmt.Errorf("junction %s: invalid refine: %v", jc.Name, err)
			}
			j.WithBoundaries(xs...)
			continue
		}

		v := math.Inf(1)
		if !strings.EqualFold(value, "inf") {
			var err error
			if v, err = ParseValue(value); err != nil {
				return nil, fmt.Errorf("junction %s: invalid %s: %v", jc.Name, key, err)
			}
		}
		switch key {
		case "sn":
			j.Front.Sn, j.Back.Sn = v, v
		case "sp":
			j.Front.Sp, j.Back.Sp = v, v
		case "t":
			j.T = v
		default:
			return nil, fmt.Errorf("junction %s: unknown parameter %q", jc.Name, key)
		}
	}
	return j, nil
}

// Apply registers the deck settings as defaults of v. Flags, environment
// and configuration files bound to v take precedence.
func (d *Deck) Apply(v *viper.Viper) {
	for key, value := range d.Settings {
		v.SetDefault(key, value)
	}
}

// Options merges the deck settings over the defaults.
func (d *Deck) Options() (*config.Options, error) {
	v := viper.New()
	config.SetDefaults(v)
	d.Apply(v)
	o, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := d.SetLight(o); err != nil {
		return nil, err
	}
	return o, nil
}

// SetLight replaces the light source of o when the deck has a .light card.
func (d *Deck) SetLight(o *config.Options) error {
	if d.Light == nil {
		return nil
	}
	s, err := d.Light.Spectrum()
	if err != nil {
		return err
	}
	o.Light = s
	return nil
}

func (l *LightCard) Spectrum() (*optics.Spectrum, error) {
	if l.Points < 2 || l.Start <= 0 || l.Stop <= l.Start {
		return nil, fmt.Errorf("light: invalid wavelength range %g..%g (%d points)", l.Start, l.Stop, l.Points)
	}
	wl := floats.Span(make([]float64, l.Points), l.Start, l.Stop)
	switch l.Type {
	case "blackbody":
		return optics.Blackbody(l.Params["t"], l.Params["power"], wl)
	case "flat":
		return optics.Flat(l.Params["flux"], wl)
	}
	return nil, fmt.Errorf("unsupported light source: %s", l.Type)
}

// ReadAbsorption reads a two column table of wavelength (m) and absorption
// coefficient (1/m). Values accept engineering suffixes.
func ReadAbsorption(path string) (*device.TableAbsorption, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var wl, alpha []float64
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(strings.ReplaceAll(line, ",", " "))
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected two columns", path, n)
		}
		x, err := ParseValue(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %v", path, n, err)
		}
		y, err := ParseValue(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %v", path, n, err)
		}
		wl = append(wl, x)
		alpha = append(alpha, y)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return device.NewTableAbsorption(wl, alpha)
}
