package netlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pdd/pkg/device"
	"github.com/edp1096/toy-pdd/pkg/matrix"
)

const tandemDeck = `* tandem test deck
.material GaAs (eg=1.42 taun=10n taup=10n alpha0=2e7)
.material AlGaAs (eg=1.8 chi=3.7
+ alpha0=2e7)

.junction top sn=1e6 sp=1e6 refine=50n,500n
Lemitter emitter width=150n material=AlGaAs na=1e24
Lbase base width=1u material=AlGaAs nd=8e22 * inline comment

.junction bottom t=300 kind=pdd
Lemitter emitter width=150n material=GaAs na=1e24
Lbase base width=3u material=GaAs nd=8e22

.iv 0 2.6 27 light mpp
.internal -2 2.6 47
.qe 300n 1000n 8
.light blackbody t=5778 power=1000 start=280n stop=4u points=500
.options workers=2 solver.backend=banded r_series=1m mesh.boundaries=20n,40n
`

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"30n", 30e-9},
		{"1u", 1e-6},
		{"1e24", 1e24},
		{"2.5meg", 2.5e6},
		{"-0.5", -0.5},
		{"10ns", 10e-9},
		{"4k", 4e3},
		{"1M", 1e-3},
		{"1m", 1e-3},
	}
	for _, tc := range tests {
		got, err := ParseValue(tc.in)
		require.NoError(t, err, tc.in)
		assert.InEpsilon(t, tc.want, got, 1e-12, tc.in)
	}

	_, err := ParseValue("abc")
	assert.Error(t, err)
}

func TestParseDeck(t *testing.T) {
	deck, err := Parse(tandemDeck)
	require.NoError(t, err)

	assert.Equal(t, "tandem test deck", deck.Title)
	require.Len(t, deck.Models, 2)
	algaas := deck.Models["AlGaAs"]
	assert.Equal(t, 3.7, algaas.Params["chi"])
	assert.Equal(t, 2e7, algaas.Params["alpha0"])
	assert.InEpsilon(t, 10e-9, deck.Models["GaAs"].Params["taun"], 1e-12)

	require.Len(t, deck.Junctions, 2)
	top := deck.Junctions[0]
	assert.Equal(t, "top", top.Name)
	require.Len(t, top.Layers, 2)
	assert.Equal(t, LayerCard{Name: "base", Role: "base", Width: 1e-6, Material: "AlGaAs", Nd: 8e22}, top.Layers[1])

	assert.Len(t, deck.Settings["voltages"], 27)
	assert.Equal(t, true, deck.Settings["light_iv"])
	assert.Equal(t, true, deck.Settings["mpp"])
	assert.Len(t, deck.Settings["wavelength"], 8)
	assert.InDeltaSlice(t, []float64{20e-9, 40e-9}, deck.Settings["mesh.boundaries"], 1e-18)
	require.NotNil(t, deck.Light)
	assert.Equal(t, "blackbody", deck.Light.Type)
	assert.Equal(t, 500, deck.Light.Points)
}

func TestDeckCell(t *testing.T) {
	deck, err := Parse(tandemDeck)
	require.NoError(t, err)

	c, err := deck.Cell()
	require.NoError(t, err)
	assert.Equal(t, "tandem test deck", c.Name())
	require.Len(t, c.Junctions(), 2)

	top, bottom := c.Junctions()[0], c.Junctions()[1]
	assert.Equal(t, 1e6, top.Front.Sn)
	assert.Equal(t, 1e6, top.Back.Sp)
	assert.Zero(t, top.T)
	assert.Equal(t, device.RoleEmitter, top.Layers[0].Role)
	assert.Equal(t, 1.8, top.Layers[0].Material.Eg)
	assert.True(t, top.PSideFront())
	assert.InDeltaSlice(t, []float64{50e-9, 500e-9}, top.Boundaries, 1e-18)
	assert.Empty(t, bottom.Boundaries)

	assert.Equal(t, 300.0, bottom.T)
	assert.True(t, bottom.Front.OhmicN())
	assert.Equal(t, device.KindPDD, bottom.Kind)
	assert.Greater(t, bottom.Layers[1].Material.Alpha(800e-9), 0.0)
}

func TestDeckOptions(t *testing.T) {
	deck, err := Parse(tandemDeck)
	require.NoError(t, err)

	o, err := deck.Options()
	require.NoError(t, err)
	assert.Equal(t, 2, o.Workers)
	assert.Equal(t, matrix.BackendBanded, o.Solver.Backend)
	assert.InEpsilon(t, 1e-3, o.RSeries, 1e-12)
	assert.True(t, o.LightIV)
	assert.True(t, o.MPP)
	assert.Len(t, o.Voltages, 27)
	assert.Len(t, o.InternalVoltages, 47)
	assert.Len(t, o.Wavelengths, 8)
	assert.InEpsilon(t, 1000, o.Light.Power(), 1e-9)
	assert.Equal(t, 298.0, o.T)
	assert.InDeltaSlice(t, []float64{20e-9, 40e-9}, o.Mesh.Boundaries, 1e-18)
}

func TestDeckErrors(t *testing.T) {
	tests := []struct {
		name string
		deck string
		want string
	}{
		{"layer outside junction", "title\nLbase base width=1u material=GaAs", "outside a junction"},
		{"unknown command", "title\n.tran 1n 1u", "unsupported command: .tran"},
		{"unknown card", "title\nR1 1 0 1k", "unsupported card"},
		{"dangling continuation", "title\n+ eg=1", "continuation without a card"},
		{"short sweep", "title\n.iv 0 1", "invalid iv sweep"},
		{"missing width", "title\n.junction j\nLbase base material=GaAs", "missing width"},
		{"light source", "title\n.light laser", "unsupported light source"},
		{"option list", "title\n.options mesh.boundaries=1n,abc", "option mesh.boundaries"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.deck)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestDeckBuildErrors(t *testing.T) {
	deck, err := Parse("title\n.junction j\nLbase base width=1u material=InP")
	require.NoError(t, err)
	_, err = deck.Cell()
	assert.ErrorContains(t, err, "undefined material InP")

	deck, err = Parse("title\n.material GaAs ()\n.junction j kind=tmm\nLbase base width=1u material=GaAs")
	require.NoError(t, err)
	_, err = deck.Cell()
	assert.ErrorIs(t, err, device.ErrUnsupportedKind)

	deck, err = Parse("title\n.material GaAs ()\n.junction j refine=1n,x\nLbase base width=1u material=GaAs")
	require.NoError(t, err)
	_, err = deck.Cell()
	assert.ErrorContains(t, err, "invalid refine")

	deck, err = Parse("title\n.options t_ambient=-5")
	require.NoError(t, err)
	_, err = deck.Options()
	assert.ErrorContains(t, err, "t must be greater than 0")
}

func TestAbsorptionTable(t *testing.T) {
	dir := t.TempDir()
	table := "# wavelength alpha\n400n 1e7\n800n, 1e6\n900n 0\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gaas.txt"), []byte(table), 0o644))

	deckPath := filepath.Join(dir, "cell.deck")
	deck := "table deck\n.material GaAs (eg=1.42 alpha=gaas.txt)\n.junction j\nLbase base width=1u material=GaAs nd=1e23\n"
	require.NoError(t, os.WriteFile(deckPath, []byte(deck), 0o644))

	d, err := ParseFile(deckPath)
	require.NoError(t, err)
	c, err := d.Cell()
	require.NoError(t, err)

	m := c.Junctions()[0].Layers[0].Material
	assert.InEpsilon(t, 5.5e6, m.Alpha(600e-9), 1e-9)
	assert.Zero(t, m.Alpha(1000e-9))

	_, err = ReadAbsorption(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}
