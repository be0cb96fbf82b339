package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edp1096/toy-pdd/internal/consts"
)

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindPDD, "PDD": KindPDD, "da": KindDepletion, "DB": KindDetailedBalance} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseKind("tmm")
	assert.ErrorIs(t, err, ErrUnsupportedKind)
	assert.Equal(t, "DA", KindDepletion.String())
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleBSF, ParseRole("bsf"))
	assert.Equal(t, RoleWindow, ParseRole("Window"))
	assert.Equal(t, RoleOther, ParseRole("spacer"))
	assert.Equal(t, "Base", RoleBase.String())
}

func TestNewMaterial(t *testing.T) {
	m, err := NewMaterial(ModelParam{Name: "GaAs"})
	require.NoError(t, err)
	assert.Equal(t, 1.42, m.Eg)
	assert.Nil(t, m.Absorption)
	assert.Zero(t, m.Alpha(500e-9))

	// ni of GaAs at 300 K is around 2e12 m^-3.
	ni := m.Ni(300)
	assert.Greater(t, ni, 1e12)
	assert.Less(t, ni, 1e13)

	m, err = NewMaterial(ModelParam{Name: "wide", Params: map[string]float64{"eg": 1.9, "alpha0": 2e7, "unknown": 1}})
	require.NoError(t, err)
	assert.Equal(t, 1.9, m.Eg)
	require.NotNil(t, m.Absorption)
	assert.Zero(t, m.Alpha(700e-9), "below the gap")
	assert.Greater(t, m.Alpha(500e-9), 0.0)

	_, err = NewMaterial(ModelParam{Name: "bad", Params: map[string]float64{"mun": -1}})
	assert.ErrorContains(t, err, "material bad")
}

func TestDirectGap(t *testing.T) {
	d := DirectGap{Alpha0: 2e7, Eg: 1.42}
	wl := consts.PLANCK * consts.LIGHTSPEED / (2.42 * consts.CHARGE)
	assert.InEpsilon(t, 2e7/2.42, d.Alpha(wl), 1e-9)
	assert.Zero(t, d.Alpha(1000e-9))
}

func TestTableAbsorption(t *testing.T) {
	tab, err := NewTableAbsorption([]float64{400e-9, 800e-9}, []float64{1e7, 1e5})
	require.NoError(t, err)
	assert.InEpsilon(t, (1e7+1e5)/2, tab.Alpha(600e-9), 1e-9)
	assert.Zero(t, tab.Alpha(300e-9))
	assert.Zero(t, tab.Alpha(900e-9))

	_, err = NewTableAbsorption([]float64{400e-9}, []float64{1e7})
	assert.Error(t, err)
}

func TestJunction(t *testing.T) {
	m, err := NewMaterial(ModelParam{Name: "GaAs"})
	require.NoError(t, err)

	pn := NewJunction("pn", []*Layer{
		NewLayer("p", RoleEmitter, 100e-9, m, 1e24, 0),
		NewLayer("n", RoleBase, 900e-9, m, 0, 1e23),
	}, 300)
	require.NoError(t, pn.Validate())
	assert.InDelta(t, 1e-6, pn.Width(), 1e-18)
	assert.True(t, pn.PSideFront())
	assert.True(t, pn.Front.OhmicN())

	np := NewJunction("np", []*Layer{
		NewLayer("n", RoleEmitter, 100e-9, m, 0, 1e24),
		NewLayer("p", RoleBase, 900e-9, m, 1e23, 0),
	}, 300).WithSurfaces(100, 1e3)
	assert.False(t, np.PSideFront())
	assert.Equal(t, Surface{Sn: 100, Sp: 1e3}, np.Back)
	assert.False(t, np.Front.OhmicP())

	// Graded doping through a profile.
	graded := NewLayer("graded", RoleBase, 1e-6, m, 0, 0)
	graded.Profile = func(x float64) (float64, float64) { return 0, 1e22 * (1 + x/1e-6) }
	_, nd := graded.Doping(1e-6)
	assert.Equal(t, 2e22, nd)
	assert.InDelta(t, 1.5e22, graded.NetDoping(), 1)
}

func TestJunctionValidate(t *testing.T) {
	m, err := NewMaterial(ModelParam{Name: "GaAs"})
	require.NoError(t, err)

	tests := []struct {
		name string
		j    *Junction
		want string
	}{
		{"empty", NewJunction("j", nil, 300), "no layers"},
		{"temperature", NewJunction("j", []*Layer{NewLayer("a", RoleBase, 1e-6, m, 0, 1e23)}, 0), "temperature"},
		{"material", NewJunction("j", []*Layer{NewLayer("a", RoleBase, 1e-6, nil, 0, 1e23)}, 300), "no material"},
		{"doping", NewJunction("j", []*Layer{NewLayer("a", RoleBase, 1e-6, m, -1, 0)}, 300), "negative doping"},
		{"surface", NewJunction("j", []*Layer{NewLayer("a", RoleBase, 1e-6, m, 0, 1e23)}, 300).WithSurfaces(-1, 0), "surface"},
		{"boundary", NewJunction("j", []*Layer{NewLayer("a", RoleBase, 1e-6, m, 0, 1e23)}, 300).WithBoundaries(0.5e-6, 2e-6), "boundary 2e-06 outside"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorContains(t, tc.j.Validate(), tc.want)
		})
	}
	assert.True(t, math.IsInf(Ohmic().Sn, 1))
}
