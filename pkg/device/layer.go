package device

import (
	"fmt"
	"strings"
)

type Role int

const (
	RoleOther Role = iota
	RoleWindow
	RoleEmitter
	RoleIntrinsic
	RoleBase
	RoleBSF
	RoleBarrier
)

var roleNames = map[Role]string{
	RoleOther:     "Other",
	RoleWindow:    "Window",
	RoleEmitter:   "Emitter",
	RoleIntrinsic: "Intrinsic",
	RoleBase:      "Base",
	RoleBSF:       "BSF",
	RoleBarrier:   "Barrier",
}

func (r Role) String() string {
	if s, ok := roleNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

func ParseRole(s string) Role {
	for role, name := range roleNames {
		if strings.EqualFold(name, s) {
			return role
		}
	}
	return RoleOther
}

// Profile overrides uniform doping with a position dependent one. x is the
// position inside the layer measured from its front face (m).
type Profile func(x float64) (na, nd float64)

// Layer is a homogeneous slab. Do not modify a Layer once it belongs to a
// Junction.
type Layer struct {
	Name     string
	Role     Role
	Width    float64 // m
	Material *Material
	Na       float64 // Acceptor density (m^-3)
	Nd       float64 // Donor density (m^-3)
	Profile  Profile
}

func NewLayer(name string, role Role, width float64, mat *Material, na, nd float64) *Layer {
	return &Layer{
		Name:     name,
		Role:     role,
		Width:    width,
		Material: mat,
		Na:       na,
		Nd:       nd,
	}
}

// Doping returns (Na, Nd) at local position x.
func (l *Layer) Doping(x float64) (float64, float64) {
	if l.Profile != nil {
		return l.Profile(x)
	}
	return l.Na, l.Nd
}

// NetDoping is Nd - Na at the layer centre.
func (l *Layer) NetDoping() float64 {
	na, nd := l.Doping(l.Width / 2)
	return nd - na
}
