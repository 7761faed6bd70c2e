package types

import "strings"

// BCFLAG labels what sits on the far side of a mesh face
type BCFLAG uint8

const (
	BC_None BCFLAG = iota
	BC_Periodic
	BC_Outflow
	BC_Reflect
	BC_Inflow
	BC_User
)

var BCNameMap = map[string]BCFLAG{
	"periodic": BC_Periodic,
	"outflow":  BC_Outflow,
	"out":      BC_Outflow,
	"reflect":  BC_Reflect,
	"wall":     BC_Reflect,
	"inflow":   BC_Inflow,
	"in":       BC_Inflow,
	"user":     BC_User,
}

func NewBCFLAG(label string) (bf BCFLAG) {
	var ok bool
	if bf, ok = BCNameMap[strings.ToLower(strings.TrimSpace(label))]; !ok {
		return BC_None
	}
	return
}

func (bf BCFLAG) String() string {
	switch bf {
	case BC_Periodic:
		return "periodic"
	case BC_Outflow:
		return "outflow"
	case BC_Reflect:
		return "reflect"
	case BC_Inflow:
		return "inflow"
	case BC_User:
		return "user"
	}
	return "none"
}
