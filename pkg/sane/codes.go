package sane

import "strconv"

// ValueType is SANE_Value_Type.
type ValueType int

const (
	TypeBool ValueType = iota
	TypeInt
	TypeFixed
	TypeString
	TypeButton
	TypeGroup
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeInt:
		return "int"
	case TypeFixed:
		return "fixed"
	case TypeString:
		return "string"
	case TypeButton:
		return "button"
	case TypeGroup:
		return "group"
	default:
		return "type(" + strconv.Itoa(int(t)) + ")"
	}
}

// Unit is SANE_Unit.
type Unit int

const (
	UnitNone Unit = iota
	UnitPixel
	UnitBit
	UnitMM
	UnitDPI
	UnitPercent
	UnitMicrosecond
)

func (u Unit) String() string {
	switch u {
	case UnitNone:
		return "none"
	case UnitPixel:
		return "pixel"
	case UnitBit:
		return "bit"
	case UnitMM:
		return "mm"
	case UnitDPI:
		return "dpi"
	case UnitPercent:
		return "percent"
	case UnitMicrosecond:
		return "microsecond"
	default:
		return "unit(" + strconv.Itoa(int(u)) + ")"
	}
}

// Capability is the SANE_CAP_* bit set.
type Capability int

const (
	CapSoftSelect Capability = 1 << iota
	CapHardSelect
	CapSoftDetect
	CapEmulated
	CapAutomatic
	CapInactive
	CapAdvanced
)
