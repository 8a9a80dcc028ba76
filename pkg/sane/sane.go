// Package sane describes the contract descry consumes from a scanner driver.
//
// The types mirror what a SANE frontend sees: a flat device list, positional
// option descriptors with a loosely typed constraint, frame parameters and a
// lazy page sequence. Nothing in this package is exposed past the descry
// facade; callers only ever see the normalized forms from pkg/options.
package sane

import (
	"context"
	"image"
	"iter"
)

// Device is one enumeration record: native name, vendor, model and type.
type Device struct {
	Name   string
	Vendor string
	Model  string
	Type   string
}

// Option is a raw option descriptor as reported by the driver.
//
// Constraint is one of:
//   - nil: no constraint
//   - Range: a (min, max, step) tuple
//   - []any: an enumerated word or string list
type Option struct {
	Index      int
	Name       string
	Title      string
	Desc       string
	Type       ValueType
	Unit       Unit
	Size       int
	Cap        Capability
	Constraint any
}

// Active reports whether the driver considers the option applicable.
func (o Option) Active() bool {
	return o.Cap&CapInactive == 0
}

// Settable reports whether the option may be set by software.
func (o Option) Settable() bool {
	return o.Cap&CapSoftSelect != 0
}

// Range is the three element numeric tuple constraint.
type Range [3]float64

func (r Range) Min() float64  { return r[0] }
func (r Range) Max() float64  { return r[1] }
func (r Range) Step() float64 { return r[2] }

// Parameters is the frame description for the next acquisition.
type Parameters struct {
	Format        string
	LastFrame     bool
	PixelsPerLine int
	Lines         int
	Depth         int
	BytesPerLine  int
}

// Handle is an open device.
type Handle interface {
	// Options returns the current option table. The table can change shape
	// after any SetValue call.
	Options(ctx context.Context) ([]Option, error)
	// Value reads the current value of an active option.
	Value(ctx context.Context, name string) (any, error)
	// SetValue writes an option value.
	SetValue(ctx context.Context, name string, value any) error
	Parameters(ctx context.Context) (Parameters, error)
	// MultiScan acquires pages until the source is exhausted. A non-nil error
	// ends the sequence.
	MultiScan(ctx context.Context) iter.Seq2[image.Image, error]
	Close() error
}

// Backend enumerates and opens devices.
type Backend interface {
	// Init initializes the driver and returns its version string.
	Init(ctx context.Context) (string, error)
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, name string) (Handle, error)
	Exit() error
}
