package descry

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error taxonomy returned by Service. Match with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrDeviceBusy         = errors.New("device busy")
	ErrBackend            = errors.New("backend error")
	ErrUnknownOption      = errors.New("unknown option")
	ErrInvalidOptionValue = errors.New("invalid option value")
	ErrNotEnabled         = errors.New("device not enabled")
	ErrOptionUnsettable   = errors.New("option not settable")

	// ErrJobTerminal reports a transition attempted on a completed or failed
	// job. It indicates a bug, not a user error.
	ErrJobTerminal = errors.New("job already terminal")
)

// BackendError wraps a driver failure. It matches ErrBackend and unwraps to
// the driver error.
type BackendError struct {
	Op     string
	Device string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Device == "" {
		return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("backend %s %s: %v", e.Op, e.Device, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }

func backendErr(op, device string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Op: op, Device: device, Err: err}
}

// Kind classifies an error for callers that map errors to status codes.
type Kind int

const (
	KindNone Kind = iota
	KindNotFound
	KindDeviceBusy
	KindBackend
	KindUnknownOption
	KindInvalidOptionValue
	KindNotEnabled
	KindOptionUnsettable
	KindInternal
)

var kindNames = map[Kind]string{
	KindNone:               "none",
	KindNotFound:           "not_found",
	KindDeviceBusy:         "device_busy",
	KindBackend:            "backend_error",
	KindUnknownOption:      "unknown_option",
	KindInvalidOptionValue: "invalid_option_value",
	KindNotEnabled:         "not_enabled",
	KindOptionUnsettable:   "option_unsettable",
	KindInternal:           "internal",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

var kindOrder = []struct {
	target error
	kind   Kind
}{
	{ErrNotFound, KindNotFound},
	{ErrDeviceBusy, KindDeviceBusy},
	{ErrUnknownOption, KindUnknownOption},
	{ErrInvalidOptionValue, KindInvalidOptionValue},
	{ErrOptionUnsettable, KindOptionUnsettable},
	{ErrNotEnabled, KindNotEnabled},
	{ErrBackend, KindBackend},
}

// KindOf returns the taxonomy kind of err. Unclassified errors are
// KindInternal; nil is KindNone.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.target) {
			return k.kind
		}
	}
	return KindInternal
}
