// Package options translates backend option descriptors into a normalized,
// backend independent schema and validates values against it.
//
// Translation is done fresh on every read: selecting one option can add,
// remove or reshape others, so nothing here caches an option table.
package options

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/archivist-descry/descry/pkg/sane"
)

// Option is the normalized form of one device option.
//
// Value is populated iff Active is true. A nil Value on an inactive option
// means "not applicable", never a default.
type Option struct {
	Index       int        `json:"index"`
	Key         string     `json:"propertyName"`
	BackendName string     `json:"-"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        string     `json:"type"`
	Unit        string     `json:"unit"`
	Size        int        `json:"size"`
	Active      bool       `json:"active"`
	Settable    bool       `json:"settable"`
	Constraint  Constraint `json:"constraints"`
	Value       any        `json:"value"`
}

// ValueReader reads the current value of an option by backend name.
type ValueReader func(name string) (any, error)

// Normalize turns a backend option name into a safe identifier.
func Normalize(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

// Translate converts one raw option. read is only called for active,
// named, value carrying options.
func Translate(raw sane.Option, read ValueReader) (Option, error) {
	opt := Option{
		Index:       raw.Index,
		Key:         Normalize(raw.Name),
		BackendName: raw.Name,
		Name:        raw.Title,
		Description: raw.Desc,
		Type:        raw.Type.String(),
		Unit:        raw.Unit.String(),
		Size:        raw.Size,
		Active:      raw.Active(),
		Settable:    raw.Settable(),
		Constraint:  TranslateConstraint(raw.Constraint),
	}
	if !opt.Active || raw.Name == "" || !carriesValue(raw.Type) || read == nil {
		return opt, nil
	}
	value, err := read(raw.Name)
	if err != nil {
		return Option{}, errors.Wrapf(err, "read option %s", raw.Name)
	}
	opt.Value = value
	return opt, nil
}

// TranslateAll converts a full option table, preserving backend order.
func TranslateAll(raws []sane.Option, read ValueReader) ([]Option, error) {
	out := make([]Option, 0, len(raws))
	for _, raw := range raws {
		opt, err := Translate(raw, read)
		if err != nil {
			return nil, err
		}
		out = append(out, opt)
	}
	return out, nil
}

// Find returns the option whose normalized key or backend name matches.
func Find(opts []Option, name string) (Option, bool) {
	if strings.TrimSpace(name) == "" {
		return Option{}, false
	}
	key := Normalize(name)
	for _, opt := range opts {
		if opt.Key == "" {
			continue
		}
		if opt.Key == key || opt.BackendName == name {
			return opt, true
		}
	}
	return Option{}, false
}

func carriesValue(t sane.ValueType) bool {
	return t != sane.TypeGroup && t != sane.TypeButton
}
