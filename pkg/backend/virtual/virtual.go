// Package virtual implements sane.Backend on top of a TOML device profile.
//
// It stands in for real hardware in tests, demos and integration setups:
// option tables (including options that only become active once another
// option holds a given value), frame parameters, generated or file backed
// pages, slow page delivery and mid-stream failures are all described in the
// profile.
package virtual

import (
	"context"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"iter"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/archivist-descry/descry/pkg/sane"
)

var (
	ErrUnknownDevice = errors.New("virtual: unknown device")
	ErrHandleClosed  = errors.New("virtual: handle closed")
	ErrUnknownOption = errors.New("virtual: unknown option")
	ErrInactive      = errors.New("virtual: option inactive")
	ErrReadOnly      = errors.New("virtual: option not settable")
	ErrFeederJam     = errors.New("virtual: document feeder jammed")
)

// Backend is a profile driven sane.Backend.
type Backend struct {
	profile *Profile

	mu          sync.Mutex
	initialized bool
	open        map[string]int
}

var _ sane.Backend = (*Backend)(nil)

// New builds a backend from a parsed profile.
func New(profile *Profile) *Backend {
	return &Backend{profile: profile, open: make(map[string]int)}
}

// NewFromFile loads path (or the embedded profile when empty) and builds a
// backend from it.
func NewFromFile(path string) (*Backend, error) {
	p, err := LoadProfile(path)
	if err != nil {
		return nil, err
	}
	return New(p), nil
}

func (b *Backend) Init(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	return b.profile.Version, nil
}

func (b *Backend) Devices(ctx context.Context) ([]sane.Device, error) {
	out := make([]sane.Device, 0, len(b.profile.Devices))
	for _, dev := range b.profile.Devices {
		out = append(out, sane.Device{
			Name:   dev.Name,
			Vendor: dev.Vendor,
			Model:  dev.Model,
			Type:   dev.Type,
		})
	}
	return out, nil
}

func (b *Backend) Open(ctx context.Context, name string) (sane.Handle, error) {
	dev := b.device(name)
	if dev == nil {
		return nil, errors.Wrapf(ErrUnknownDevice, "open %q", name)
	}
	if dev.FailOpen {
		return nil, errors.Errorf("virtual: open %q: device not responding", name)
	}
	values := make(map[string]any, len(dev.Options))
	for _, opt := range dev.Options {
		if opt.Name != "" {
			values[opt.Name] = opt.Value
		}
	}
	b.mu.Lock()
	b.open[name]++
	b.mu.Unlock()
	log.Debug().Str("device", name).Msg("virtual device opened")
	return &handle{backend: b, dev: dev, values: values}, nil
}

func (b *Backend) Exit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
	return nil
}

// OpenHandles reports how many handles of device name are currently open.
func (b *Backend) OpenHandles(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open[name]
}

func (b *Backend) device(name string) *DeviceProfile {
	for i := range b.profile.Devices {
		if b.profile.Devices[i].Name == name {
			return &b.profile.Devices[i]
		}
	}
	return nil
}

func (b *Backend) release(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open[name] > 0 {
		b.open[name]--
	}
}

type handle struct {
	backend *Backend
	dev     *DeviceProfile

	mu     sync.Mutex
	values map[string]any
	closed bool
}

func (h *handle) Options(ctx context.Context) ([]sane.Option, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	out := make([]sane.Option, 0, len(h.dev.Options))
	for i, opt := range h.dev.Options {
		out = append(out, sane.Option{
			Index:      i,
			Name:       opt.Name,
			Title:      opt.Title,
			Desc:       opt.Desc,
			Type:       sane.ValueType(opt.Type),
			Unit:       sane.Unit(opt.Unit),
			Size:       opt.Size,
			Cap:        h.capLocked(opt),
			Constraint: opt.constraint(),
		})
	}
	return out, nil
}

func (h *handle) Value(ctx context.Context, name string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	opt, ok := h.optionLocked(name)
	if !ok {
		return nil, errors.Wrapf(ErrUnknownOption, "get %q", name)
	}
	if h.capLocked(opt)&sane.CapInactive != 0 {
		return nil, errors.Wrapf(ErrInactive, "get %q", name)
	}
	return h.values[name], nil
}

func (h *handle) SetValue(ctx context.Context, name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	opt, ok := h.optionLocked(name)
	if !ok {
		return errors.Wrapf(ErrUnknownOption, "set %q", name)
	}
	c := h.capLocked(opt)
	if c&sane.CapInactive != 0 {
		return errors.Wrapf(ErrInactive, "set %q", name)
	}
	if c&sane.CapSoftSelect == 0 {
		return errors.Wrapf(ErrReadOnly, "set %q", name)
	}
	h.values[name] = value
	return nil
}

func (h *handle) Parameters(ctx context.Context) (sane.Parameters, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return sane.Parameters{}, ErrHandleClosed
	}
	p := h.dev.Parameters
	return sane.Parameters{
		Format:        p.Format,
		LastFrame:     p.LastFrame,
		PixelsPerLine: p.PixelsPerLine,
		Lines:         p.Lines,
		Depth:         p.Depth,
		BytesPerLine:  p.BytesPerLine,
	}, nil
}

func (h *handle) MultiScan(ctx context.Context) iter.Seq2[image.Image, error] {
	return func(yield func(image.Image, error) bool) {
		total := h.dev.Pages
		if len(h.dev.PageFiles) > 0 {
			total = len(h.dev.PageFiles)
		}
		for page := 1; page <= total; page++ {
			if err := h.wait(ctx); err != nil {
				yield(nil, err)
				return
			}
			if h.isClosed() {
				yield(nil, ErrHandleClosed)
				return
			}
			if h.dev.FailAtPage == page {
				yield(nil, errors.Wrapf(ErrFeederJam, "page %d", page))
				return
			}
			img, err := h.page(page)
			if !yield(img, err) || err != nil {
				return
			}
		}
	}
}

func (h *handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.backend.release(h.dev.Name)
	log.Debug().Str("device", h.dev.Name).Msg("virtual device closed")
	return nil
}

func (h *handle) wait(ctx context.Context) error {
	if h.dev.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(h.dev.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (h *handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *handle) page(n int) (image.Image, error) {
	if len(h.dev.PageFiles) > 0 {
		path := h.dev.PageFiles[n-1]
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Wrapf(err, "virtual: page %d", n)
		}
		defer f.Close()
		img, _, err := image.Decode(f)
		if err != nil {
			return nil, errors.Wrapf(err, "virtual: decode page %d", n)
		}
		return img, nil
	}
	w, ht := h.dev.PageWidth, h.dev.PageHeight
	if w <= 0 {
		w = 85
	}
	if ht <= 0 {
		ht = 110
	}
	img := image.NewGray(image.Rect(0, 0, w, ht))
	shade := color.Gray{Y: uint8(255 - (n*16)%256)}
	for y := 0; y < ht; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, shade)
		}
	}
	return img, nil
}

func (h *handle) optionLocked(name string) (OptionProfile, bool) {
	for _, opt := range h.dev.Options {
		if opt.Name != "" && opt.Name == name {
			return opt, true
		}
	}
	return OptionProfile{}, false
}

// capLocked returns the capability bits with the inactive flag derived from
// active_when rules when the option has any.
func (h *handle) capLocked(opt OptionProfile) sane.Capability {
	c := sane.Capability(opt.Cap)
	if len(opt.ActiveWhen) == 0 {
		return c
	}
	active := true
	for name, allowed := range opt.ActiveWhen {
		if !contains(allowed, h.values[name]) {
			active = false
			break
		}
	}
	if active {
		return c &^ sane.CapInactive
	}
	return c | sane.CapInactive
}

// contains matches v against values. Numbers compare by value since profile
// values decode as int64 or float64 while callers set int or float64.
func contains(values []any, v any) bool {
	for _, candidate := range values {
		if sameValue(candidate, v) {
			return true
		}
	}
	return false
}

func sameValue(a, b any) bool {
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum || bNum {
		return aNum && bNum && af == bf
	}
	return a == b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
