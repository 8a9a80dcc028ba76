package descry

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/archivist-descry/descry/pkg/sane"
)

// registry tracks the devices of the last enumeration. Lock order is
// registry.mu before device.mu.
type registry struct {
	backend sane.Backend
	maxJobs int

	mu         sync.RWMutex
	devices    []*device
	byID       map[string]*device
	enumerated bool
}

func newRegistry(backend sane.Backend, maxJobs int) *registry {
	return &registry{
		backend: backend,
		maxJobs: maxJobs,
		byID:    make(map[string]*device),
	}
}

// refresh disables every known device, closes idle handles and enumerates
// again. Without force an existing enumeration is reused; fresh reports
// whether a new enumeration happened.
func (r *registry) refresh(ctx context.Context, force bool) (devices []*device, fresh bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.enumerated && !force {
		return r.listLocked(), false, nil
	}
	r.invalidateLocked()

	raws, err := r.backend.Devices(ctx)
	if err != nil {
		return nil, false, backendErr("enumerate", "", err)
	}
	now := time.Now()
	for _, raw := range raws {
		if strings.TrimSpace(raw.Name) == "" {
			log.Warn().Str("vendor", raw.Vendor).Str("model", raw.Model).Msg("skip device without name")
			continue
		}
		dev := newDevice(uuid.NewString(), raw, r.maxJobs, now)
		r.devices = append(r.devices, dev)
		r.byID[dev.id] = dev
		log.Info().
			Str("id", dev.id).
			Str("device", dev.name).
			Str("vendor", dev.vendor).
			Str("model", dev.model).
			Msg("device enumerated")
	}
	r.enumerated = true
	return r.listLocked(), true, nil
}

// invalidateLocked forgets all devices. Running scans keep their handle and
// close it when they end.
func (r *registry) invalidateLocked() {
	for _, dev := range r.devices {
		dev.mu.Lock()
		h := dev.releaseLocked()
		dev.mu.Unlock()
		closeHandle(dev.name, h)
	}
	r.devices = nil
	r.byID = make(map[string]*device)
	r.enumerated = false
}

func (r *registry) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invalidateLocked()
}

func (r *registry) list() []*device {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *registry) listLocked() []*device {
	out := make([]*device, len(r.devices))
	copy(out, r.devices)
	return out
}

func (r *registry) lookup(id string) (*device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dev, ok := r.byID[id]; ok {
		return dev, nil
	}
	return nil, errors.Wrapf(ErrNotFound, "device %s", id)
}

// resolve accepts a device id or a backend device name.
func (r *registry) resolve(ref string) (*device, error) {
	ref = strings.TrimSpace(ref)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if dev, ok := r.byID[ref]; ok {
		return dev, nil
	}
	for _, dev := range r.devices {
		if dev.name == ref {
			return dev, nil
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "device %s", ref)
}

// enable opens the backend handle. An already open device is left as is.
func (r *registry) enable(ctx context.Context, dev *device) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.handle != nil {
		return nil
	}
	if dev.task != nil {
		return errors.Wrapf(ErrDeviceBusy, "device %s is still finishing a scan", dev.id)
	}
	h, err := r.backend.Open(ctx, dev.name)
	if err != nil {
		dev.lastErr = err.Error()
		dev.setStatusLocked(StatusError)
		log.Error().Err(err).Str("device", dev.name).Msg("open device failed")
		return backendErr("open", dev.name, err)
	}
	dev.handle = h
	dev.lastErr = ""
	dev.setStatusLocked(StatusEnabled)
	log.Info().Str("id", dev.id).Str("device", dev.name).Msg("device enabled")
	return nil
}

// disable closes the handle and forces the device to Disabled.
func (r *registry) disable(dev *device) {
	dev.mu.Lock()
	h := dev.releaseLocked()
	dev.mu.Unlock()
	closeHandle(dev.name, h)
	log.Info().Str("id", dev.id).Str("device", dev.name).Msg("device disabled")
}

func (r *registry) statusCounts() map[string]int {
	counts := make(map[string]int, len(deviceStatuses))
	for _, dev := range r.list() {
		dev.mu.Lock()
		counts[string(dev.status)]++
		dev.mu.Unlock()
	}
	return counts
}

func closeHandle(name string, h sane.Handle) {
	if h == nil {
		return
	}
	if err := h.Close(); err != nil {
		log.Warn().Err(err).Str("device", name).Msg("close device handle failed")
	}
}
