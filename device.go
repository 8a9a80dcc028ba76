package descry

import (
	"sync"
	"time"

	"github.com/archivist-descry/descry/pkg/sane"
)

// DeviceInfo is a point in time copy of a registered device.
type DeviceInfo struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Vendor     string       `json:"vendor"`
	Model      string       `json:"model"`
	Type       string       `json:"type"`
	Status     DeviceStatus `json:"status"`
	CurrentJob *int64       `json:"currentJob,omitempty"`
	JobCount   int          `json:"jobCount"`
	LastError  string       `json:"lastError,omitempty"`
}

// device is one registry entry. Identity fields are immutable; everything
// below mu is guarded by it.
type device struct {
	id     string
	name   string
	vendor string
	model  string
	kind   string

	mu        sync.Mutex
	status    DeviceStatus
	handle    sane.Handle
	jobs      ledger
	current   *job
	task      *scanTask
	lastErr   string
	updatedAt time.Time
}

func newDevice(id string, raw sane.Device, maxJobs int, now time.Time) *device {
	return &device{
		id:        id,
		name:      raw.Name,
		vendor:    raw.Vendor,
		model:     raw.Model,
		kind:      raw.Type,
		status:    StatusDisabled,
		jobs:      ledger{max: maxJobs},
		updatedAt: now,
	}
}

func (d *device) info() DeviceInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.infoLocked()
}

func (d *device) infoLocked() DeviceInfo {
	info := DeviceInfo{
		ID:        d.id,
		Name:      d.name,
		Vendor:    d.vendor,
		Model:     d.model,
		Type:      d.kind,
		Status:    d.status,
		JobCount:  len(d.jobs.jobs),
		LastError: d.lastErr,
	}
	if d.current != nil {
		n := d.current.number
		info.CurrentJob = &n
	}
	return info
}

func (d *device) update(host string) DeviceUpdate {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updateLocked(host)
}

func (d *device) updateLocked(host string) DeviceUpdate {
	return DeviceUpdate{
		DeviceID:   d.id,
		Name:       d.name,
		Vendor:     d.vendor,
		Model:      d.model,
		Type:       d.kind,
		Status:     string(d.status),
		Host:       host,
		LastError:  d.lastErr,
		LastSeenAt: d.updatedAt,
	}
}

func (d *device) setStatusLocked(status DeviceStatus) {
	d.status = status
	d.updatedAt = time.Now()
}

// releaseLocked drops the device's claim on its handle and forces Disabled.
// When a scan is running the task keeps the handle and closes it when it
// ends; otherwise the handle is returned for the caller to close.
func (d *device) releaseLocked() sane.Handle {
	h := d.handle
	d.handle = nil
	d.setStatusLocked(StatusDisabled)
	if d.task != nil {
		d.task.detached = true
		return nil
	}
	return h
}
