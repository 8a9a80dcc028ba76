package descry

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// DeviceUpdate is a device snapshot handed to recorders.
type DeviceUpdate struct {
	DeviceID   string
	Name       string
	Vendor     string
	Model      string
	Type       string
	Status     string
	Host       string
	LastError  string
	LastSeenAt time.Time
}

// JobRecord describes a job when it starts.
type JobRecord struct {
	JobUUID   string
	Number    int64
	DeviceID  string
	Device    string
	Host      string
	Status    string
	StartedAt time.Time
}

// JobUpdate describes the terminal state of a job.
type JobUpdate struct {
	Status         string
	Pages          int
	EndedAt        *time.Time
	ElapsedSeconds *int64
	ErrorMessage   string
}

// Recorder receives device and job transitions for auditing. Recorder errors
// are logged by the service and never fail the operation that produced them.
type Recorder interface {
	UpsertDevices(ctx context.Context, devices []DeviceUpdate) error
	CreateJob(ctx context.Context, rec *JobRecord) error
	UpdateJob(ctx context.Context, jobUUID string, upd *JobUpdate) error
}

type noopRecorder struct{}

func (noopRecorder) UpsertDevices(ctx context.Context, devices []DeviceUpdate) error { return nil }
func (noopRecorder) CreateJob(ctx context.Context, rec *JobRecord) error           { return nil }
func (noopRecorder) UpdateJob(ctx context.Context, jobUUID string, upd *JobUpdate) error {
	return nil
}

// MultiRecorder fans every call out to all recorders concurrently and
// returns the first error.
type MultiRecorder []Recorder

func (m MultiRecorder) UpsertDevices(ctx context.Context, devices []DeviceUpdate) error {
	return m.each(ctx, "upsert devices", func(ctx context.Context, r Recorder) error {
		return r.UpsertDevices(ctx, devices)
	})
}

func (m MultiRecorder) CreateJob(ctx context.Context, rec *JobRecord) error {
	return m.each(ctx, "create job", func(ctx context.Context, r Recorder) error {
		return r.CreateJob(ctx, rec)
	})
}

func (m MultiRecorder) UpdateJob(ctx context.Context, jobUUID string, upd *JobUpdate) error {
	return m.each(ctx, "update job", func(ctx context.Context, r Recorder) error {
		return r.UpdateJob(ctx, jobUUID, upd)
	})
}

func (m MultiRecorder) each(ctx context.Context, name string, fn func(context.Context, Recorder) error) error {
	var group errgroup.Group
	for _, r := range m {
		if r == nil {
			continue
		}
		goSafe(&group, "recorder "+name, func() error { return fn(ctx, r) })
	}
	return group.Wait()
}
