package descry

import (
	"context"
	"errors"
	"image"
	"iter"
	"sync"

	"github.com/archivist-descry/descry/pkg/sane"
)

type stubBackend struct {
	devices []sane.Device
	openErr error
	initErr error

	mu      sync.Mutex
	handles []*stubHandle
	exited  bool
	// newHandle customizes every opened handle.
	newHandle func(name string) *stubHandle
}

func (b *stubBackend) Init(ctx context.Context) (string, error) {
	if b.initErr != nil {
		return "", b.initErr
	}
	return "stub-1.0", nil
}

func (b *stubBackend) Devices(ctx context.Context) ([]sane.Device, error) {
	out := make([]sane.Device, len(b.devices))
	copy(out, b.devices)
	return out, nil
}

func (b *stubBackend) Open(ctx context.Context, name string) (sane.Handle, error) {
	if b.openErr != nil {
		return nil, b.openErr
	}
	h := &stubHandle{pages: 1}
	if b.newHandle != nil {
		h = b.newHandle(name)
	}
	b.mu.Lock()
	b.handles = append(b.handles, h)
	b.mu.Unlock()
	return h, nil
}

func (b *stubBackend) Exit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exited = true
	return nil
}

func (b *stubBackend) lastHandle() *stubHandle {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.handles) == 0 {
		return nil
	}
	return b.handles[len(b.handles)-1]
}

// stubHandle delivers pages blank pages. When gate is set each page waits
// for a receive on it. failAt makes the sequence fail at that page; panicAt
// makes it panic.
type stubHandle struct {
	pages   int
	gate    chan struct{}
	failAt  int
	panicAt int

	mu     sync.Mutex
	closed bool
}

func (h *stubHandle) Options(ctx context.Context) ([]sane.Option, error) {
	return []sane.Option{{Index: 0, Name: "resolution", Type: sane.TypeInt, Cap: sane.CapSoftSelect | sane.CapSoftDetect}}, nil
}

func (h *stubHandle) Value(ctx context.Context, name string) (any, error) {
	return 300, nil
}

func (h *stubHandle) SetValue(ctx context.Context, name string, value any) error {
	return errors.New("stub: device rejected value")
}

func (h *stubHandle) Parameters(ctx context.Context) (sane.Parameters, error) {
	return sane.Parameters{Format: "gray", LastFrame: true, PixelsPerLine: 4, Lines: 4, Depth: 8, BytesPerLine: 4}, nil
}

func (h *stubHandle) MultiScan(ctx context.Context) iter.Seq2[image.Image, error] {
	return func(yield func(image.Image, error) bool) {
		for page := 1; page <= h.pages; page++ {
			if h.gate != nil {
				<-h.gate
			}
			if page == h.panicAt {
				panic("stub: driver crashed")
			}
			if page == h.failAt {
				yield(nil, errors.New("stub: paper jam"))
				return
			}
			if !yield(image.NewGray(image.Rect(0, 0, 4, 4)), nil) {
				return
			}
		}
	}
}

func (h *stubHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *stubHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type stubRecorder struct {
	mu      sync.Mutex
	devices []DeviceUpdate
	created []JobRecord
	updated map[string]JobUpdate
	err     error
}

func (r *stubRecorder) UpsertDevices(ctx context.Context, devices []DeviceUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = append(r.devices, devices...)
	return r.err
}

func (r *stubRecorder) CreateJob(ctx context.Context, rec *JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created = append(r.created, *rec)
	return r.err
}

func (r *stubRecorder) UpdateJob(ctx context.Context, jobUUID string, upd *JobUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updated == nil {
		r.updated = make(map[string]JobUpdate)
	}
	r.updated[jobUUID] = *upd
	return r.err
}

func oneDeviceBackend() *stubBackend {
	return &stubBackend{devices: []sane.Device{{Name: "stub:0", Vendor: "Stub", Model: "S1", Type: "flatbed"}}}
}
