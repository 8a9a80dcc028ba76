package descry

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
)

type panicRecorder struct{ noopRecorder }

func (panicRecorder) CreateJob(ctx context.Context, rec *JobRecord) error {
	panic("recorder bug")
}

func TestMultiRecorderFansOut(t *testing.T) {
	ctx := context.Background()
	a, b := &stubRecorder{}, &stubRecorder{}
	multi := MultiRecorder{a, nil, b}

	if err := multi.UpsertDevices(ctx, []DeviceUpdate{{DeviceID: "d1", Status: "disabled"}}); err != nil {
		t.Fatalf("UpsertDevices returned error: %v", err)
	}
	if err := multi.CreateJob(ctx, &JobRecord{JobUUID: "j1", StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateJob returned error: %v", err)
	}
	if err := multi.UpdateJob(ctx, "j1", &JobUpdate{Status: "completed", Pages: 2}); err != nil {
		t.Fatalf("UpdateJob returned error: %v", err)
	}
	for i, r := range []*stubRecorder{a, b} {
		if len(r.devices) != 1 || len(r.created) != 1 || r.updated["j1"].Pages != 2 {
			t.Fatalf("recorder %d missed calls: %#v", i, r)
		}
	}
}

func TestMultiRecorderReportsErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	multi := MultiRecorder{&stubRecorder{}, &stubRecorder{err: boom}}
	if err := multi.CreateJob(ctx, &JobRecord{JobUUID: "j1"}); !errors.Is(err, boom) {
		t.Fatalf("expected disk full, got %v", err)
	}

	multi = MultiRecorder{panicRecorder{}}
	if err := multi.CreateJob(ctx, &JobRecord{JobUUID: "j1"}); err == nil {
		t.Fatal("expected panic to surface as error")
	}
}
