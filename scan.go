package descry

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/archivist-descry/descry/pkg/sane"
)

// scanTask is the handle of one background scan. done is closed after the
// job reached a terminal status and the device left Scanning.
type scanTask struct {
	job    *job
	handle sane.Handle
	done   chan struct{}
	// detached is set under the device mutex when the device was disabled
	// while the scan ran. The task then owns and closes the handle.
	detached bool
}

// startScan moves an idle device to Scanning and starts acquisition in the
// background. Only precondition failures are returned; acquisition errors end
// up on the job.
func (s *Service) startScan(dev *device) (*job, error) {
	s.lifeMu.Lock()
	if s.closing > 0 {
		s.lifeMu.Unlock()
		return nil, errors.Wrapf(ErrNotEnabled, "device %s: service is closing", dev.id)
	}
	s.background.Add(1)
	s.lifeMu.Unlock()

	dev.mu.Lock()
	if dev.status == StatusScanning {
		dev.mu.Unlock()
		s.background.Done()
		return nil, errors.Wrapf(ErrDeviceBusy, "device %s is scanning", dev.id)
	}
	if dev.handle == nil || !dev.status.idle() {
		dev.mu.Unlock()
		s.background.Done()
		return nil, errors.Wrapf(ErrNotEnabled, "device %s", dev.id)
	}
	now := time.Now()
	j, evicted := dev.jobs.create(dev.id, now)
	task := &scanTask{job: j, handle: dev.handle, done: make(chan struct{})}
	dev.current = j
	dev.task = task
	dev.setStatusLocked(StatusScanning)
	dev.mu.Unlock()

	for _, old := range evicted {
		log.Debug().Str("device", dev.name).Int64("job", old.number).Msg("job evicted from history")
	}
	log.Info().Str("device", dev.name).Int64("job", j.number).Msg("scan started")
	s.metrics.ScanStarted()
	s.syncDeviceGauge()

	if err := s.recorder.CreateJob(context.Background(), &JobRecord{
		JobUUID:   j.uuid,
		Number:    j.number,
		DeviceID:  dev.id,
		Device:    dev.name,
		Host:      s.host,
		Status:    string(JobStarted),
		StartedAt: now,
	}); err != nil {
		log.Error().Err(err).Str("job", j.uuid).Msg("recorder create job failed")
	}

	go s.runScan(dev, task)
	return j, nil
}

func (s *Service) runScan(dev *device, task *scanTask) {
	defer s.background.Done()
	defer close(task.done)

	j := task.job
	err := callSafe("scan "+dev.name, func() error {
		return s.acquire(dev, task)
	})
	end := time.Now()
	if err != nil {
		if ferr := j.fail(end, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("record scan failure")
		}
	} else if cerr := j.complete(end); cerr != nil {
		log.Error().Err(cerr).Msg("record scan completion")
	}

	s.finishScan(dev, task)

	info := j.Info()
	elapsed := end.Sub(info.StartedAt)
	elapsedSecs := int64(elapsed.Seconds())
	s.metrics.ScanFinished(string(info.Status), elapsed)
	s.syncDeviceGauge()
	if recErr := s.recorder.UpdateJob(context.Background(), j.uuid, &JobUpdate{
		Status:         string(info.Status),
		Pages:          info.PageCount,
		EndedAt:        &end,
		ElapsedSeconds: &elapsedSecs,
		ErrorMessage:   info.Error,
	}); recErr != nil {
		log.Error().Err(recErr).Str("job", j.uuid).Msg("recorder update job failed")
	}

	if err != nil {
		log.Error().Err(err).Str("device", dev.name).Int64("job", j.number).Int("pages", info.PageCount).Msg("scan failed")
	} else {
		log.Info().Str("device", dev.name).Int64("job", j.number).Int("pages", info.PageCount).Msg("scan finished")
	}
}

// acquire drains the backend page sequence into the job.
func (s *Service) acquire(dev *device, task *scanTask) error {
	for img, err := range task.handle.MultiScan(context.Background()) {
		if err != nil {
			return backendErr("scan", dev.name, err)
		}
		n, err := task.job.appendPage(img)
		if err != nil {
			return err
		}
		s.metrics.PageAcquired()
		log.Debug().Str("device", dev.name).Int64("job", task.job.number).Int("page", n).Msg("page acquired")
	}
	return nil
}

// finishScan returns the device to Completed, or closes the handle when the
// device was disabled meanwhile.
func (s *Service) finishScan(dev *device, task *scanTask) {
	dev.mu.Lock()
	if dev.task == task {
		dev.task = nil
	}
	detached := task.detached
	if !detached {
		dev.setStatusLocked(StatusCompleted)
	}
	dev.mu.Unlock()
	if detached {
		closeHandle(dev.name, task.handle)
	}
}
