// Package descry manages scanner devices and scan jobs on top of a
// sane.Backend.
//
// A Service enumerates devices, opens and closes them, exposes their option
// tables in a normalized form and runs scans in the background. Every scan
// produces a job whose status, pages and error are queried by device id and
// job number. Errors returned by Service belong to a small taxonomy
// (ErrNotFound, ErrDeviceBusy, ErrBackend, ...) matched with errors.Is.
package descry

import (
	"context"
	"image"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/archivist-descry/descry/internal/metrics"
	"github.com/archivist-descry/descry/pkg/options"
	"github.com/archivist-descry/descry/pkg/sane"
)

// Parameters describes the frame the device will deliver.
type Parameters struct {
	Format        string `json:"format"`
	LastFrame     bool   `json:"lastFrame"`
	PixelsPerLine int    `json:"pixelsPerLine"`
	Lines         int    `json:"lines"`
	Depth         int    `json:"depth"`
	BytesPerLine  int    `json:"bytesPerLine"`
}

// Service is the entry point for device and job operations. It is safe for
// concurrent use; independent instances share nothing.
type Service struct {
	backend  sane.Backend
	registry *registry
	recorder Recorder
	metrics  *metrics.Collectors
	host     string

	initMu      sync.Mutex
	initialized bool
	version     string

	// lifeMu orders background.Add in startScan against background.Wait in
	// Close. No scan starts while a Close is in progress.
	lifeMu     sync.Mutex
	closing    int
	background sync.WaitGroup
}

// New builds a Service on backend. The backend is initialized lazily on the
// first operation that needs it.
func New(backend sane.Backend, cfg Config) (*Service, error) {
	if backend == nil {
		return nil, errors.New("backend cannot be nil")
	}
	if cfg.MaxJobs < 0 {
		return nil, errors.Errorf("invalid max jobs %d", cfg.MaxJobs)
	}
	s := &Service{
		backend:  backend,
		registry: newRegistry(backend, cfg.MaxJobs),
		recorder: cfg.Recorder,
		metrics:  cfg.Metrics,
		host:     hostID(),
	}
	if s.recorder == nil {
		s.recorder = noopRecorder{}
	}
	return s, nil
}

// Initialize (re)initializes the backend and forgets all devices.
func (s *Service) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if err := s.initLocked(ctx); err != nil {
		return err
	}
	s.registry.reset()
	s.syncDeviceGauge()
	return nil
}

func (s *Service) ensureInit(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	if s.initialized {
		return nil
	}
	return s.initLocked(ctx)
}

func (s *Service) initLocked(ctx context.Context) error {
	version, err := s.backend.Init(ctx)
	if err != nil {
		return backendErr("init", "", err)
	}
	s.version = version
	s.initialized = true
	log.Info().Str("version", version).Msg("backend initialized")
	return nil
}

// Version returns the backend version reported by the last initialization.
func (s *Service) Version() string {
	s.initMu.Lock()
	defer s.initMu.Unlock()
	return s.version
}

// DeviceList returns the known devices, enumerating on first use.
func (s *Service) DeviceList(ctx context.Context) ([]DeviceInfo, error) {
	return s.enumerate(ctx, false)
}

// Refresh disables all devices and enumerates again. Every returned device
// is Disabled and carries a fresh id.
func (s *Service) Refresh(ctx context.Context) ([]DeviceInfo, error) {
	return s.enumerate(ctx, true)
}

func (s *Service) enumerate(ctx context.Context, force bool) ([]DeviceInfo, error) {
	if err := s.ensureInit(ctx); err != nil {
		return nil, err
	}
	devs, fresh, err := s.registry.refresh(ctx, force)
	if err != nil {
		s.syncDeviceGauge()
		return nil, err
	}
	if fresh {
		s.recordDevices(ctx, devs...)
		s.syncDeviceGauge()
	}
	out := make([]DeviceInfo, 0, len(devs))
	for _, dev := range devs {
		out = append(out, dev.info())
	}
	return out, nil
}

// Device returns one device by id.
func (s *Service) Device(id string) (DeviceInfo, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return DeviceInfo{}, err
	}
	return dev.info(), nil
}

// Resolve returns a device by id or backend name, enumerating on first use.
func (s *Service) Resolve(ctx context.Context, ref string) (DeviceInfo, error) {
	if _, err := s.DeviceList(ctx); err != nil {
		return DeviceInfo{}, err
	}
	dev, err := s.registry.resolve(ref)
	if err != nil {
		return DeviceInfo{}, err
	}
	return dev.info(), nil
}

// OpenDevice opens the backend handle of a device. Opening an open device is
// a no-op.
func (s *Service) OpenDevice(ctx context.Context, id string) (DeviceInfo, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return DeviceInfo{}, err
	}
	err = s.registry.enable(ctx, dev)
	s.recordDevices(ctx, dev)
	s.syncDeviceGauge()
	if err != nil {
		return DeviceInfo{}, err
	}
	return dev.info(), nil
}

// CloseDevice closes the handle of a device and marks it Disabled. A scan
// in flight runs to its end and releases the handle afterwards.
func (s *Service) CloseDevice(ctx context.Context, id string) (DeviceInfo, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return DeviceInfo{}, err
	}
	s.registry.disable(dev)
	s.recordDevices(ctx, dev)
	s.syncDeviceGauge()
	return dev.info(), nil
}

// DeviceOptions reads the current option table of an open device.
func (s *Service) DeviceOptions(ctx context.Context, id string) ([]options.Option, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return nil, err
	}
	var out []options.Option
	err = withHandle(dev, func(h sane.Handle) error {
		out, err = readOptions(ctx, dev, h)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeviceParameters reads the frame parameters of an open device.
func (s *Service) DeviceParameters(ctx context.Context, id string) (Parameters, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return Parameters{}, err
	}
	var params Parameters
	err = withHandle(dev, func(h sane.Handle) error {
		raw, err := h.Parameters(ctx)
		if err != nil {
			return backendErr("parameters", dev.name, err)
		}
		params = Parameters{
			Format:        raw.Format,
			LastFrame:     raw.LastFrame,
			PixelsPerLine: raw.PixelsPerLine,
			Lines:         raw.Lines,
			Depth:         raw.Depth,
			BytesPerLine:  raw.BytesPerLine,
		}
		return nil
	})
	return params, err
}

// SetOption validates value against the named option and writes it to the
// device. name may be the normalized key or the backend name. It returns the
// option table read back after the change, since setting one option can
// reshape others.
func (s *Service) SetOption(ctx context.Context, id, name string, value any) ([]options.Option, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return nil, err
	}
	var out []options.Option
	err = withHandle(dev, func(h sane.Handle) error {
		opts, err := readOptions(ctx, dev, h)
		if err != nil {
			return err
		}
		opt, ok := options.Find(opts, name)
		if !ok {
			return errors.Wrapf(ErrUnknownOption, "%s on device %s", name, dev.id)
		}
		if !opt.Active || !opt.Settable {
			return errors.Wrapf(ErrOptionUnsettable, "%s on device %s", opt.Key, dev.id)
		}
		coerced, err := options.Validate(opt, value)
		if err != nil {
			return errors.Wrapf(ErrInvalidOptionValue, "%v", err)
		}
		if err := h.SetValue(ctx, opt.BackendName, coerced); err != nil {
			return backendErr("set "+opt.Key, dev.name, err)
		}
		log.Info().Str("device", dev.name).Str("option", opt.Key).Interface("value", coerced).Msg("option set")
		out, err = readOptions(ctx, dev, h)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Scan starts a scan on an idle open device and returns the new job at once.
// Acquisition failures are recorded on the job, not returned here.
func (s *Service) Scan(ctx context.Context, id string) (JobInfo, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return JobInfo{}, err
	}
	j, err := s.startScan(dev)
	if err != nil {
		return JobInfo{}, err
	}
	return j.Info(), nil
}

// JobList returns the job history of a device, most recent first.
func (s *Service) JobList(id string) ([]JobInfo, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return nil, err
	}
	dev.mu.Lock()
	jobs := dev.jobs.list()
	dev.mu.Unlock()
	out := make([]JobInfo, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Info())
	}
	return out, nil
}

// Job returns one job of a device.
func (s *Service) Job(id string, number int64) (JobInfo, error) {
	j, _, err := s.findJob(id, number)
	if err != nil {
		return JobInfo{}, err
	}
	return j.Info(), nil
}

// Page returns page n (counted from 1) of a job.
func (s *Service) Page(id string, number int64, n int) (image.Image, error) {
	j, _, err := s.findJob(id, number)
	if err != nil {
		return nil, err
	}
	return j.page(n)
}

// WaitJob blocks until the job is terminal and its device left Scanning, or
// ctx is done.
func (s *Service) WaitJob(ctx context.Context, id string, number int64) (JobInfo, error) {
	j, task, err := s.findJob(id, number)
	if err != nil {
		return JobInfo{}, err
	}
	if task != nil {
		select {
		case <-task.done:
		case <-ctx.Done():
			return j.Info(), ctx.Err()
		}
	}
	return j.Info(), nil
}

func (s *Service) findJob(id string, number int64) (*job, *scanTask, error) {
	dev, err := s.registry.lookup(id)
	if err != nil {
		return nil, nil, err
	}
	dev.mu.Lock()
	defer dev.mu.Unlock()
	j, ok := dev.jobs.find(number)
	if !ok {
		return nil, nil, errors.Wrapf(ErrNotFound, "job %d on device %s", number, id)
	}
	var task *scanTask
	if dev.task != nil && dev.task.job == j {
		task = dev.task
	}
	return j, task, nil
}

// Close waits for running scans, closes every open device and shuts the
// backend down. The Service may be initialized again afterwards.
func (s *Service) Close(ctx context.Context) error {
	s.lifeMu.Lock()
	s.closing++
	s.lifeMu.Unlock()
	defer func() {
		s.lifeMu.Lock()
		s.closing--
		s.lifeMu.Unlock()
	}()

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for running scans")
	}

	var group errgroup.Group
	for _, dev := range s.registry.list() {
		goSafe(&group, "close "+dev.name, func() error {
			s.registry.disable(dev)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		log.Warn().Err(err).Msg("close devices")
	}
	s.registry.reset()
	s.syncDeviceGauge()

	s.initMu.Lock()
	defer s.initMu.Unlock()
	if !s.initialized {
		return nil
	}
	s.initialized = false
	if err := s.backend.Exit(); err != nil {
		return backendErr("exit", "", err)
	}
	return nil
}

// withHandle runs fn with the device mutex held and the handle open and idle.
func withHandle(dev *device, fn func(sane.Handle) error) error {
	dev.mu.Lock()
	defer dev.mu.Unlock()
	if dev.status == StatusScanning {
		return errors.Wrapf(ErrDeviceBusy, "device %s is scanning", dev.id)
	}
	if dev.handle == nil {
		return errors.Wrapf(ErrNotEnabled, "device %s", dev.id)
	}
	return fn(dev.handle)
}

func readOptions(ctx context.Context, dev *device, h sane.Handle) ([]options.Option, error) {
	raws, err := h.Options(ctx)
	if err != nil {
		return nil, backendErr("options", dev.name, err)
	}
	opts, err := options.TranslateAll(raws, func(name string) (any, error) {
		return h.Value(ctx, name)
	})
	if err != nil {
		return nil, backendErr("options", dev.name, err)
	}
	return opts, nil
}

func (s *Service) recordDevices(ctx context.Context, devs ...*device) {
	if len(devs) == 0 {
		return
	}
	updates := make([]DeviceUpdate, 0, len(devs))
	for _, dev := range devs {
		updates = append(updates, dev.update(s.host))
	}
	if err := s.recorder.UpsertDevices(context.WithoutCancel(ctx), updates); err != nil {
		log.Error().Err(err).Int("devices", len(updates)).Msg("recorder upsert devices failed")
	}
}

func (s *Service) syncDeviceGauge() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetDevices(deviceStatuses, s.registry.statusCounts())
}
