package feishu

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/archivist-descry/descry"
	"github.com/archivist-descry/descry/internal/config"
)

var _ descry.Recorder = (*Recorder)(nil)

// JobFields maps job attributes to bitable column names.
type JobFields struct {
	JobUUID   string
	Number    string
	Device    string
	DeviceID  string
	Host      string
	Status    string
	Pages     string
	StartedAt string
	EndedAt   string
	Elapsed   string
	Error     string
}

// DefaultJobFields is the column layout of the built-in job table template.
var DefaultJobFields = JobFields{
	JobUUID:   "JobUUID",
	Number:    "JobNumber",
	Device:    "Device",
	DeviceID:  "DeviceID",
	Host:      "Host",
	Status:    "Status",
	Pages:     "Pages",
	StartedAt: "StartedAt",
	EndedAt:   "EndedAt",
	Elapsed:   "ElapsedSeconds",
	Error:     "Error",
}

// Recorder writes one bitable row per scan job and updates it when the job
// ends. Device snapshots are not mirrored.
type Recorder struct {
	api    recordAPI
	ref    BitableRef
	fields JobFields

	mu      sync.Mutex
	records map[string]string // job uuid -> record id
}

// NewRecorder returns a recorder writing to the table behind tableURL.
func NewRecorder(appID, appSecret, baseURL, tableURL string) (*Recorder, error) {
	if strings.TrimSpace(appID) == "" || strings.TrimSpace(appSecret) == "" {
		return nil, errors.New("feishu: app id and secret are required")
	}
	ref, err := ParseBitableURL(tableURL)
	if err != nil {
		return nil, err
	}
	return newRecorder(newSDKRecordAPI(appID, appSecret, baseURL), ref), nil
}

// NewRecorderFromEnv builds a recorder from DESCRY_JOB_BITABLE_URL and the
// FEISHU_* credentials. It returns nil without error when no table is set.
func NewRecorderFromEnv() (*Recorder, error) {
	tableURL := config.String(config.EnvJobBitableURL, "")
	if tableURL == "" {
		return nil, nil
	}
	return NewRecorder(
		config.String(config.EnvFeishuAppID, ""),
		config.String(config.EnvFeishuAppSecret, ""),
		config.String(config.EnvFeishuBaseURL, defaultBaseURL),
		tableURL,
	)
}

func newRecorder(api recordAPI, ref BitableRef) *Recorder {
	return &Recorder{
		api:     api,
		ref:     ref,
		fields:  DefaultJobFields,
		records: make(map[string]string),
	}
}

// WithFields overrides the column names. Empty names keep the default.
func (r *Recorder) WithFields(fields JobFields) *Recorder {
	r.fields = mergeFields(DefaultJobFields, fields)
	return r
}

func (r *Recorder) UpsertDevices(ctx context.Context, devices []descry.DeviceUpdate) error {
	return nil
}

func (r *Recorder) CreateJob(ctx context.Context, rec *descry.JobRecord) error {
	if r == nil || rec == nil {
		return nil
	}
	r.mu.Lock()
	_, exists := r.records[rec.JobUUID]
	r.mu.Unlock()
	if exists {
		return nil
	}

	f := r.fields
	row := map[string]any{
		f.JobUUID:   rec.JobUUID,
		f.Number:    rec.Number,
		f.Device:    rec.Device,
		f.DeviceID:  rec.DeviceID,
		f.Host:      rec.Host,
		f.Status:    rec.Status,
		f.Pages:     0,
		f.StartedAt: rec.StartedAt.UnixMilli(),
	}
	recordID, err := r.api.Create(ctx, r.ref.AppToken, r.ref.TableID, row)
	if err != nil {
		return errors.Wrapf(err, "feishu: record job %s failed", rec.JobUUID)
	}
	r.mu.Lock()
	r.records[rec.JobUUID] = recordID
	r.mu.Unlock()
	log.Debug().Str("job", rec.JobUUID).Str("record_id", recordID).Msg("feishu: job row created")
	return nil
}

func (r *Recorder) UpdateJob(ctx context.Context, jobUUID string, upd *descry.JobUpdate) error {
	if r == nil || upd == nil {
		return nil
	}
	r.mu.Lock()
	recordID, ok := r.records[jobUUID]
	r.mu.Unlock()
	if !ok {
		return errors.Errorf("feishu: job %s has no record", jobUUID)
	}

	f := r.fields
	row := map[string]any{
		f.Status: upd.Status,
		f.Pages:  upd.Pages,
	}
	if upd.EndedAt != nil {
		row[f.EndedAt] = upd.EndedAt.UnixMilli()
	}
	if upd.ElapsedSeconds != nil {
		row[f.Elapsed] = *upd.ElapsedSeconds
	}
	if upd.ErrorMessage != "" {
		row[f.Error] = upd.ErrorMessage
	}
	if err := r.api.Update(ctx, r.ref.AppToken, r.ref.TableID, recordID, row); err != nil {
		return errors.Wrapf(err, "feishu: update job %s failed", jobUUID)
	}
	// terminal rows are never touched again
	r.mu.Lock()
	delete(r.records, jobUUID)
	r.mu.Unlock()
	return nil
}

func mergeFields(base, override JobFields) JobFields {
	pick := func(def, v string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return JobFields{
		JobUUID:   pick(base.JobUUID, override.JobUUID),
		Number:    pick(base.Number, override.Number),
		Device:    pick(base.Device, override.Device),
		DeviceID:  pick(base.DeviceID, override.DeviceID),
		Host:      pick(base.Host, override.Host),
		Status:    pick(base.Status, override.Status),
		Pages:     pick(base.Pages, override.Pages),
		StartedAt: pick(base.StartedAt, override.StartedAt),
		EndedAt:   pick(base.EndedAt, override.EndedAt),
		Elapsed:   pick(base.Elapsed, override.Elapsed),
		Error:     pick(base.Error, override.Error),
	}
}
