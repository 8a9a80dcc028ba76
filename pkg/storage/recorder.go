package storage

import (
	"context"
	"database/sql"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/archivist-descry/descry"
)

var _ descry.Recorder = (*Store)(nil)

const insertSnapshot = `INSERT INTO device_snapshots
	(device_id, name, vendor, model, type, status, host, last_error, seen_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const insertJob = `INSERT INTO scan_jobs
	(job_uuid, number, device_id, device, host, status, started_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(job_uuid) DO NOTHING`

const updateJob = `UPDATE scan_jobs
	SET status = ?, pages = ?, ended_at = ?, elapsed_seconds = ?, error = ?
	WHERE job_uuid = ?`

// UpsertDevices appends one snapshot row per device.
func (s *Store) UpsertDevices(ctx context.Context, devices []descry.DeviceUpdate) error {
	if s == nil || s.db == nil || len(devices) == 0 {
		return nil
	}
	for _, d := range devices {
		seen := d.LastSeenAt
		if seen.IsZero() {
			seen = time.Now()
		}
		if _, err := s.execWithRetry(ctx, insertSnapshot,
			d.DeviceID, d.Name, d.Vendor, d.Model, d.Type, d.Status, d.Host, d.LastError, seen.UnixMilli(),
		); err != nil {
			return pkgerrors.Wrapf(err, "storage: insert snapshot of %s failed", d.Name)
		}
	}
	return nil
}

func (s *Store) CreateJob(ctx context.Context, rec *descry.JobRecord) error {
	if s == nil || s.db == nil || rec == nil {
		return nil
	}
	if _, err := s.execWithRetry(ctx, insertJob,
		rec.JobUUID, rec.Number, rec.DeviceID, rec.Device, rec.Host, rec.Status, rec.StartedAt.UnixMilli(),
	); err != nil {
		return pkgerrors.Wrapf(err, "storage: insert job %s failed", rec.JobUUID)
	}
	return nil
}

func (s *Store) UpdateJob(ctx context.Context, jobUUID string, upd *descry.JobUpdate) error {
	if s == nil || s.db == nil || upd == nil {
		return nil
	}
	var endedAt any
	if upd.EndedAt != nil {
		endedAt = upd.EndedAt.UnixMilli()
	}
	var elapsed any
	if upd.ElapsedSeconds != nil {
		elapsed = *upd.ElapsedSeconds
	}
	res, err := s.execWithRetry(ctx, updateJob, upd.Status, upd.Pages, endedAt, elapsed, upd.ErrorMessage, jobUUID)
	if err != nil {
		return pkgerrors.Wrapf(err, "storage: update job %s failed", jobUUID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.Errorf("storage: job %s not recorded", jobUUID)
	}
	return nil
}

// JobRow is one audited job.
type JobRow struct {
	JobUUID        string     `json:"jobUuid"`
	Number         int64      `json:"number"`
	DeviceID       string     `json:"deviceId"`
	Device         string     `json:"device"`
	Host           string     `json:"host"`
	Status         string     `json:"status"`
	Pages          int        `json:"pages"`
	StartedAt      time.Time  `json:"startedAt"`
	EndedAt        *time.Time `json:"endedAt,omitempty"`
	ElapsedSeconds *int64     `json:"elapsedSeconds,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// RecentJobs returns up to limit audited jobs, newest first. device filters
// by backend device name when not empty.
func (s *Store) RecentJobs(ctx context.Context, device string, limit int) ([]JobRow, error) {
	if s == nil || s.db == nil {
		return nil, pkgerrors.New("storage: store not open")
	}
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT job_uuid, number, device_id, device, host, status, pages, started_at, ended_at, elapsed_seconds, error
		FROM scan_jobs`
	args := []any{}
	if device != "" {
		query += ` WHERE device = ?`
		args = append(args, device)
	}
	query += ` ORDER BY started_at DESC, number DESC LIMIT ?`
	args = append(args, limit)
	logStatement(query, args...)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "storage: query jobs failed")
	}
	defer rows.Close()
	var out []JobRow
	for rows.Next() {
		var (
			row       JobRow
			host      sql.NullString
			errMsg    sql.NullString
			startedAt int64
			endedAt   sql.NullInt64
			elapsed   sql.NullInt64
		)
		if err := rows.Scan(&row.JobUUID, &row.Number, &row.DeviceID, &row.Device, &host, &row.Status,
			&row.Pages, &startedAt, &endedAt, &elapsed, &errMsg); err != nil {
			return nil, pkgerrors.Wrap(err, "storage: scan job row failed")
		}
		row.Host = host.String
		row.Error = errMsg.String
		row.StartedAt = time.UnixMilli(startedAt)
		if endedAt.Valid {
			t := time.UnixMilli(endedAt.Int64)
			row.EndedAt = &t
		}
		if elapsed.Valid {
			v := elapsed.Int64
			row.ElapsedSeconds = &v
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "storage: iterate job rows failed")
	}
	return out, nil
}

// SnapshotCount returns how many snapshots were recorded for a device id.
func (s *Store) SnapshotCount(ctx context.Context, deviceID string) (int, error) {
	if s == nil || s.db == nil {
		return 0, pkgerrors.New("storage: store not open")
	}
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM device_snapshots WHERE device_id = ?`, deviceID).Scan(&n)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "storage: count snapshots failed")
	}
	return n, nil
}
