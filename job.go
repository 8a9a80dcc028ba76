package descry

import (
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// JobInfo is a point in time copy of a job.
type JobInfo struct {
	Number    int64      `json:"number"`
	UUID      string     `json:"uuid"`
	Device    string     `json:"device"`
	Status    JobStatus  `json:"status"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt,omitempty"`
	PageCount int        `json:"pageCount"`
	Error     string     `json:"error,omitempty"`
}

// job is one scan. The scan task is the only writer; control plane reads go
// through Info and page.
type job struct {
	number int64
	uuid   string
	device string

	mu        sync.RWMutex
	status    JobStatus
	startedAt time.Time
	endedAt   time.Time
	pages     []image.Image
	errMsg    string
}

func newJob(number int64, device string, now time.Time) *job {
	return &job{
		number:    number,
		uuid:      uuid.NewString(),
		device:    device,
		status:    JobStarted,
		startedAt: now,
	}
}

func (j *job) appendPage(img image.Image) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return len(j.pages), errors.Wrapf(ErrJobTerminal, "append page to job %d", j.number)
	}
	j.pages = append(j.pages, img)
	return len(j.pages), nil
}

func (j *job) complete(now time.Time) error {
	return j.finish(now, JobCompleted, "")
}

func (j *job) fail(now time.Time, msg string) error {
	if msg == "" {
		msg = "scan failed"
	}
	return j.finish(now, JobError, msg)
}

func (j *job) finish(now time.Time, status JobStatus, msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return errors.Wrapf(ErrJobTerminal, "job %d is %s", j.number, j.status)
	}
	j.status = status
	j.endedAt = now
	j.errMsg = msg
	return nil
}

func (j *job) Info() JobInfo {
	j.mu.RLock()
	defer j.mu.RUnlock()
	info := JobInfo{
		Number:    j.number,
		UUID:      j.uuid,
		Device:    j.device,
		Status:    j.status,
		StartedAt: j.startedAt,
		PageCount: len(j.pages),
		Error:     j.errMsg,
	}
	if j.status.Terminal() {
		end := j.endedAt
		info.EndedAt = &end
	}
	return info
}

// page returns page n, counted from 1.
func (j *job) page(n int) (image.Image, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n < 1 || n > len(j.pages) {
		return nil, errors.Wrapf(ErrNotFound, "job %d has no page %d", j.number, n)
	}
	return j.pages[n-1], nil
}

// ledger is the job history of one device, most recent first. It is guarded
// by the owning device's mutex.
type ledger struct {
	max  int
	jobs []*job
	last int64
}

// create allocates a Started job at the head of the history and returns it
// with the jobs evicted to honour max. Numbers are unix seconds, bumped so
// they strictly increase per device.
func (l *ledger) create(device string, now time.Time) (*job, []*job) {
	number := now.Unix()
	if number <= l.last {
		number = l.last + 1
	}
	l.last = number
	j := newJob(number, device, now)
	l.jobs = append([]*job{j}, l.jobs...)

	var evicted []*job
	if l.max > 0 && len(l.jobs) > l.max {
		evicted = append(evicted, l.jobs[l.max:]...)
		l.jobs = l.jobs[:l.max:l.max]
	}
	return j, evicted
}

func (l *ledger) find(number int64) (*job, bool) {
	for _, j := range l.jobs {
		if j.number == number {
			return j, true
		}
	}
	return nil, false
}

func (l *ledger) list() []*job {
	out := make([]*job, len(l.jobs))
	copy(out, l.jobs)
	return out
}
