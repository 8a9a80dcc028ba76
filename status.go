package descry

// DeviceStatus is the registry state of a device.
type DeviceStatus string

const (
	StatusDisabled  DeviceStatus = "disabled"
	StatusEnabled   DeviceStatus = "enabled"
	StatusScanning  DeviceStatus = "scanning"
	StatusCompleted DeviceStatus = "completed"
	StatusError     DeviceStatus = "error"
)

var deviceStatuses = []string{
	string(StatusDisabled),
	string(StatusEnabled),
	string(StatusScanning),
	string(StatusCompleted),
	string(StatusError),
}

// idle reports whether a scan may start from s.
func (s DeviceStatus) idle() bool {
	return s == StatusEnabled || s == StatusCompleted
}

// JobStatus is the state of a scan job.
type JobStatus string

const (
	JobStarted   JobStatus = "started"
	JobCompleted JobStatus = "completed"
	JobError     JobStatus = "error"
)

// Terminal reports whether no further transition is allowed.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}
