package domain

// DownloadStatus represents the lifecycle state of an archival job.
type DownloadStatus string

const (
	StatusUnknown     DownloadStatus = "Unknown"
	StatusUnavailable DownloadStatus = "Unavailable"
	StatusWaiting     DownloadStatus = "Waiting"
	StatusDownloading DownloadStatus = "Downloading"
	StatusMuxing      DownloadStatus = "Muxing"
	StatusFinished    DownloadStatus = "Finished"
	StatusError       DownloadStatus = "Error"
	StatusCancelled   DownloadStatus = "Cancelled"
)

// IsTerminal reports whether the status is absorbing: once reached, no
// engine event moves the job out of it.
func (s DownloadStatus) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusError, StatusCancelled, StatusUnavailable:
		return true
	default:
		return false
	}
}

// SortPriority returns the display ordering weight for the status.
// Just-added jobs (Unknown) sort above everything so they are visible
// immediately; active downloads come next, then waiting jobs, then
// everything terminal.
func (s DownloadStatus) SortPriority() int {
	switch s {
	case StatusUnknown:
		return 3
	case StatusDownloading:
		return 2
	case StatusWaiting:
		return 1
	default:
		return 0
	}
}

// HealthResult is the outcome of a post-completion health check.
type HealthResult string

const (
	HealthOK                        HealthResult = "OK"
	HealthCheckFailure              HealthResult = "HEALTHCHECK_FAILURE"
	HealthVideoUnavailable          HealthResult = "VIDEO_UNAVAILABLE"
	HealthStreamLengthDiffers       HealthResult = "STREAM_LENGTH_DIFFERS"
	HealthStreamLengthIndeterminate HealthResult = "STREAM_LENGTH_INDETERMINATE"
)
