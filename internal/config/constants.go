package config

import "slices"

type JobStatus string

type JobType string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
)

const (
	JobTypeSceneImage    JobType = "scene-image"
	JobTypePrintPDF      JobType = "print-pdf"
	JobTypePreviewRender JobType = "preview-render"
)

const (
	DefaultPriority = 10
	MinPriority     = 0
	MaxPriority     = 100

	DefaultListLimit  = 50
	MaxListLimit      = 200
	DefaultStatsHours = 24
)

var (
	AllowedJobTypes    = []JobType{JobTypeSceneImage, JobTypePrintPDF, JobTypePreviewRender}
	AllowedJobStatuses = []JobStatus{
		JobStatusPending,
		JobStatusProcessing,
		JobStatusCompleted,
		JobStatusFailed,
		JobStatusCancelled,
	}
	// TerminalStatuses are purged by a clear request that names no statuses.
	TerminalStatuses = []JobStatus{JobStatusCompleted, JobStatusFailed, JobStatusCancelled}
	// RetriggerableStatuses may be cloned into a fresh pending job.
	RetriggerableStatuses = []JobStatus{JobStatusFailed, JobStatusCancelled}
)

func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

func (s JobStatus) Valid() bool {
	return slices.Contains(AllowedJobStatuses, s)
}

func (t JobType) Valid() bool {
	return slices.Contains(AllowedJobTypes, t)
}
