package store

import (
	"context"
	"time"
)

// ProcessType classifies training ledger rows.
type ProcessType string

const (
	ProcessGrammarFeedback ProcessType = "grammar_feedback"
	ProcessScoreFeedback   ProcessType = "score_feedback"
	ProcessModelTraining   ProcessType = "model_training"
)

// JobStatus is the lifecycle state of a training ledger row.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusFailed     JobStatus = "failed"
	StatusSuccess    JobStatus = "success"
	StatusProcessed  JobStatus = "processed"
)

// InFlight reports whether a job in this state still occupies the trainer.
func (s JobStatus) InFlight() bool {
	return s == StatusPending || s == StatusProcessing
}

// Job is a training ledger row.
type Job struct {
	ID          int64
	FeedbackID  int64
	ProcessType ProcessType
	Status      JobStatus
	Version     string
	Notes       string
	CreatedAt   time.Time
	ProcessedAt time.Time
}

// FeedbackType classifies reviewer feedback.
type FeedbackType string

const (
	FeedbackMissedIssue   FeedbackType = "missed_issue"
	FeedbackFalsePositive FeedbackType = "false_positive"
	FeedbackGeneral       FeedbackType = "general"
)

// Feedback is a reviewer's note on a checked essay.
type Feedback struct {
	ID                int64        `json:"id"`
	EssayID           int64        `json:"essay_id"`
	ReviewerID        int64        `json:"reviewer_id"`
	Type              FeedbackType `json:"feedback_type"`
	ErrorType         string       `json:"error_type,omitempty"`
	Wrong             string       `json:"wrong_expression,omitempty"`
	Correct           string       `json:"correct_expression,omitempty"`
	Comment           string       `json:"comment,omitempty"`
	Processed         bool         `json:"processed"`
	UsableForTraining bool         `json:"usable_for_training"`
	UsedInModel       bool         `json:"used_in_model"`
	CreatedAt         time.Time    `json:"created_at"`
}

// ModelVersion records a completed training run.
type ModelVersion struct {
	Version   string
	JobID     int64
	CreatedAt time.Time
}

// Ledger is the feedback and training bookkeeping shared with the web
// application.
type Ledger interface {
	Close() error

	// Feedback
	InsertFeedback(ctx context.Context, f Feedback) (int64, error)
	UnprocessedFeedback(ctx context.Context, limit int) ([]Feedback, error)
	MarkFeedbackProcessed(ctx context.Context, id int64) error
	CountTrainableFeedback(ctx context.Context) (int64, error)
	TrainableFeedback(ctx context.Context, limit int) ([]Feedback, error)
	MarkFeedbackUsed(ctx context.Context, ids []int64) error

	// Jobs
	CreateJob(ctx context.Context, j Job) (int64, error)
	GetJob(ctx context.Context, id int64) (Job, error)
	CountInFlight(ctx context.Context, pt ProcessType, since time.Time) (int64, error)
	UpdateJobStatus(ctx context.Context, id int64, status JobStatus, note string) error

	// Versions
	RecordVersion(ctx context.Context, v ModelVersion) error
	Versions(ctx context.Context, prefix string) ([]string, error)
}
