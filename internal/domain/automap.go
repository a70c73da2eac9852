package domain

import "time"

// AutoMapStatus represents the state of an auto-map job.
type AutoMapStatus string

const (
	AutoMapStatusPending   AutoMapStatus = "pending"
	AutoMapStatusRunning   AutoMapStatus = "running"
	AutoMapStatusCompleted AutoMapStatus = "completed"
	AutoMapStatusFailed    AutoMapStatus = "failed"
	AutoMapStatusCancelled AutoMapStatus = "cancelled"
)

// Transport message types.
const (
	AutoMapMessageProgress = "progress"
	AutoMapMessageComplete = "complete"
	AutoMapMessageError    = "error"
)

// AutoMapMessage is one message of the job transport:
// {type:"progress", message, stats}, {type:"complete", result} or {type:"error", message}.
type AutoMapMessage struct {
	Type    string       `json:"type"`
	Message string       `json:"message,omitempty"`
	Stats   *MatchStats  `json:"stats,omitempty"`
	Result  *MatchResult `json:"result,omitempty"`
}

// AutoMapJob is one background run of the matching engine against a session.
// Proposals are applied to the session only after the engine finishes.
type AutoMapJob struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id"`
	Threshold float64 `json:"threshold"`

	Status   AutoMapStatus    `json:"status"`
	Percent  int              `json:"percent"` // 0-100
	Messages []AutoMapMessage `json:"messages"`
	Result   *MatchResult     `json:"result,omitempty"`
	Applied  int              `json:"applied"`
	Failed   int              `json:"failed"`
	Error    string           `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewAutoMapJob creates a pending job.
func NewAutoMapJob(id, sessionID string, threshold float64) *AutoMapJob {
	return &AutoMapJob{
		ID:        id,
		SessionID: sessionID,
		Threshold: threshold,
		Status:    AutoMapStatusPending,
		Messages:  []AutoMapMessage{},
		CreatedAt: time.Now(),
	}
}

// IsFinished reports whether the job reached a terminal state.
func (j *AutoMapJob) IsFinished() bool {
	switch j.Status {
	case AutoMapStatusCompleted, AutoMapStatusFailed, AutoMapStatusCancelled:
		return true
	default:
		return false
	}
}

// MarkRunning transitions the job to running state.
func (j *AutoMapJob) MarkRunning() {
	j.Status = AutoMapStatusRunning
	now := time.Now()
	j.StartedAt = &now
	j.Percent = 0
}

// AddProgress records an engine progress report.
func (j *AutoMapJob) AddProgress(p MatchProgress) {
	stats := p.Stats
	j.Messages = append(j.Messages, AutoMapMessage{
		Type:    AutoMapMessageProgress,
		Message: p.Message,
		Stats:   &stats,
	})
	j.Percent = max(0, min(100, p.Percent))
}

// MarkCompleted transitions the job to completed state.
func (j *AutoMapJob) MarkCompleted(result *MatchResult, applied, failed int) {
	j.Status = AutoMapStatusCompleted
	j.Result = result
	j.Applied = applied
	j.Failed = failed
	j.Percent = 100
	j.Messages = append(j.Messages, AutoMapMessage{Type: AutoMapMessageComplete, Result: result})
	now := time.Now()
	j.CompletedAt = &now
}

// MarkFailed transitions the job to failed state with an error message.
func (j *AutoMapJob) MarkFailed(err string) {
	j.Status = AutoMapStatusFailed
	j.Error = err
	j.Messages = append(j.Messages, AutoMapMessage{Type: AutoMapMessageError, Message: err})
	now := time.Now()
	j.CompletedAt = &now
}

// MarkCancelled transitions the job to cancelled state.
func (j *AutoMapJob) MarkCancelled() {
	j.MarkFailed("cancelled")
	j.Status = AutoMapStatusCancelled
}

// Clone returns a copy safe to hand out while the job keeps running.
func (j *AutoMapJob) Clone() *AutoMapJob {
	c := *j
	c.Messages = make([]AutoMapMessage, len(j.Messages))
	copy(c.Messages, j.Messages)
	return &c
}
