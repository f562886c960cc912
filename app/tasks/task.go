package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeIngest    TaskType = "ingest"
	TaskTypeRetention TaskType = "retention"
)

// TaskInterface is one unit of work for the worker pool. GetWeight reports
// how many worker slots the task occupies while queued or running.
type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	GetSourceID() string
	GetWeight() int
	Start()
	GetDuration() time.Duration
}

type Task struct {
	ID        string
	Type      TaskType
	SourceID  string
	Weight    int
	StartedAt *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) GetSourceID() string {
	return t.SourceID
}

func (t *Task) GetWeight() int {
	if t.Weight < 1 {
		return 1
	}
	return t.Weight
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType, sourceID string, weight int) Task {
	return Task{
		ID:       uuid.NewString(),
		Type:     taskType,
		SourceID: sourceID,
		Weight:   weight,
	}
}
