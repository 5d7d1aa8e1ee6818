package queue

import (
	"time"

	"github.com/google/uuid"
)

// Task kinds handled by the worker pool.
const (
	TaskChangelogSync = "changelog_sync"
	TaskProjectResync = "project_resync"
)

// Task is one unit of background work. Tasks carry no mutable state;
// everything the handler needs beyond the identifiers lives in the
// backing store.
type Task struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ProjectID int64     `json:"project_id,omitempty"`
	NotBefore time.Time `json:"not_before,omitempty"`
}

// NewChangelogSyncTask creates a changelog sync task.
func NewChangelogSyncTask() *Task {
	return &Task{ID: uuid.NewString(), Kind: TaskChangelogSync}
}

// NewProjectResyncTask creates a resync task for one project, runnable
// no earlier than notBefore.
func NewProjectResyncTask(projectID int64, notBefore time.Time) *Task {
	return &Task{
		ID:        uuid.NewString(),
		Kind:      TaskProjectResync,
		ProjectID: projectID,
		NotBefore: notBefore,
	}
}
