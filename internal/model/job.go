package model

import (
	"errors"
	"fmt"
)

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

var ErrInvalidTransition = errors.New("invalid job state transition")

func (s JobState) Valid() bool {
	switch s {
	case JobStateQueued, JobStateActive, JobStateCompleted, JobStateFailed:
		return true
	}
	return false
}

func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// CanTransition admits only queued->active and active->{completed,failed}.
func CanTransition(from, to JobState) bool {
	switch from {
	case JobStateQueued:
		return to == JobStateActive
	case JobStateActive:
		return to == JobStateCompleted || to == JobStateFailed
	}
	return false
}

type JobPayload struct {
	Filename    string `json:"filename"`
	StoragePath string `json:"storage_path"`
}

type Job struct {
	ID         string
	Payload    JobPayload
	State      JobState
	Error      string
	Ctime      int64
	ClaimedAt  int64
	FinishedAt int64
}

// Transition moves the job to the next state, stamping claim/finish times.
func (j *Job) Transition(to JobState, now int64) error {
	if !CanTransition(j.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.State, to)
	}
	j.State = to
	switch to {
	case JobStateActive:
		j.ClaimedAt = now
	case JobStateCompleted, JobStateFailed:
		j.FinishedAt = now
	}
	return nil
}
