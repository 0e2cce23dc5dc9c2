package processor

import (
	"context"
	"sync"
	"time"

	"smart-guard-go/internal/registration"
	"smart-guard-go/internal/util/timezone"
)

// JobState ist der Zustand einer Registrierung
type JobState string

const (
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// RegistrationJob beschreibt eine laufende oder beendete Registrierung
type RegistrationJob struct {
	ID         string             `json:"id"`
	Label      string             `json:"label"`
	State      JobState           `json:"state"`
	Step       *registration.Step `json:"step,omitempty"`
	Phase      string             `json:"phase,omitempty"` // prompt, retry, captured
	Attempt    int                `json:"attempt,omitempty"`
	Captured   int                `json:"captured"`
	Error      string             `json:"error,omitempty"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
}

// RegistrationListener wird bei jeder Änderung einer Registrierung aufgerufen
type RegistrationListener func(RegistrationJob)

// jobTracker hält die aktuelle Registrierung und implementiert registration.Prompter
type jobTracker struct {
	mu        sync.Mutex
	job       *RegistrationJob
	listeners []RegistrationListener
}

func (t *jobTracker) addListener(fn RegistrationListener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, fn)
}

// begin legt einen neuen Job an, sofern keiner läuft
func (t *jobTracker) begin(id, label string) (RegistrationJob, bool) {
	t.mu.Lock()
	if t.job != nil && t.job.State == JobRunning {
		t.mu.Unlock()
		return RegistrationJob{}, false
	}
	t.job = &RegistrationJob{
		ID:        id,
		Label:     label,
		State:     JobRunning,
		StartedAt: timezone.Now(),
	}
	t.mu.Unlock()
	return t.update(func(*RegistrationJob) {}), true
}

func (t *jobTracker) current() (RegistrationJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.job == nil {
		return RegistrationJob{}, false
	}
	return *t.job, true
}

func (t *jobTracker) update(fn func(*RegistrationJob)) RegistrationJob {
	t.mu.Lock()
	if t.job == nil {
		t.mu.Unlock()
		return RegistrationJob{}
	}
	fn(t.job)
	snapshot := *t.job
	listeners := append([]RegistrationListener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l(snapshot)
	}
	return snapshot
}

func (t *jobTracker) finish(err error) RegistrationJob {
	return t.update(func(j *RegistrationJob) {
		now := timezone.Now()
		j.FinishedAt = &now
		if err != nil {
			j.State = JobFailed
			j.Error = err.Error()
			return
		}
		j.State = JobCompleted
	})
}

func (t *jobTracker) Prompt(ctx context.Context, label string, step registration.Step) {
	t.update(func(j *RegistrationJob) {
		s := step
		j.Step, j.Phase, j.Attempt = &s, "prompt", 0
	})
}

func (t *jobTracker) Retry(ctx context.Context, label string, step registration.Step, attempt int) {
	t.update(func(j *RegistrationJob) {
		s := step
		j.Step, j.Phase, j.Attempt = &s, "retry", attempt
	})
}

func (t *jobTracker) Captured(ctx context.Context, label string, step registration.Step) {
	t.update(func(j *RegistrationJob) {
		s := step
		j.Step, j.Phase = &s, "captured"
		j.Captured++
	})
}

func (t *jobTracker) Complete(ctx context.Context, label string) {
	t.update(func(j *RegistrationJob) {
		j.Step, j.Phase = nil, "complete"
	})
}
