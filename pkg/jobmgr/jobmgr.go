// Package jobmgr provides asynchronous job execution with cancellation and
// per-name debounced scheduling.
//
// Typical usage:
//
//	jm := jobmgr.NewManager(func(msg string) {
//	    log.Println("JOB:", msg)
//	})
//
//	_ = jm.StartAsync("register-heartbeat", func(ctx context.Context) error {
//	    // do work until ctx is cancelled
//	    return nil
//	})
//
//	jm.Debounce("snapshot:"+guildID, 5*time.Second, save)
//
// Debounce keeps one pending timer per name: scheduling again replaces the
// pending run, so a burst of calls coalesces into a single execution.
package jobmgr

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job represents a running unit of work.
type Job struct {
	Name   string
	Cancel context.CancelFunc
}

// StatusReporter receives lifecycle events for jobs.
// Example messages:
//
//	running:snapshot-restore
//	error:snapshot-restore:open file
//	done:snapshot-restore
type StatusReporter func(string)

// Manager orchestrates starting, stopping and tracking jobs.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	timers   map[string]*time.Timer
	Reporter StatusReporter
}

// NewManager creates a new Manager. The reporter callback may be nil.
func NewManager(reporter StatusReporter) *Manager {
	return &Manager{
		jobs:     make(map[string]*Job),
		timers:   make(map[string]*time.Timer),
		Reporter: reporter,
	}
}

// StartAsync runs a job in a separate goroutine and returns immediately.
// If a job with the same name is already running, an error is returned.
// Jobs are removed automatically after completion (success or failure).
func (m *Manager) StartAsync(name string, runner func(ctx context.Context) error) error {
	m.mu.Lock()
	if _, exists := m.jobs[name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("job '%s' is already running", name)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.jobs[name] = &Job{Name: name, Cancel: cancel}
	m.mu.Unlock()

	go func() {
		m.report("running:" + name)

		err := runner(ctx)
		if err != nil {
			m.report("error:" + name + ":" + err.Error())
		} else {
			m.report("done:" + name)
		}

		m.mu.Lock()
		delete(m.jobs, name)
		m.mu.Unlock()
	}()

	return nil
}

// Stop cancels a running job by name.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[name]
	if !ok {
		return fmt.Errorf("job '%s' not running", name)
	}

	job.Cancel()
	delete(m.jobs, name)
	return nil
}

// Debounce schedules fn to run after delay. A pending run under the same
// name is replaced, so only the last scheduling within a burst fires.
func (m *Manager) Debounce(name string, delay time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[name]; ok {
		t.Stop()
	}
	m.timers[name] = time.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, name)
		m.mu.Unlock()

		m.report("debounced:" + name)
		fn()
	})
}

// CancelDebounce drops a pending debounced run, if any.
func (m *Manager) CancelDebounce(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.timers[name]; ok {
		t.Stop()
		delete(m.timers, name)
	}
}

// Shutdown cancels all running jobs and pending timers.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, job := range m.jobs {
		job.Cancel()
		delete(m.jobs, name)
	}
	for name, t := range m.timers {
		t.Stop()
		delete(m.timers, name)
	}
}

// List returns the list of active job names.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.jobs))
	for k := range m.jobs {
		out = append(out, k)
	}
	return out
}

// report delivers lifecycle messages to the reporter if present.
func (m *Manager) report(s string) {
	if m.Reporter != nil {
		m.Reporter(s)
	}
}
