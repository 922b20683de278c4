package observability

import (
	"sync"
	"time"
)

type Role string

const (
	RoleIdle         Role = "IDLE"
	RoleOrchestrator Role = "ORCHESTRATOR"
	RoleScheduler    Role = "SCHEDULER"
)

type SystemStatus struct {
	mu            sync.RWMutex
	CurrentRole   Role
	ActiveTask    string
	ActiveRuns    int
	LastHeartbeat time.Time
}

var globalStatus = &SystemStatus{
	CurrentRole:   RoleIdle,
	LastHeartbeat: time.Now(),
}

// BeginRun marks a run as active and returns a func that ends it.
func BeginRun(role Role, task string) func() {
	globalStatus.mu.Lock()
	globalStatus.ActiveRuns++
	globalStatus.CurrentRole = role
	globalStatus.ActiveTask = task
	globalStatus.mu.Unlock()

	return func() {
		globalStatus.mu.Lock()
		defer globalStatus.mu.Unlock()
		globalStatus.ActiveRuns--
		if globalStatus.ActiveRuns <= 0 {
			globalStatus.ActiveRuns = 0
			globalStatus.CurrentRole = RoleIdle
			globalStatus.ActiveTask = ""
		}
	}
}

// GetStatus retrieves a copy of the global system status.
func GetStatus() (Role, string, int, time.Time) {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return globalStatus.CurrentRole, globalStatus.ActiveTask, globalStatus.ActiveRuns, globalStatus.LastHeartbeat
}

// Heartbeat updates the last heartbeat time.
func Heartbeat() {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	globalStatus.LastHeartbeat = time.Now()
}
