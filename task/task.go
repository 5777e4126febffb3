// Package task implements the Task Manager (spec §4.5): a minimal
// companion store tracking units of work handed to registered components,
// their capability-based assignment, and an append-only status history.
package task

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tekton-fabric/core/errs"
	"github.com/tekton-fabric/core/internal/clock"
)

const component = "task"

// Status is one of the Task lifecycle states.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusAssigned   Status = "ASSIGNED"
	StatusAccepted   Status = "ACCEPTED"
	StatusRejected   Status = "REJECTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// IsTerminal reports whether s is one of the task's terminal states.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// StatusEntry is one append-only record in a task's history.
type StatusEntry struct {
	Status    Status    `json:"status"`
	AgentID   string    `json:"agent_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Task is a unit of work submitted against the fabric, assignable to any
// registered component whose capabilities cover RequiredCapabilities.
type Task struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	RequiredCapabilities []string      `json:"required_capabilities,omitempty"`
	Status               Status        `json:"status"`
	StatusHistory        []StatusEntry `json:"status_history"`
	AssignedTo           string        `json:"assigned_to,omitempty"`
	Result               any           `json:"result,omitempty"`
	Deadline             *time.Time    `json:"deadline,omitempty"`
	Priority             int           `json:"priority,omitempty"`
}

// Clone returns a deep copy so callers can't mutate Manager-owned state.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	clone := *t
	if t.RequiredCapabilities != nil {
		clone.RequiredCapabilities = append([]string(nil), t.RequiredCapabilities...)
	}
	if t.StatusHistory != nil {
		clone.StatusHistory = append([]StatusEntry(nil), t.StatusHistory...)
	}
	if t.Deadline != nil {
		d := *t.Deadline
		clone.Deadline = &d
	}
	return &clone
}

// CreatedCallback fires once per successful CreateTask.
type CreatedCallback func(t *Task)

// AssignedCallback fires once per successful AssignTask, including a
// reassignment.
type AssignedCallback func(t *Task)

// StatusChangedCallback fires once per accepted UpdateTaskStatus call.
type StatusChangedCallback func(t *Task, from, to Status)

// Options configures a Manager.
type Options struct {
	// Clock abstracts time for deterministic tests. Defaults to clock.Real().
	Clock clock.Clock
}

// Manager is the authoritative in-memory task store.
type Manager struct {
	opts  Options
	clk   clock.Clock
	mu    sync.RWMutex
	tasks map[string]*Task

	callbacksMu    sync.RWMutex
	onCreated      []CreatedCallback
	onAssigned     []AssignedCallback
	onStatusChange []StatusChangedCallback
}

// NewManager creates an empty task Manager.
func NewManager(opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Manager{
		opts:  opts,
		clk:   opts.Clock,
		tasks: make(map[string]*Task),
	}
}

// OnCreated registers cb to run on every subsequent CreateTask.
func (m *Manager) OnCreated(cb CreatedCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.onCreated = append(m.onCreated, cb)
}

// OnAssigned registers cb to run on every subsequent AssignTask.
func (m *Manager) OnAssigned(cb AssignedCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.onAssigned = append(m.onAssigned, cb)
}

// OnStatusChanged registers cb to run on every subsequent UpdateTaskStatus.
func (m *Manager) OnStatusChanged(cb StatusChangedCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.onStatusChange = append(m.onStatusChange, cb)
}

func (m *Manager) fireCreated(t *Task) {
	m.callbacksMu.RLock()
	cbs := append([]CreatedCallback(nil), m.onCreated...)
	m.callbacksMu.RUnlock()
	for _, cb := range cbs {
		m.safeCallCreated(cb, t.Clone())
	}
}

func (m *Manager) safeCallCreated(cb CreatedCallback, t *Task) {
	defer func() { recover() }()
	cb(t)
}

func (m *Manager) fireAssigned(t *Task) {
	m.callbacksMu.RLock()
	cbs := append([]AssignedCallback(nil), m.onAssigned...)
	m.callbacksMu.RUnlock()
	for _, cb := range cbs {
		m.safeCallAssigned(cb, t.Clone())
	}
}

func (m *Manager) safeCallAssigned(cb AssignedCallback, t *Task) {
	defer func() { recover() }()
	cb(t)
}

func (m *Manager) fireStatusChanged(t *Task, from, to Status) {
	m.callbacksMu.RLock()
	cbs := append([]StatusChangedCallback(nil), m.onStatusChange...)
	m.callbacksMu.RUnlock()
	for _, cb := range cbs {
		m.safeCallStatusChanged(cb, t.Clone(), from, to)
	}
}

func (m *Manager) safeCallStatusChanged(cb StatusChangedCallback, t *Task, from, to Status) {
	defer func() { recover() }()
	cb(t, from, to)
}

// CreateTask records a new task in CREATED status. If in.ID is empty, one
// is generated.
func (m *Manager) CreateTask(in Task) (*Task, error) {
	if in.Name == "" {
		return nil, errs.New(component, "create_task", errs.InvalidArgument, "name is required")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}

	now := m.clk.Now()
	t := in.Clone()
	t.Status = StatusCreated
	t.AssignedTo = ""
	t.StatusHistory = []StatusEntry{{Status: StatusCreated, Timestamp: now}}

	m.mu.Lock()
	if _, exists := m.tasks[t.ID]; exists {
		m.mu.Unlock()
		return nil, errs.New(component, "create_task", errs.AlreadyExists, "task id already exists").
			WithDetails(map[string]any{"task_id": t.ID})
	}
	m.tasks[t.ID] = t
	m.mu.Unlock()

	m.fireCreated(t)
	return t.Clone(), nil
}

// AssignTask assigns taskID to agentID, appending an ASSIGNED entry to the
// task's history. Every call sets AssignedTo and moves the task to
// ASSIGNED; a later call reassigns it and is recorded as its own history
// entry (spec §4.5).
func (m *Manager) AssignTask(taskID, agentID string) (*Task, error) {
	if agentID == "" {
		return nil, errs.New(component, "assign_task", errs.InvalidArgument, "agent id is required")
	}

	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(component, "assign_task", errs.NotFound, "unknown task id").
			WithDetails(map[string]any{"task_id": taskID})
	}
	if t.Status.IsTerminal() {
		m.mu.Unlock()
		return nil, errs.New(component, "assign_task", errs.Conflict, "task is in a terminal state").
			WithDetails(map[string]any{"task_id": taskID, "status": string(t.Status)})
	}

	t.AssignedTo = agentID
	t.Status = StatusAssigned
	t.StatusHistory = append(t.StatusHistory, StatusEntry{
		Status:    StatusAssigned,
		AgentID:   agentID,
		Timestamp: m.clk.Now(),
	})
	snapshot := t.Clone()
	m.mu.Unlock()

	m.fireAssigned(snapshot)
	return snapshot.Clone(), nil
}

// UpdateTaskStatus appends a new status entry and updates the task's
// current status. message and result are optional context for the
// transition; result is retained as the task's latest Result.
func (m *Manager) UpdateTaskStatus(taskID string, status Status, agentID, message string, result any) (*Task, error) {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok {
		m.mu.Unlock()
		return nil, errs.New(component, "update_task_status", errs.NotFound, "unknown task id").
			WithDetails(map[string]any{"task_id": taskID})
	}

	from := t.Status
	t.Status = status
	if result != nil {
		t.Result = result
	}
	t.StatusHistory = append(t.StatusHistory, StatusEntry{
		Status:    status,
		AgentID:   agentID,
		Message:   message,
		Timestamp: m.clk.Now(),
	})
	snapshot := t.Clone()
	m.mu.Unlock()

	m.fireStatusChanged(snapshot, from, status)
	return snapshot.Clone(), nil
}

// GetTask returns a copy of the task identified by id.
func (m *Manager) GetTask(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.New(component, "get_task", errs.NotFound, "unknown task id").
			WithDetails(map[string]any{"task_id": id})
	}
	return t.Clone(), nil
}

// GetAgentTasks returns every task currently assigned to agentID.
func (m *Manager) GetAgentTasks(agentID string) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.AssignedTo == agentID {
			out = append(out, t.Clone())
		}
	}
	return out
}

// FindByStatus returns every task currently in status.
func (m *Manager) FindByStatus(status Status) []*Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t.Clone())
		}
	}
	return out
}

// FindForCapabilities returns every CREATED task whose RequiredCapabilities
// intersects caps (spec §4.5: unassigned work a component with any of
// these capabilities could pick up).
func (m *Manager) FindForCapabilities(caps []string) []*Task {
	wanted := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		wanted[c] = struct{}{}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Task
	for _, t := range m.tasks {
		if t.Status != StatusCreated {
			continue
		}
		for _, rc := range t.RequiredCapabilities {
			if _, ok := wanted[rc]; ok {
				out = append(out, t.Clone())
				break
			}
		}
	}
	return out
}
