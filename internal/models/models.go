package models

// BreakdownRequest is the body of POST /api/breakdown-task.
type BreakdownRequest struct {
	Task string `json:"task"`
}

// Subtask is one step of a broken-down task.
type Subtask struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// BreakdownResult is the shape the model is asked to produce for a breakdown.
type BreakdownResult struct {
	Subtasks []Subtask `json:"subtasks"`
}

// CompletedTask is a finished task as reported by the client. Dates are
// YYYY-MM-DD strings.
type CompletedTask struct {
	Title         string `json:"title"`
	Feeling       string `json:"feeling"`
	Deadline      string `json:"deadline"`
	CompletedDate string `json:"completedDate"`
}

// HasDates reports whether both the deadline and the completion date are set.
func (t CompletedTask) HasDates() bool {
	return t.Deadline != "" && t.CompletedDate != ""
}

// Late reports whether the task was completed after its deadline. Dates are
// compared as strings, which orders ISO dates correctly.
func (t CompletedTask) Late() bool {
	return t.HasDates() && t.CompletedDate > t.Deadline
}

// DiagnosisRequest is the body of POST /api/diagnose-procrastination.
type DiagnosisRequest struct {
	CompletedTasks []CompletedTask `json:"completed_tasks"`
}

// Diagnosis is a procrastination analysis. A degraded result carries only Summary.
type Diagnosis struct {
	Cause     string   `json:"cause,omitempty"`
	Solutions []string `json:"solutions,omitempty"`
	Summary   string   `json:"summary,omitempty"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string `json:"status"`
	GeminiConfigured bool   `json:"gemini_configured"`
}

// DeepHealthStatus reports each dependency of the service.
type DeepHealthStatus struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Version      string            `json:"version"`
	Dependencies map[string]string `json:"dependencies"`
}
