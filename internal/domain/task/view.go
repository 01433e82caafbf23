package task

import "time"

// TimeFormat is the ISO-8601 UTC layout used for timestamps in the view.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// View is the external (camelCase) representation of a Task. Unset optional
// text fields are reported as empty strings.
type View struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	Text       string `json:"text"`
	Stage      Stage  `json:"stage"`
	Origin     Origin `json:"origin"`
	Source     Origin `json:"source"`
	SourceID   string `json:"sourceId"`
	Completed  bool   `json:"completed"`
	Notes      string `json:"notes"`
	Priority   string `json:"priority"`
	DueDate    string `json:"dueDate"`
	Owner      string `json:"owner"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
	TaskType   string `json:"taskType"`
	FactorID   string `json:"factorId"`
	SortOrder  int    `json:"sortOrder"`
	AssignedTo string `json:"assignedTo"`
	TaskNotes  string `json:"taskNotes"`
}

// NewView renders t with its internal id.
func NewView(t *Task) View {
	origin := t.Origin
	if origin == "" {
		origin = OriginCustom
	}
	status := t.Status
	if status == "" {
		status = DefaultStatus
	}
	return View{
		ID:         t.ID,
		ProjectID:  t.ProjectID,
		Text:       t.Text,
		Stage:      t.Stage,
		Origin:     origin,
		Source:     origin.Normalized(),
		SourceID:   t.SourceID,
		Completed:  t.Completed,
		Notes:      deref(t.Notes),
		Priority:   deref(t.Priority),
		DueDate:    deref(t.DueDate),
		Owner:      deref(t.Owner),
		Status:     status,
		CreatedAt:  formatTime(t.CreatedAt),
		UpdatedAt:  formatTime(t.UpdatedAt),
		TaskType:   deref(t.TaskType),
		FactorID:   deref(t.FactorID),
		SortOrder:  t.SortOrder,
		AssignedTo: deref(t.AssignedTo),
		TaskNotes:  deref(t.TaskNotes),
	}
}

// NewViews renders a slice of tasks.
func NewViews(ts []Task) []View {
	out := make([]View, 0, len(ts))
	for i := range ts {
		out = append(out, NewView(&ts[i]))
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}
