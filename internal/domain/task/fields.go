package task

import "sort"

// Kind describes how an external field is decoded and stored.
type Kind int

const (
	// KindReadOnly fields are reported to clients but never written from payloads.
	KindReadOnly Kind = iota
	// KindDerived fields exist only in the external view and have no column.
	KindDerived
	KindText
	KindStatus
	// KindOptionalText fields store NULL for empty strings.
	KindOptionalText
	KindBool
	KindInt
	KindStage
	KindOrigin
)

// Column names of the tasks table.
const (
	ColID         = "id"
	ColProjectID  = "project_id"
	ColText       = "text"
	ColStage      = "stage"
	ColOrigin     = "origin"
	ColSourceID   = "source_id"
	ColCompleted  = "completed"
	ColStatus     = "status"
	ColNotes      = "notes"
	ColPriority   = "priority"
	ColDueDate    = "due_date"
	ColOwner      = "owner"
	ColTaskType   = "task_type"
	ColFactorID   = "factor_id"
	ColSortOrder  = "sort_order"
	ColAssignedTo = "assigned_to"
	ColTaskNotes  = "task_notes"
	ColCreatedAt  = "created_at"
	ColUpdatedAt  = "updated_at"
)

// Field pairs an external (camelCase) name with its internal column.
type Field struct {
	External string
	Column   string
	Kind     Kind
}

// Writable reports whether payloads may assign this field.
func (f Field) Writable() bool {
	return f.Kind != KindReadOnly && f.Kind != KindDerived
}

// Fields is the complete external <-> internal mapping. Every external
// field of the task view appears exactly once.
var Fields = []Field{
	{"id", ColID, KindReadOnly},
	{"projectId", ColProjectID, KindReadOnly},
	{"text", ColText, KindText},
	{"stage", ColStage, KindStage},
	{"origin", ColOrigin, KindOrigin},
	{"source", "", KindDerived},
	{"sourceId", ColSourceID, KindOptionalText},
	{"completed", ColCompleted, KindBool},
	{"notes", ColNotes, KindOptionalText},
	{"priority", ColPriority, KindOptionalText},
	{"dueDate", ColDueDate, KindOptionalText},
	{"owner", ColOwner, KindOptionalText},
	{"status", ColStatus, KindStatus},
	{"createdAt", ColCreatedAt, KindReadOnly},
	{"updatedAt", ColUpdatedAt, KindReadOnly},
	{"taskType", ColTaskType, KindOptionalText},
	{"factorId", ColFactorID, KindOptionalText},
	{"sortOrder", ColSortOrder, KindInt},
	{"assignedTo", ColAssignedTo, KindOptionalText},
	{"taskNotes", ColTaskNotes, KindOptionalText},
}

var (
	byExternal = make(map[string]Field, len(Fields))
	byColumn   = make(map[string]Field, len(Fields))
)

func init() {
	for _, f := range Fields {
		byExternal[f.External] = f
		if f.Column != "" {
			byColumn[f.Column] = f
		}
	}
}

// FieldByExternal looks up a field by its external name.
func FieldByExternal(name string) (Field, bool) {
	f, ok := byExternal[name]
	return f, ok
}

// FieldByColumn looks up a field by its internal column name.
func FieldByColumn(col string) (Field, bool) {
	f, ok := byColumn[col]
	return f, ok
}

// Patch is a sparse set of column assignments keyed by internal column name.
// Values are string, bool, int, or nil (SQL NULL).
type Patch map[string]any

// Columns returns the assigned columns in a stable order.
func (p Patch) Columns() []string {
	cols := make([]string, 0, len(p))
	for c := range p {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// Has reports whether col is assigned.
func (p Patch) Has(col string) bool {
	_, ok := p[col]
	return ok
}

// ApplyTo writes the patch onto t in memory. Unknown or read-only columns
// are ignored.
func (p Patch) ApplyTo(t *Task) {
	for col, v := range p {
		switch col {
		case ColText:
			t.Text, _ = v.(string)
		case ColStage:
			s, _ := v.(string)
			t.Stage = Stage(s)
		case ColOrigin:
			s, _ := v.(string)
			t.Origin = Origin(s)
		case ColSourceID:
			t.SourceID, _ = v.(string)
		case ColCompleted:
			t.Completed, _ = v.(bool)
		case ColStatus:
			t.Status, _ = v.(string)
		case ColSortOrder:
			t.SortOrder, _ = v.(int)
		case ColNotes:
			t.Notes = optional(v)
		case ColPriority:
			t.Priority = optional(v)
		case ColDueDate:
			t.DueDate = optional(v)
		case ColOwner:
			t.Owner = optional(v)
		case ColTaskType:
			t.TaskType = optional(v)
		case ColFactorID:
			t.FactorID = optional(v)
		case ColAssignedTo:
			t.AssignedTo = optional(v)
		case ColTaskNotes:
			t.TaskNotes = optional(v)
		}
	}
}

func optional(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}
