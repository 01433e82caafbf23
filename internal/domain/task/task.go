// Package task defines the checklist Task entity, its external field mapping
// and the sparse update payload.
package task

import (
	"strings"
	"time"
)

// Stage is the project phase a task belongs to.
type Stage string

const (
	StageIdentification Stage = "identification"
	StageDefinition      Stage = "definition"
	StageDelivery        Stage = "delivery"
	StageClosure         Stage = "closure"
)

// Stages lists all stages in lifecycle order.
var Stages = []Stage{StageIdentification, StageDefinition, StageDelivery, StageClosure}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	for _, v := range Stages {
		if s == v {
			return true
		}
	}
	return false
}

// Origin tags where a task came from.
type Origin string

const (
	OriginCustom        Origin = "custom"
	OriginFactor        Origin = "factor"
	OriginSuccessFactor Origin = "success-factor"
	OriginHeuristic     Origin = "heuristic"
	OriginPolicy        Origin = "policy"
	OriginFramework     Origin = "framework"
)

var origins = []Origin{OriginCustom, OriginFactor, OriginSuccessFactor, OriginHeuristic, OriginPolicy, OriginFramework}

// CatalogOrigins are the origins of tasks materialized from the success-factor catalog.
var CatalogOrigins = []Origin{OriginFactor, OriginSuccessFactor}

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	for _, v := range origins {
		if o == v {
			return true
		}
	}
	return false
}

// IsCatalog reports whether o marks a catalog-derived (success factor) task.
func (o Origin) IsCatalog() bool {
	return o == OriginFactor || o == OriginSuccessFactor
}

// Normalized folds aliases: success-factor reports as factor, empty as custom.
func (o Origin) Normalized() Origin {
	switch o {
	case "":
		return OriginCustom
	case OriginSuccessFactor:
		return OriginFactor
	default:
		return o
	}
}

// Aliases returns every stored origin that normalizes to the same value as o.
func (o Origin) Aliases() []Origin {
	want := o.Normalized()
	var out []Origin
	for _, v := range origins {
		if v.Normalized() == want {
			out = append(out, v)
		}
	}
	return out
}

// DefaultStatus is the workflow label of a freshly created task.
const DefaultStatus = "To Do"

// customIDPrefix marks ids minted by clients for ad-hoc tasks.
const customIDPrefix = "custom-"

// Task is a unit of checklist work scoped to exactly one project.
// Optional text fields are nil when unset.
type Task struct {
	ID         string
	ProjectID  string
	Text       string
	Stage      Stage
	Origin     Origin
	SourceID   string
	Completed  bool
	Status     string
	Notes      *string
	Priority   *string
	DueDate    *string
	Owner      *string
	TaskType   *string
	FactorID   *string
	SortOrder  int
	AssignedTo *string
	TaskNotes  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CatalogDerived reports whether the task was materialized from a catalog
// entry and carries a usable source id.
func (t *Task) CatalogDerived() bool {
	return t.Origin != OriginCustom && t.Origin != "" &&
		!strings.HasPrefix(t.ID, customIDPrefix) && t.SourceID != ""
}

// ListFilter narrows ListTasks results. Zero values mean no filter.
type ListFilter struct {
	Stage     Stage
	Origin    Origin // matched against the normalized origin
	Completed *bool
}

// Matches reports whether t passes the filter.
func (f ListFilter) Matches(t *Task) bool {
	if f.Stage != "" && t.Stage != f.Stage {
		return false
	}
	if f.Origin != "" && t.Origin.Normalized() != f.Origin.Normalized() {
		return false
	}
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	return true
}
