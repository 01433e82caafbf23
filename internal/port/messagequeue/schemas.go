package messagequeue

// TaskEventPayload is the schema for the tasks.* subjects.
type TaskEventPayload struct {
	ProjectID string `json:"project_id"`
	TaskID    string `json:"task_id"`
	SourceID  string `json:"source_id,omitempty"`
	Origin    string `json:"origin"`
	Stage     string `json:"stage"`
	Completed bool   `json:"completed"`
	Status    string `json:"status,omitempty"`
	// Strategy names the resolver step that located the task, if any.
	Strategy  string `json:"strategy,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CatalogRefreshedPayload is the schema for catalog.refreshed messages.
type CatalogRefreshedPayload struct {
	InstanceID  string `json:"instance_id"`
	FactorCount int    `json:"factor_count"`
	RefreshedAt string `json:"refreshed_at"`
}
