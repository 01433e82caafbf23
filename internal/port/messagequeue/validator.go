package messagequeue

import (
	"encoding/json"
	"fmt"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	var target any
	switch subject {
	case SubjectTaskCreated, SubjectTaskUpdated, SubjectTaskMaterialized, SubjectTaskDeleted:
		p := &TaskEventPayload{}
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.ProjectID == "" || p.TaskID == "" {
			return fmt.Errorf("schema validation failed for %s: project_id and task_id are required", subject)
		}
		return nil
	case SubjectCatalogRefreshed:
		target = &CatalogRefreshedPayload{}
	default:
		return nil
	}

	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("schema validation failed for %s: %w", subject, err)
	}
	return nil
}
