package publishers

import (
	"time"

	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

// Event is one exported ClearBooks row as it is delivered downstream.
type Event struct {
	JobID       string            `json:"job_id"`
	Resource    string            `json:"resource"`
	Fingerprint string            `json:"fingerprint"`
	Columns     []string          `json:"columns"`
	Row         map[string]string `json:"row"`
	ExportedAt  time.Time         `json:"exported_at"`
}

// NewEvent builds an Event for row i of table.
func NewEvent(jobID string, resource clearbooks.Resource, fingerprint string, table *clearbooks.Table, i int) Event {
	evt := Event{
		JobID:       jobID,
		Resource:    resource.String(),
		Fingerprint: fingerprint,
		ExportedAt:  time.Now().UTC(),
	}
	if table == nil || i < 0 || i >= table.Len() {
		return evt
	}
	evt.Columns = append([]string(nil), table.Columns...)
	evt.Row = make(map[string]string, len(table.Columns))
	for _, col := range table.Columns {
		evt.Row[col] = table.Rows[i][col]
	}
	return evt
}

// attributes are attached as message metadata by the queue publishers.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"job_id":      e.JobID,
		"resource":    e.Resource,
		"fingerprint": e.Fingerprint,
	}
}
