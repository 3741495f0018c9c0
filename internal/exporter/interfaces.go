package exporter

import (
	"context"

	"github.com/springboardpro/clearbooks/pkg/clearbooks"
	"github.com/springboardpro/clearbooks/pkg/publishers"
)

// TableFetcher downloads one ClearBooks resource.
type TableFetcher interface {
	Fetch(ctx context.Context, resource clearbooks.Resource, q clearbooks.Query) (*clearbooks.Table, error)
}

// EventPublisher delivers an event and reports how many sinks accepted it.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// RowStore remembers which rows were already delivered.
type RowStore interface {
	SeenRow(fingerprint string) (bool, error)
	MarkRow(fingerprint string) error
}

// Logger is the logging surface of the exporter.
type Logger interface {
	InfoObj(msg, key string, obj interface{})
	DebugObj(msg, key string, obj interface{})
	WarnObj(msg, key string, obj interface{})
	ErrorObj(msg, key string, obj interface{})
}
