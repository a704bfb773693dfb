package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/logging"
)

// LogsResponse lists buffered log entries.
type LogsResponse struct {
	Body struct {
		Entries []events.LogEntryEvent `json:"entries" doc:"Buffered log entries, oldest first"`
		Count   int                    `json:"count" example:"120" doc:"Number of entries"`
	}
}

// LogsQuery filters buffered log entries.
type LogsQuery struct {
	Module string `query:"module" example:"backend" doc:"Only entries from this module"`
	Since  uint64 `query:"since" doc:"Only entries with a larger sequence number"`
}

// ToLogEntryEvent converts a buffered entry to its event form.
func ToLogEntryEvent(entry logging.LogEntry) events.LogEntryEvent {
	return events.LogEntryEvent{
		Seq:        entry.Seq,
		Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
		Level:      entry.Level,
		Module:     entry.Module,
		Message:    entry.Message,
		Attributes: entry.Attributes,
	}
}

// registerLogRoutes registers the buffered log endpoint and the log stream.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Recent log entries held in memory, including backend output",
		Tags:        []string{"logs"},
	}, func(_ context.Context, input *LogsQuery) (*LogsResponse, error) {
		resp := &LogsResponse{}
		resp.Body.Entries = []events.LogEntryEvent{}
		for _, entry := range logging.GetBuffer().ReadAll() {
			if entry.Seq <= input.Since {
				continue
			}
			if input.Module != "" && entry.Module != input.Module {
				continue
			}
			resp.Body.Entries = append(resp.Body.Entries, ToLogEntryEvent(entry))
		}
		resp.Body.Count = len(resp.Body.Entries)
		return resp, nil
	})

	sse.Register(s.api, huma.Operation{
		OperationID: "logs-stream",
		Method:      http.MethodGet,
		Path:        "/api/logs/stream",
		Summary:     "Log Stream",
		Description: "Real-time log streaming via Server-Sent Events. Sends historical logs first, then streams new logs.",
		Tags:        []string{"logs"},
	}, map[string]any{
		"message": events.LogEntryEvent{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		// Subscribe before replaying so nothing logged in between is lost;
		// the client deduplicates on Seq.
		eventCh := make(chan any, 100)
		unsubscribe := func() {}
		if s.eventBus != nil {
			unsubscribe = events.SubscribeToChannel[events.LogEntryEvent](s.eventBus, eventCh)
		}
		defer unsubscribe()

		for _, entry := range logging.GetBuffer().ReadAll() {
			if err := send.Data(ToLogEntryEvent(entry)); err != nil {
				return
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case event := <-eventCh:
				if err := send.Data(event); err != nil {
					return
				}
			}
		}
	})
}
