package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"chief/internal/logger"
	"chief/internal/monitor/store"
	"chief/pkg/telemetry"
)

// EventStore is the persistence dependency the ingest handlers need.
type EventStore interface {
	InsertEvent(ctx context.Context, e *store.Event) error
}

// CheckApplier is the Check Engine dependency: every accepted event
// with a non-null jobName is run through it synchronously, matching
// the teacher's in-request-path database writes (no separate queue).
type CheckApplier interface {
	ApplyEvent(ctx context.Context, ev telemetry.Event, receivedAt time.Time) error
}

type handlers struct {
	store      EventStore
	checks     CheckApplier
	now        func() time.Time
	log        *slog.Logger
	batchLimit int
}

type ingestResponse struct {
	Inserted int `json:"inserted"`
	Dropped  int `json:"dropped"`
}

// wireEvent mirrors telemetry.Event but decodes returnCode/durationMs
// as float64 so fractional values sent by a lenient client are
// truncated rather than rejected outright, per the normalization
// contract.
type wireEvent struct {
	SourceType string `json:"sourceType"`
	EventType  string `json:"eventType"`
	Level      string `json:"level"`
	Message    string `json:"message"`
	EventAt    string `json:"eventAt"`

	JobName      string `json:"jobName"`
	ScriptPath   string `json:"scriptPath"`
	RunID        string `json:"runId"`
	ScheduledFor string `json:"scheduledFor"`

	Success    *bool    `json:"success"`
	ReturnCode *float64 `json:"returnCode"`
	DurationMs *float64 `json:"durationMs"`

	Metadata map[string]interface{} `json:"metadata"`
}

func (we wireEvent) toEvent(now time.Time) telemetry.Event {
	ev := telemetry.Event{
		SourceType:   telemetry.SourceType(we.SourceType),
		EventType:    we.EventType,
		Level:        telemetry.Level(we.Level),
		Message:      we.Message,
		JobName:      we.JobName,
		ScriptPath:   we.ScriptPath,
		RunID:        we.RunID,
		ScheduledFor: we.ScheduledFor,
		Success:      we.Success,
		Metadata:     we.Metadata,
	}
	if we.EventAt != "" {
		if t, err := time.Parse(time.RFC3339, we.EventAt); err == nil {
			ev.EventAt = t
		}
	}
	if we.ReturnCode != nil {
		v := int(*we.ReturnCode)
		ev.ReturnCode = &v
	}
	if we.DurationMs != nil {
		v := int(*we.DurationMs)
		ev.DurationMs = &v
	}
	return ev
}

func (h *handlers) postEvent(w http.ResponseWriter, r *http.Request) {
	var we wireEvent
	if err := json.NewDecoder(r.Body).Decode(&we); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp := h.acceptBatch(r.Context(), []wireEvent{we})
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) postEventBatch(w http.ResponseWriter, r *http.Request) {
	var batch []wireEvent
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if h.batchLimit > 0 && len(batch) > h.batchLimit {
		batch = batch[:h.batchLimit]
	}
	resp := h.acceptBatch(r.Context(), batch)
	h.respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) acceptBatch(ctx context.Context, batch []wireEvent) ingestResponse {
	var resp ingestResponse
	now := h.now()

	for _, we := range batch {
		ev := we.toEvent(now)
		if !ev.Normalize(now) {
			resp.Dropped++
			continue
		}

		evCtx := logger.WithRunID(ctx, ev.RunID)
		evLog := logger.FromContext(evCtx, h.log)

		row, err := toStoredEvent(ev, now)
		if err != nil {
			evLog.Error("encode event metadata failed", "error", err, "eventType", ev.EventType)
			resp.Dropped++
			continue
		}
		if err := h.store.InsertEvent(evCtx, row); err != nil {
			evLog.Error("insert event failed", "error", err, "eventType", ev.EventType)
			resp.Dropped++
			continue
		}
		resp.Inserted++

		if ev.JobName != "" {
			h.applyCheck(evCtx, evLog, ev, now)
		}
	}
	return resp
}

// applyCheck recovers from a panic in the Check Engine so that a bad
// event never takes down the ingest handler or the rest of the batch.
func (h *handlers) applyCheck(ctx context.Context, log *slog.Logger, ev telemetry.Event, receivedAt time.Time) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("check engine panic recovered", "panic", r, "jobName", ev.JobName, "eventType", ev.EventType)
		}
	}()
	if err := h.checks.ApplyEvent(ctx, ev, receivedAt); err != nil {
		log.Error("check engine apply failed", "error", err, "jobName", ev.JobName, "eventType", ev.EventType)
	}
}

func (h *handlers) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

func toStoredEvent(ev telemetry.Event, receivedAt time.Time) (*store.Event, error) {
	metadata := ev.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, err
	}

	row := &store.Event{
		SourceType: string(ev.SourceType),
		EventType:  ev.EventType,
		Level:      string(ev.Level),
		Message:    ev.Message,
		EventAt:    ev.EventAt,
		ReceivedAt: receivedAt,
		Success:    ev.Success,
		ReturnCode: ev.ReturnCode,
		DurationMs: ev.DurationMs,
		Metadata:   string(metadataJSON),
	}
	if ev.JobName != "" {
		row.JobName = &ev.JobName
	}
	if ev.ScriptPath != "" {
		row.ScriptPath = &ev.ScriptPath
	}
	if ev.RunID != "" {
		row.RunID = &ev.RunID
	}
	if ev.ScheduledFor != "" {
		if t, err := time.Parse(time.RFC3339, ev.ScheduledFor); err == nil {
			row.ScheduledFor = &t
		}
	}
	return row, nil
}
