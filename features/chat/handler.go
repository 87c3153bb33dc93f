package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"docchat/internal/answer"
	"docchat/internal/middleware"
	"docchat/internal/session"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Chat answers one question over Server-Sent Events. The stream carries
// status, delta, done and error events; done includes the session id so the
// client can continue the conversation.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(ctx, w, "INTERNAL_ERROR", "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	stream := &sseWriter{w: w, flusher: flusher}

	ev := Events{
		OnStatus: func(stage string) {
			_ = stream.send("status", map[string]string{"stage": stage})
		},
		OnDelta: func(text string) error {
			return stream.send("delta", map[string]string{"text": text})
		},
	}

	ans, err := h.service.Ask(ctx, req.SessionID, req.Message, ev)
	if err != nil && ans == nil {
		h.failRequest(ctx, w, stream, err)
		return
	}
	if err != nil {
		slog.WarnContext(ctx, "chat stream ended early", "error", err, "session_id", ans.SessionID)
	}

	if sendErr := stream.send("done", ans); sendErr != nil {
		slog.WarnContext(ctx, "failed to send done event", "error", sendErr)
	}
}

// failRequest reports an error either as a plain JSON response (nothing
// streamed yet) or as a terminal SSE error event.
func (h *Handler) failRequest(ctx context.Context, w http.ResponseWriter, stream *sseWriter, err error) {
	code, message, status := "INTERNAL_ERROR", "Internal Server Error", http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrSessionBusy):
		code, message, status = "BUSY", "Session is processing another request", http.StatusConflict
	case errors.Is(err, answer.ErrGeneration):
		code, message, status = "UNAVAILABLE", "Answer generation failed", http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled):
		// Client went away; nothing to report.
		return
	}

	slog.ErrorContext(ctx, "chat request failed", "error", err, "code", code)

	if stream.started {
		_ = stream.send("error", map[string]string{"code": code, "message": message})
		return
	}
	h.writeError(ctx, w, code, message, status)
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (s *sseWriter) send(event string, data interface{}) error {
	if !s.started {
		s.w.Header().Set("Content-Type", "text/event-stream")
		s.w.Header().Set("Cache-Control", "no-cache")
		s.w.Header().Set("Connection", "keep-alive")
		s.started = true
	}

	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, body); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
