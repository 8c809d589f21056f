package http

import (
	"encoding/json"
	"log"
	"net/http"

	"examprep-attempt-service/internal/domain"
	"examprep-attempt-service/internal/engine"
	"github.com/gorilla/websocket"
)

type WSHandler struct {
	engine   *engine.Engine
	upgrader websocket.Upgrader
}

func NewWSHandler(eng *engine.Engine) *WSHandler {
	return &WSHandler{
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	Position int `json:"position"`
	Option   int `json:"option"`
}

type reviewPayload struct {
	Position int `json:"position"`
}

type startedPayload struct {
	AttemptID       string            `json:"attemptId"`
	Questions       []domain.Question `json:"questions"`
	DurationSeconds int               `json:"durationSeconds"`
}

type tickPayload struct {
	Remaining  int `json:"remaining"`
	Answered   int `json:"answered"`
	Unanswered int `json:"unanswered"`
	Review     int `json:"review"`
}

type submitErrorPayload struct {
	Message  string `json:"message"`
	Terminal bool   `json:"terminal"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and runs one attempt over the
// connection: start, countdown ticks, answer capture, submit, result.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	testID := r.URL.Query().Get("testId")
	userID := r.URL.Query().Get("userId")
	if testID == "" || userID == "" {
		http.Error(w, "missing testId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, err := h.engine.Start(r.Context(), testID, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	attempt := session.Attempt()
	defer h.engine.Close(attempt.ID)

	updates, cancel, err := h.engine.Subscribe(attempt.ID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Queued before the update pump starts so the client always sees the
	// attempt metadata before any tick.
	send <- outboundMessage[any]{Type: "started", Payload: startedPayload{
		AttemptID:       attempt.ID,
		Questions:       attempt.Questions,
		DurationSeconds: attempt.DurationSeconds,
	}}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- translateEvent(update):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "select":
			var payload selectPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid select payload"}}
				continue
			}
			if err := h.engine.Select(attempt.ID, payload.Position, payload.Option); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "review":
			var payload reviewPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid review payload"}}
				continue
			}
			if err := h.engine.ToggleReview(attempt.ID, payload.Position); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		case "submit":
			if err := h.engine.RequestManualSubmit(attempt.ID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
			}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func translateEvent(ev engine.Event) outboundMessage[any] {
	switch ev.Kind {
	case engine.EventResult:
		return outboundMessage[any]{Type: "result", Payload: ev.Result}
	case engine.EventSubmitError:
		return outboundMessage[any]{Type: "submitError", Payload: submitErrorPayload{Message: ev.Message, Terminal: ev.Terminal}}
	case engine.EventResultError:
		return outboundMessage[any]{Type: "resultError", Payload: errorPayload{Message: ev.Message}}
	default:
		return outboundMessage[any]{Type: "tick", Payload: tickPayload{
			Remaining:  ev.Remaining,
			Answered:   ev.Answered,
			Unanswered: ev.Unanswered,
			Review:     ev.Review,
		}}
	}
}
