package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/evidentia-ai/evidentia/internal/model"
	"github.com/evidentia-ai/evidentia/internal/notify"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 64 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsFrame is the envelope for every client<->server WebSocket message:
// {chat.send|chat.abort|chat.history} from the client, and
// {chat.delta|chat.tool|chat.done|chat.error|notify.<kind>|chat.history.result}
// from the server.
type wsFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsChatSendPayload struct {
	Question string `json:"question"`
}

// HandleWebSocket upgrades the connection and serves both the chat frame
// protocol and this actor's notify.* feed over the same socket.
func (h *Handlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	caseUID := r.URL.Query().Get("case_uid")
	actorID := actorFromContext(r.Context())

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	send := make(chan wsFrame, 64)
	var sinkID string
	if h.notify != nil && actorID != "" {
		sinkID = h.notify.Register(actorID, notify.SinkFunc(func(_ context.Context, kind notify.Kind, payload any) error {
			raw, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			select {
			case send <- wsFrame{Type: "notify." + string(kind), Payload: raw}:
				return nil
			default:
				return context.DeadlineExceeded
			}
		}))
		defer h.notify.Unregister(actorID, sinkID)
	}

	go h.wsWritePump(ctx, conn, send)
	h.wsReadPump(ctx, conn, caseUID, actorID, send)
}

func (h *Handlers) wsWritePump(ctx context.Context, conn *websocket.Conn, send <-chan wsFrame) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsReadPump drives frame handling until the connection closes. It does
// not close send: the notify sink registered in HandleWebSocket writes to
// the same channel from a separate goroutine for the lifetime of the
// connection, so closing it here would race a send on a closed channel.
// wsWritePump exits on ctx cancellation instead.
func (h *Handlers) wsReadPump(ctx context.Context, conn *websocket.Conn, caseUID, actorID string, send chan<- wsFrame) {
	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wsFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			send <- errorFrame(model.ErrValidation, "malformed frame")
			continue
		}
		switch frame.Type {
		case "chat.send":
			h.wsHandleChatSend(ctx, caseUID, actorID, frame.Payload, send)
		case "chat.history":
			h.wsHandleChatHistory(ctx, caseUID, send)
		case "chat.abort":
			// Chat answers are computed synchronously in this implementation, so
			// there is nothing in flight to cancel; acknowledged as a no-op.
		default:
			send <- errorFrame(model.ErrValidation, "unknown frame type: "+frame.Type)
		}
	}
}

func (h *Handlers) wsHandleChatSend(ctx context.Context, caseUID, actorID string, payload json.RawMessage, send chan<- wsFrame) {
	var req wsChatSendPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.Question == "" {
		send <- errorFrame(model.ErrValidation, "chat.send requires a non-empty question")
		return
	}

	assertions, err := h.db.ListAssertionsByCase(ctx, caseUID, 0, 0)
	if err != nil {
		send <- errorFrame(model.ErrInternal, err.Error())
		return
	}
	if len(assertions) == 0 {
		send <- deltaFrame("")
		send <- doneFrame(chatResponse{
			AnswerType:         AnswerHypothesis,
			EvidenceCitations:  []string{},
			CannotAnswerReason: "evidence_insufficient",
		})
		return
	}

	answerText, citations := h.draftAnswer(ctx, caseUID, req.Question, assertions)
	send <- toolFrame("assertion_lookup", len(assertions))
	send <- deltaFrame(answerText)

	allGrounded := len(citations) > 0
	for _, uid := range citations {
		if _, err := h.db.GetSourceClaim(ctx, uid); err != nil {
			allGrounded = false
			break
		}
	}
	resp := chatResponse{EvidenceCitations: citations}
	switch {
	case len(citations) == 0:
		resp.AnswerType = AnswerHypothesis
		resp.CannotAnswerReason = "evidence_insufficient"
	case allGrounded:
		resp.AnswerType = AnswerFact
		resp.AnswerText = answerText
	default:
		resp.AnswerType = AnswerInference
		resp.AnswerText = answerText
	}
	send <- doneFrame(resp)
}

func (h *Handlers) wsHandleChatHistory(ctx context.Context, caseUID string, send chan<- wsFrame) {
	narratives, err := h.db.ListNarrativesByCase(ctx, caseUID)
	if err != nil {
		send <- errorFrame(model.ErrInternal, err.Error())
		return
	}
	raw, _ := json.Marshal(map[string]any{"narratives": narratives})
	send <- wsFrame{Type: "chat.history.result", Payload: raw}
}

func deltaFrame(text string) wsFrame {
	raw, _ := json.Marshal(map[string]any{"text": text})
	return wsFrame{Type: "chat.delta", Payload: raw}
}

func toolFrame(name string, resultCount int) wsFrame {
	raw, _ := json.Marshal(map[string]any{"tool": name, "result_count": resultCount})
	return wsFrame{Type: "chat.tool", Payload: raw}
}

func doneFrame(resp chatResponse) wsFrame {
	raw, _ := json.Marshal(resp)
	return wsFrame{Type: "chat.done", Payload: raw}
}

func errorFrame(code model.ErrorCode, detail string) wsFrame {
	raw, _ := json.Marshal(map[string]any{"error_code": code, "detail": detail})
	return wsFrame{Type: "chat.error", Payload: raw}
}
