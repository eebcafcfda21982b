package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/js2py-docs/internal/auth"
	"github.com/sakif/js2py-docs/internal/editor"
	"github.com/sakif/js2py-docs/internal/execution"
	"github.com/sakif/js2py-docs/internal/executor"
	"github.com/sakif/js2py-docs/internal/model"
	"github.com/sakif/js2py-docs/internal/theme"
)

// Event types pushed to the page.
const (
	EventRuntimeReady  = "runtime_ready"
	EventRuntimeFailed = "runtime_failed"
	EventEditorReady   = "editor_ready"
	EventTheme         = "theme"
	EventResult        = "result"
	EventPong          = "pong"
	EventError         = "error"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingEvery   = (wsPongWait * 9) / 10
	wsReadLimit   = 64 << 10
	wsQueueLength = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// Event is one message on the stream.
type Event struct {
	Type        string              `json:"type"`
	Runtime     string              `json:"runtime,omitempty"`
	Error       string              `json:"error,omitempty"`
	Files       []string            `json:"files,omitempty"`
	Theme       theme.Mode          `json:"theme,omitempty"`
	EditorTheme string              `json:"editorTheme,omitempty"`
	Status      execution.RunStatus `json:"status,omitempty"`
	Instance    *execution.Snapshot `json:"instance,omitempty"`
	Message     string              `json:"message,omitempty"`
}

type inboundMessage struct {
	Type     string `json:"type"`
	Language string `json:"language,omitempty"`
}

// Hub fans events out to every open connection. Loader failure hooks use
// it: subscribers only hear about success, so failures are broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[chan Event]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan Event]struct{})}
}

// Broadcast queues ev on every connection without blocking.
func (h *Hub) Broadcast(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.clients {
		pushEvent(ch, ev)
	}
}

// Len reports the number of open connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) add(ch chan Event) {
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(ch chan Event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

// InstanceLookup finds the controller a connection belongs to.
// *service.PlaygroundService implements it.
type InstanceLookup interface {
	Authorize(tokenInstance, id string) error
	Controller(id string) (*execution.Controller, error)
}

// PythonReadiness is the interpreter loader as the stream sees it.
type PythonReadiness interface {
	Subscribe(fn func(executor.Interpreter)) (unsubscribe func())
}

// EditorReadiness is the editor bundle loader as the stream sees it.
type EditorReadiness interface {
	Subscribe(fn func(*editor.Bundle)) (unsubscribe func())
}

// WSHandler streams events to one page instance.
type WSHandler struct {
	instances InstanceLookup
	python    PythonReadiness
	editor    EditorReadiness
	hub       *Hub
	setting   theme.Setting
	source    theme.Source
	logger    *slog.Logger
}

func NewWSHandler(instances InstanceLookup, python PythonReadiness, bundles EditorReadiness, hub *Hub, setting theme.Setting, source theme.Source, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		instances: instances,
		python:    python,
		editor:    bundles,
		hub:       hub,
		setting:   setting,
		source:    source,
		logger:    logger,
	}
}

// HandleWS upgrades the connection and streams events until the page goes
// away.
//
// HTTP: GET /ws?instance={id}&token={token}
//
// Per connection:
//   - runtime_ready / editor_ready arrive once the shared loaders are ready
//     (immediately if they already are);
//   - runtime_failed arrives after every failed load attempt;
//   - theme arrives on connect and on every change of mode. The connection
//     owns one theme observer, released when it closes.
//
// The page may send {"type":"ping"} and {"type":"run","language":"python"}.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.URL.Query().Get("instance"))
	tokenInstance, _ := auth.InstanceIDFromContext(r.Context())
	if err := h.instances.Authorize(tokenInstance, id); err != nil {
		writeError(w, err)
		return
	}
	ctrl, err := h.instances.Controller(id)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	logger := h.logger.With(slog.String("instance", id))
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn.SetReadLimit(wsReadLimit)
	if err := conn.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	events := make(chan Event, wsQueueLength)
	writerDone := make(chan struct{})
	go writeLoop(ctx, conn, events, writerDone)

	h.hub.add(events)
	defer h.hub.remove(events)

	unsubscribePython := h.python.Subscribe(func(executor.Interpreter) {
		pushEvent(events, Event{Type: EventRuntimeReady, Runtime: "python"})
	})
	defer unsubscribePython()

	unsubscribeEditor := h.editor.Subscribe(func(b *editor.Bundle) {
		pushEvent(events, Event{Type: EventEditorReady, Files: b.Names()})
	})
	defer unsubscribeEditor()

	observer := theme.NewObserver(h.setting, h.source, func(m theme.Mode) {
		ctrl.SetTheme(m)
		pushEvent(events, Event{Type: EventTheme, Theme: m, EditorTheme: m.EditorTheme()})
	}, logger)
	if err := observer.Start(); err != nil {
		logger.Warn("theme observer failed to start", slog.String("error", err.Error()))
	}
	defer observer.Close()

	logger.Debug("websocket connected")

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}

		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushEvent(events, Event{Type: EventPong})
		case "run":
			lang, err := model.ParseLanguage(in.Language)
			if err != nil {
				pushEvent(events, Event{Type: EventError, Message: err.Error()})
				continue
			}
			go func() {
				status, err := ctrl.Run(ctx, lang)
				if err != nil {
					pushEvent(events, Event{Type: EventError, Message: err.Error()})
					return
				}
				snap := ctrl.Snapshot()
				pushEvent(events, Event{Type: EventResult, Status: status, Instance: &snap})
			}()
		default:
			pushEvent(events, Event{Type: EventError, Message: "unsupported type: " + in.Type})
		}
	}

	cancel()
	<-writerDone
	logger.Debug("websocket closed")
}

func writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan Event, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// pushEvent never blocks: when the queue is full the oldest event is
// dropped.
func pushEvent(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
