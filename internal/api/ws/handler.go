package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webclone/internal/domain/clone"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/logging"
	"github.com/GriffinCanCode/webclone/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webclone/internal/shared/id"
	"github.com/GriffinCanCode/webclone/internal/shared/types"
	"github.com/GriffinCanCode/webclone/internal/shared/utils"
)

// Message types
const (
	TypeStage  = "stage"
	TypeResult = "result"
	TypeError  = "error"
)

const writeWait = 10 * time.Second

// Message is one server → client frame
type Message struct {
	Type        string          `json:"type"`
	CloneID     string          `json:"clone_id,omitempty"`
	Stage       clone.Stage     `json:"stage,omitempty"`
	ElapsedMs   int64           `json:"elapsed_ms,omitempty"`
	ClonedHTML  string          `json:"cloned_html,omitempty"`
	OriginalURL string          `json:"original_url,omitempty"`
	Kind        types.ErrorKind `json:"kind,omitempty"`
	Detail      string          `json:"detail,omitempty"`
}

// Cloner runs one clone request
type Cloner interface {
	Clone(ctx context.Context, req types.CloneRequest, observe clone.StageObserver) types.CloneResult
}

// Handler manages stream connections
type Handler struct {
	cloner   Cloner
	upgrader websocket.Upgrader
	log      *logging.Logger
	metrics  *monitoring.Metrics
}

// NewHandler creates a stream handler. origins restricts the Origin header;
// empty or "*" accepts any origin.
func NewHandler(cloner Cloner, origins []string, log *logging.Logger, metrics *monitoring.Metrics) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{
		cloner: cloner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     originChecker(origins),
		},
		log:     log.Named("ws"),
		metrics: metrics,
	}
}

func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[strings.TrimRight(o, "/")] = true
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

// HandleConnection upgrades the request and streams one clone
func (h *Handler) HandleConnection(c *gin.Context) {
	raw := utils.EnsureScheme(c.Query("url"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	streamID := id.NewStreamID().String()
	log := h.log.With(zap.String("stream_id", streamID), logging.URL(raw))
	log.Debug("Stream opened")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// The client never sends anything we act on; a read error means it left
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			h.metrics.RecordWSMessage("in", "ignored")
		}
	}()

	observe := func(e clone.Event) {
		if e.Stage == clone.StageDone || e.Stage == clone.StageFailed {
			return
		}
		_ = h.send(conn, Message{
			Type:      TypeStage,
			CloneID:   e.CloneID,
			Stage:     e.Stage,
			ElapsedMs: e.Elapsed.Milliseconds(),
		})
	}

	result := h.cloner.Clone(ctx, types.CloneRequest{RawURL: raw}, observe)

	final := Message{Type: TypeResult, CloneID: result.ID}
	if result.OK() {
		final.ClonedHTML = result.Cloned.HTML
		final.OriginalURL = raw
	} else {
		final.Type = TypeError
		final.Kind = result.Kind()
		final.Detail = result.Failure.Message
	}
	if err := h.send(conn, final); err != nil {
		log.Debug("Client left before the result was delivered", zap.Error(err))
		return
	}

	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	log.Debug("Stream closed", logging.CloneID(result.ID))
}

func (h *Handler) send(conn *websocket.Conn, msg Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return err
	}
	h.metrics.RecordWSMessage("out", msg.Type)
	return nil
}
