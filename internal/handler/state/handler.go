package state

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/digital-human/internal/store"
	"github.com/zhouzirui/digital-human/pkg/utils"
)

const (
	heartbeatInterval = 15 * time.Second
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
)

// Source 是状态快照的来源，*store.Store 满足该接口。
type Source interface {
	Get() store.State
	Subscribe(fn store.Listener) func()
}

// Handler 向外部渲染器推送数字人状态。
type Handler struct {
	source   Source
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New 创建状态处理器
func New(source Source, logger zerolog.Logger) *Handler {
	return &Handler{
		source: source,
		logger: logger.With().Str("component", "state-stream").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// RegisterRoutes 注册状态相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/state", h.handleSnapshot)
	r.Get("/api/state/stream", h.handleStream)
	r.Get("/ws/state", h.handleWebSocket)
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.source.Get())
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	updates, cancel := h.subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	if err := utils.SendSSEEvent(w, flusher, "state", h.source.Get()); err != nil {
		return
	}

	ctx := r.Context()
	h.logger.Debug().Str("remote", r.RemoteAddr).Msg("sse stream opened")

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug().Str("remote", r.RemoteAddr).Msg("sse stream closed")
			return
		case <-updates:
			if err := utils.SendSSEEvent(w, flusher, "state", h.source.Get()); err != nil {
				return
			}
		case <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.subscribe()
	defer cancel()

	// 渲染器只接收状态；读循环负责处理 pong 与关闭帧。
	closed := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Debug().Err(err).Msg("websocket read error")
				}
				return
			}
		}
	}()

	if err := h.writeState(conn, h.source.Get()); err != nil {
		return
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case <-updates:
			if err := h.writeState(conn, h.source.Get()); err != nil {
				h.logger.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeState(conn *websocket.Conn, s store.State) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(s)
}

// subscribe 返回变更信号通道，容量为 1，多次变更合并为一次。
// 通知可能乱序到达，所以写出时总是重新读取 Get()，而不是使用回调里的快照。
func (h *Handler) subscribe() (<-chan struct{}, func()) {
	updates := make(chan struct{}, 1)
	unsubscribe := h.source.Subscribe(func(store.State, store.State) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	return updates, unsubscribe
}
