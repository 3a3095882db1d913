package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	wire "github.com/zhouzirui/digital-human/internal/model/dialogue"
	chatService "github.com/zhouzirui/digital-human/internal/service/chat"
	"github.com/zhouzirui/digital-human/pkg/utils"
)

// Handler 对话服务的HTTP处理器
type Handler struct {
	chatSvc *chatService.Service
	logger  zerolog.Logger
}

// New 创建对话处理器
func New(chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.With().Str("component", "chat-handler").Logger(),
	}
}

// RegisterRoutes 注册对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/chat", h.handleChat)
		v1.Get("/sessions/{sessionID}/history", h.handleHistory)
		v1.Delete("/sessions/{sessionID}", h.handleClearSession)
	})
}

// handleHealth 健康检查，services 描述各依赖的可用情况
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	llm := "mock"
	if h.chatSvc.LLMEnabled() {
		llm = "enabled"
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"services": map[string]string{
			"dialogue": "ok",
			"llm":      llm,
		},
	})
}

// handleChat 生成一轮对话回复
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload wire.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(payload.UserText) == "" {
		utils.RespondError(w, http.StatusBadRequest, "userText is required")
		return
	}

	reply, _ := h.chatSvc.GenerateReply(r.Context(), payload)
	utils.RespondJSON(w, http.StatusOK, reply)
}

// handleHistory 返回会话历史
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.chatSvc.LoadTranscript(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
}

// handleClearSession 删除会话历史
func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.chatSvc.ClearSession(r.Context(), sessionID); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Error().Err(err).Msg("chat request failed")
	utils.RespondError(w, http.StatusInternalServerError, "internal error")
}
