package handler

import (
	"encoding/json"
	"net/http"

	"companion-go/internal/middleware"
	"companion-go/internal/service"
	"companion-go/pkg/log"
	"companion-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // 允许所有来源
		},
	}
)

// ChatHandler 负责对话接口，包括 HTTP 与 WebSocket 两种入口。
type ChatHandler struct {
	chatService service.ChatService
	userService service.UserService
	jwtManager  *token.JWTManager
}

// NewChatHandler 创建一个新的 ChatHandler。
func NewChatHandler(chatService service.ChatService, userService service.UserService, jwtManager *token.JWTManager) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
		userService: userService,
		jwtManager:  jwtManager,
	}
}

// ChatRequest 是一次对话请求，sessionId 可省略。
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

// Chat 处理 POST /chat。
func (h *ChatHandler) Chat(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond(c, http.StatusBadRequest, "无效的请求负载", nil)
		return
	}

	result, err := h.chatService.Respond(c.Request.Context(), user, req.SessionID, req.Message)
	if err != nil {
		log.Warnf("Chat: failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "success", result)
}

// History 返回当前用户的全部聊天记录。
func (h *ChatHandler) History(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	msgs, err := h.chatService.History(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "success", msgs)
}

// Search 在当前用户的聊天记录中全文检索。
func (h *ChatHandler) Search(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	hits, err := h.chatService.Search(c.Request.Context(), user.ID, c.Query("q"))
	if err != nil {
		log.Warnf("Search: failed for user %d, error: %v", user.ID, err)
		respondError(c, err)
		return
	}
	respond(c, http.StatusOK, "success", hits)
}

// Handle 处理一个传入的 WebSocket 连接。每个文本帧是一条 ChatRequest（或纯文本消息），
// 回复一帧 {response, sessionId} 或 {error}。同一连接上省略 sessionId 时沿用上一次的会话。
func (h *ChatHandler) Handle(c *gin.Context) {
	user, _, ok := middleware.Authenticate(c, h.jwtManager, h.userService, c.Param("token"))
	if !ok {
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()

	log.Infof("WebSocket 连接已建立，用户: %d", user.ID)

	var sessionID string
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("从 WebSocket 读取消息失败: %v", err)
			}
			return
		}

		var req ChatRequest
		if len(message) > 0 && message[0] == '{' {
			if err := json.Unmarshal(message, &req); err != nil {
				_ = conn.WriteJSON(gin.H{"error": "无效的消息格式"})
				continue
			}
		} else {
			req.Message = string(message)
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		result, err := h.chatService.Respond(c.Request.Context(), user, req.SessionID, req.Message)
		if err != nil {
			log.Warnf("WebSocket 对话失败: %v", err)
			_, msg := statusFor(err)
			if err := conn.WriteJSON(gin.H{"error": msg}); err != nil {
				return
			}
			continue
		}
		sessionID = result.SessionID
		if err := conn.WriteJSON(result); err != nil {
			log.Warnf("写入 WebSocket 消息失败: %v", err)
			return
		}
	}
}
