package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"chatapp/internal/auth"
	"chatapp/internal/config"
	"chatapp/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	cfg     config.Config
	userSvc *service.UserService
	chatSvc *service.ChatService
	msgSvc  *service.MessageService
}

func NewHandler(cfg config.Config, userSvc *service.UserService, chatSvc *service.ChatService, msgSvc *service.MessageService) *Handler {
	return &Handler{cfg: cfg, userSvc: userSvc, chatSvc: chatSvc, msgSvc: msgSvc}
}

// writeError 按错误分类映射状态码；未分类的错误只记录日志，不向客户端暴露细节。
func writeError(c *gin.Context, err error, op string) {
	var svcErr *service.Error
	msg := ""
	if errors.As(err, &svcErr) {
		msg = svcErr.Msg
	}
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"message": msg})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"message": msg})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": msg})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": msg})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"message": msg})
	default:
		log.Error().Err(err).Uint("user_id", auth.GetUserID(c)).Msg(op)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
	}
}

func badPayload(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid payload"})
}

func paramID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid id"})
		return 0, false
	}
	return uint(id), true
}

func (h *Handler) tokenTTL() time.Duration {
	return time.Duration(h.cfg.TokenTTLHours) * time.Hour
}

func (h *Handler) issueCookie(c *gin.Context, userID uint) bool {
	token, err := auth.GenerateToken(userID, h.cfg.JWTSecret, h.tokenTTL())
	if err != nil {
		writeError(c, err, "generate token")
		return false
	}
	auth.SetCookie(c, token, h.tokenTTL(), h.cfg.SecureCookies())
	return true
}

// Signup 处理用户注册请求，成功后直接登录。
func (h *Handler) Signup(c *gin.Context) {
	var req service.SignupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	user, err := h.userSvc.Signup(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "signup")
		return
	}
	if !h.issueCookie(c, user.ID) {
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "userId": user.ID})
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	user, err := h.userSvc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err, "login")
		return
	}
	if !h.issueCookie(c, user.ID) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged in successfully", "userId": user.ID})
}

func (h *Handler) Logout(c *gin.Context) {
	auth.ClearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "Logout successfully"})
}

// ValidateToken 返回当前会话的用户 ID。
func (h *Handler) ValidateToken(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"userId": auth.GetUserID(c)})
}

func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.userSvc.List(c.Request.Context(), auth.GetUserID(c), c.Query("search"))
	if err != nil {
		writeError(c, err, "list users")
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	user, err := h.userSvc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err, "get user")
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req service.UpdateInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	user, err := h.userSvc.Update(c.Request.Context(), auth.GetUserID(c), id, req)
	if err != nil {
		writeError(c, err, "update user")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User updated successfully", "user": user})
}

func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.userSvc.Delete(c.Request.Context(), auth.GetUserID(c), id); err != nil {
		writeError(c, err, "delete user")
		return
	}
	auth.ClearCookie(c)
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

// OpenChat 获取或创建与对方的会话：新建返回 201，已存在返回 200。
func (h *Handler) OpenChat(c *gin.Context) {
	var req struct {
		UserID uint `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	chat, created, err := h.chatSvc.GetOrCreate(c.Request.Context(), auth.GetUserID(c), req.UserID)
	if err != nil {
		writeError(c, err, "open chat")
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, chat)
}

// ChatWithPeer 返回当前用户与路径中用户之间的会话。
func (h *Handler) ChatWithPeer(c *gin.Context) {
	peerID, ok := paramID(c)
	if !ok {
		return
	}
	chat, err := h.chatSvc.FindWithPeer(c.Request.Context(), auth.GetUserID(c), peerID)
	if err != nil {
		writeError(c, err, "chat with peer")
		return
	}
	c.JSON(http.StatusOK, chat)
}

// ListChats 默认返回当前用户的会话，scope=all 时返回全部会话。
func (h *Handler) ListChats(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		chats any
		err   error
	)
	if c.Query("scope") == "all" {
		chats, err = h.chatSvc.ListAll(ctx)
	} else {
		chats, err = h.chatSvc.ListForUser(ctx, auth.GetUserID(c))
	}
	if err != nil {
		writeError(c, err, "list chats")
		return
	}
	c.JSON(http.StatusOK, chats)
}

// SendMessage 持久化一条消息。实时转发由客户端在成功后通过 WebSocket 另行发起。
func (h *Handler) SendMessage(c *gin.Context) {
	var req service.AppendInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badPayload(c)
		return
	}
	req.SenderID = auth.GetUserID(c)
	msg, err := h.msgSvc.Append(c.Request.Context(), req)
	if err != nil {
		writeError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) ListMessages(c *gin.Context) {
	chatID, ok := paramID(c)
	if !ok {
		return
	}
	msgs, err := h.msgSvc.List(c.Request.Context(), auth.GetUserID(c), chatID, c.Query("populate") == "chat")
	if err != nil {
		writeError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, msgs)
}
