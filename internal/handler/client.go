package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sudooom.social.client/internal/middleware"
	"sudooom.social.client/internal/model"
	"sudooom.social.client/internal/toast"
	appErrors "sudooom.social.client/pkg/errors"
	"sudooom.social.client/pkg/response"
)

// ClientHandler 会话状态接口
type ClientHandler struct{}

// NewClientHandler 创建会话状态处理器
func NewClientHandler() *ClientHandler {
	return &ClientHandler{}
}

// ConversationPage 会话列表响应
type ConversationPage struct {
	Items   []model.ConversationPreview `json:"items"`
	HasMore bool                        `json:"has_more"`
	Loading bool                        `json:"loading"`
}

// GetState 当前用户、选中的聊天对象和未读计数
// GET /api/state
func (h *ClientHandler) GetState(c *gin.Context) {
	s := middleware.GetSession(c)
	response.OK(c, s.State().View())
}

// GetConversations 已加载的会话预览
// GET /api/conversations
func (h *ClientHandler) GetConversations(c *gin.Context) {
	response.OK(c, page(c))
}

// LoadMoreConversations 加载下一页
// POST /api/conversations/more
func (h *ClientHandler) LoadMoreConversations(c *gin.Context) {
	middleware.GetSession(c).LoadMore(c.Request.Context())
	response.OK(c, page(c))
}

// MarkConversationRead 标记会话已读
// POST /api/conversations/:id/read
func (h *ClientHandler) MarkConversationRead(c *gin.Context) {
	s := middleware.GetSession(c)

	cleared, err := s.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{
		"cleared":         cleared,
		"unread_messages": s.State().UnreadMessages(),
	})
}

// GetToasts 当前通知浮层
// GET /api/toasts
func (h *ClientHandler) GetToasts(c *gin.Context) {
	response.OK(c, middleware.GetSession(c).Toasts().Entries())
}

// PauseToast 指针悬停，暂停计时
// POST /api/toasts/:id/pause
func (h *ClientHandler) PauseToast(c *gin.Context) {
	h.toastAction(c, middleware.GetSession(c).Toasts().Pause)
}

// ResumeToast 指针离开，恢复计时
// POST /api/toasts/:id/resume
func (h *ClientHandler) ResumeToast(c *gin.Context) {
	h.toastAction(c, middleware.GetSession(c).Toasts().Resume)
}

// DismissToast 关闭浮层
// DELETE /api/toasts/:id
func (h *ClientHandler) DismissToast(c *gin.Context) {
	h.toastAction(c, middleware.GetSession(c).Toasts().Dismiss)
}

func (h *ClientHandler) toastAction(c *gin.Context, action func(id string) error) {
	if err := action(c.Param("id")); err != nil {
		if errors.Is(err, toast.ErrNotFound) {
			response.Error(c, appErrors.ErrNotFound.WithMessage("Toast not found"))
			return
		}
		response.Error(c, appErrors.ErrServerError.Wrap(err))
		return
	}
	response.OK(c, middleware.GetSession(c).Toasts().Entries())
}

// SetRecipient 选中聊天对象
// POST /api/recipient
func (h *ClientHandler) SetRecipient(c *gin.Context) {
	var u model.User
	if err := c.ShouldBindJSON(&u); err != nil {
		response.InvalidParams(c, err.Error())
		return
	}
	if u.ID == "" {
		response.InvalidParams(c, "id is required")
		return
	}

	s := middleware.GetSession(c)
	s.SetRecipient(c.Request.Context(), u)
	response.OK(c, s.State().View())
}

// ClearRecipient 取消选中
// DELETE /api/recipient
func (h *ClientHandler) ClearRecipient(c *gin.Context) {
	s := middleware.GetSession(c)
	s.ClearRecipient(c.Request.Context())
	response.OK(c, s.State().View())
}

func page(c *gin.Context) ConversationPage {
	list := middleware.GetSession(c).Conversations()
	return ConversationPage{
		Items:   list.Items(),
		HasMore: list.HasMore(),
		Loading: list.Loading(),
	}
}
