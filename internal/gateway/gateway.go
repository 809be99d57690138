package gateway

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"sudooom.social.client/internal/forwarder"
	"sudooom.social.client/internal/model"
	appErrors "sudooom.social.client/pkg/errors"
)

// Client 后端网关的类型化访问层，所有调用都经过 Forwarder
type Client struct {
	fwd   *forwarder.Forwarder
	token string
}

// New 为一个会话凭证创建网关客户端
func New(fwd *forwarder.Forwarder, token string) *Client {
	return &Client{fwd: fwd, token: token}
}

// Token 当前会话凭证
func (c *Client) Token() string {
	return c.token
}

// CurrentUser 获取当前登录用户
// GET /users/me
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.get(ctx, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListConversations 按游标获取会话预览页，before 为零值时取第一页
// GET /conversations?before=&limit=
func (c *Client) ListConversations(ctx context.Context, before time.Time, limit int) ([]model.ConversationPreview, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	if !before.IsZero() {
		query.Set("before", before.UTC().Format(time.RFC3339Nano))
	}

	var page []model.ConversationPreview
	if err := c.get(ctx, "/conversations", query, &page); err != nil {
		return nil, err
	}
	return page, nil
}

// GetConversation 获取与某个用户的完整会话记录
// GET /conversations/:interlocutorID
func (c *Client) GetConversation(ctx context.Context, interlocutorID string) (*model.ConversationPreview, error) {
	var preview model.ConversationPreview
	if err := c.get(ctx, "/conversations/"+url.PathEscape(interlocutorID), nil, &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// MarkConversationRead 通知后端会话已读
// POST /conversations/:interlocutorID/read
func (c *Client) MarkConversationRead(ctx context.Context, interlocutorID string) error {
	res := c.fwd.Post(ctx, "/conversations/"+url.PathEscape(interlocutorID)+"/read", c.token, nil)
	return asError(res)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	res := c.fwd.Get(ctx, path, c.token, query)
	if err := asError(res); err != nil {
		return err
	}
	if err := res.Decode(out); err != nil {
		return appErrors.ErrInvalidResponse.Wrap(err)
	}
	return nil
}

// asError 失败信封转换为 AppError
func asError(res *forwarder.Result) error {
	if res.OK {
		return nil
	}
	return appErrors.FromStatus(res.Status, res.Message)
}
