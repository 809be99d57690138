package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"sudooom.social.client/internal/forwarder"
	"sudooom.social.client/pkg/response"
)

const maxProxyBody = 10 << 20

// ProxyHandler 浏览器请求透传到后端网关
type ProxyHandler struct {
	fwd        *forwarder.Forwarder
	cookieName string
}

// NewProxyHandler 创建透传处理器
func NewProxyHandler(fwd *forwarder.Forwarder, cookieName string) *ProxyHandler {
	return &ProxyHandler{fwd: fwd, cookieName: cookieName}
}

// Forward 透传请求，会话 cookie 原样带给网关，网关的 Set-Cookie 原样带回
// ANY /api/proxy/*path
func (h *ProxyHandler) Forward(c *gin.Context) {
	token, _ := c.Cookie(h.cookieName)

	req := forwarder.Request{
		Method: c.Request.Method,
		Path:   c.Param("path"),
		Query:  c.Request.URL.Query(),
		Token:  token,
		Relay:  c.Writer,
	}

	if c.Request.Body != nil && c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxProxyBody+1))
		if err != nil {
			response.InvalidParams(c, "Unreadable request body")
			return
		}
		if len(body) > maxProxyBody {
			response.Fail(c, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		if len(body) > 0 {
			if !json.Valid(body) {
				response.InvalidParams(c, "Request body must be JSON")
				return
			}
			req.Body = json.RawMessage(body)
		}
	}

	res := h.fwd.Do(c.Request.Context(), req)
	if !res.OK {
		response.Fail(c, res.Status, res.Message)
		return
	}
	response.Raw(c, res.Data)
}
