package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"sudooom.social.client/internal/validation"
	"sudooom.social.client/pkg/response"
)

// ValidateHandler 表单校验接口，结果总是 200，校验失败体现在 valid/error 字段
type ValidateHandler struct {
	v *validation.Validator
}

// NewValidateHandler 创建校验处理器
func NewValidateHandler(v *validation.Validator) *ValidateHandler {
	return &ValidateHandler{v: v}
}

// Signup 注册表单
// POST /api/validate/signup
func (h *ValidateHandler) Signup(c *gin.Context) {
	var form validation.SignupForm
	h.validate(c, &form)
}

// Profile 资料表单
// POST /api/validate/profile
func (h *ValidateHandler) Profile(c *gin.Context) {
	var form validation.ProfileForm
	h.validate(c, &form)
}

// Post 发帖内容
// POST /api/validate/post
func (h *ValidateHandler) Post(c *gin.Context) {
	var form validation.PostForm
	h.validate(c, &form)
}

// Image 上传图片：大小、类型嗅探、尺寸
// POST /api/validate/image (multipart, 字段 file)
func (h *ValidateHandler) Image(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		response.InvalidParams(c, "file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.InvalidParams(c, "file is unreadable")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, validation.MaxImageSize+1))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "file is unreadable")
		return
	}
	response.OK(c, validation.Image(c.Request.Context(), data))
}

func (h *ValidateHandler) validate(c *gin.Context, form any) {
	if err := c.ShouldBindJSON(form); err != nil {
		response.InvalidParams(c, err.Error())
		return
	}
	response.OK(c, h.v.Validate(form))
}
