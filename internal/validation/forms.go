package validation

import (
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// SignupForm 注册表单
type SignupForm struct {
	FirstName string    `json:"first_name" validate:"name"`
	LastName  string    `json:"last_name" validate:"name"`
	Username  string    `json:"username" validate:"username"`
	Email     string    `json:"email" validate:"required,email"`
	Password  string    `json:"password" validate:"password"`
	BirthDate time.Time `json:"birth_date" validate:"age"`
}

// ProfileForm 资料设置表单
type ProfileForm struct {
	FirstName string    `json:"first_name" validate:"name"`
	LastName  string    `json:"last_name" validate:"name"`
	Username  string    `json:"username" validate:"username"`
	About     string    `json:"about" validate:"about"`
	BirthDate time.Time `json:"birth_date" validate:"age"`
}

// PostForm 发帖表单
type PostForm struct {
	Content string `json:"content" validate:"post_content"`
}

// Validator 基于 struct tag 的表单校验器
type Validator struct {
	v   *validator.Validate
	now func() time.Time
}

// NewValidator 创建表单校验器
func NewValidator() *Validator {
	fv := &Validator{
		v:   validator.New(validator.WithRequiredStructEnabled()),
		now: time.Now,
	}

	fv.v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	fv.register("name", func(fl validator.FieldLevel) Result { return Name(fl.Field().String()) })
	fv.register("username", func(fl validator.FieldLevel) Result { return Username(fl.Field().String()) })
	fv.register("password", func(fl validator.FieldLevel) Result { return Password(fl.Field().String()) })
	fv.register("about", func(fl validator.FieldLevel) Result { return About(fl.Field().String()) })
	fv.register("post_content", func(fl validator.FieldLevel) Result {
		return PostContent(fl.Field().String(), DefaultPostMin, DefaultPostMax)
	})
	fv.register("age", func(fl validator.FieldLevel) Result {
		birth, _ := fl.Field().Interface().(time.Time)
		return Age(birth, fv.now())
	})

	return fv
}

func (fv *Validator) register(tag string, rule func(validator.FieldLevel) Result) {
	// 标签名固定，注册失败只可能是编程错误
	if err := fv.v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return rule(fl).Valid
	}, true); err != nil {
		panic(err)
	}
}

// Validate 校验表单，返回第一个失败字段的消息
func (fv *Validator) Validate(form any) Result {
	err := fv.v.Struct(form)
	if err == nil {
		return ok()
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fail("Invalid form")
	}
	return fail(fv.message(fieldErrs[0]))
}

func (fv *Validator) message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Invalid email address"
	case "name":
		if fe.Field() == "last_name" {
			return "Last name must be at least 2 characters"
		}
		return "First name must be at least 2 characters"
	case "username":
		return Username(asString(fe.Value())).Error
	case "password":
		return Password(asString(fe.Value())).Error
	case "about":
		return About(asString(fe.Value())).Error
	case "post_content":
		return PostContent(asString(fe.Value()), DefaultPostMin, DefaultPostMax).Error
	case "age":
		birth, _ := fe.Value().(time.Time)
		return Age(birth, fv.now()).Error
	}
	return fe.Field() + " is invalid"
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
