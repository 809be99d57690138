package validation

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// 字段约束
const (
	MinNameLength     = 2
	MinUsernameLength = 4
	MinPasswordLength = 8
	MaxAboutLength    = 400

	DefaultPostMin = 1
	DefaultPostMax = 5000

	MinAge = 13
	MaxAge = 111
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Result 校验结果，Error 为面向用户的消息
type Result struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func ok() Result { return Result{Valid: true} }

func fail(msg string) Result { return Result{Valid: false, Error: msg} }

// First 返回第一个失败结果，全部通过时返回通过
func First(results ...Result) Result {
	for _, r := range results {
		if !r.Valid {
			return r
		}
	}
	return ok()
}

var emailValidator = validator.New()

// Email 邮箱格式
func Email(s string) bool {
	if s == "" {
		return false
	}
	return emailValidator.Var(s, "email") == nil
}

// Name 名或姓
func Name(s string) Result {
	if utf8.RuneCountInString(strings.TrimSpace(s)) < MinNameLength {
		return fail("Name must be at least 2 characters")
	}
	return ok()
}

// Username 用户名
func Username(s string) Result {
	if utf8.RuneCountInString(s) < MinUsernameLength {
		return fail("Username must be at least 4 characters")
	}
	if !usernamePattern.MatchString(s) {
		return fail("Username may only contain letters, numbers, '_', '.' and '-'")
	}
	return ok()
}

// Password 密码强度：长度、小写、大写、数字、符号
func Password(s string) Result {
	if utf8.RuneCountInString(s) < MinPasswordLength {
		return fail("Password must be at least 8 characters")
	}

	var lower, upper, digit, symbol bool
	for _, r := range s {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	switch {
	case !lower:
		return fail("Password must contain a lowercase letter")
	case !upper:
		return fail("Password must contain an uppercase letter")
	case !digit:
		return fail("Password must contain a number")
	case !symbol:
		return fail("Password must contain a symbol")
	}
	return ok()
}

// About 个人简介
func About(s string) Result {
	if utf8.RuneCountInString(s) > MaxAboutLength {
		return fail("About must be at most 400 characters")
	}
	return ok()
}

// PostContent 帖子内容长度，minLen/maxLen 非正数时使用默认值
func PostContent(s string, minLen, maxLen int) Result {
	if minLen <= 0 {
		minLen = DefaultPostMin
	}
	if maxLen <= 0 {
		maxLen = DefaultPostMax
	}

	n := utf8.RuneCountInString(strings.TrimSpace(s))
	if n < minLen {
		if minLen == 1 {
			return fail("Post cannot be empty")
		}
		return fail("Post is too short")
	}
	if n > maxLen {
		return fail("Post is too long")
	}
	return ok()
}

// Age 年龄区间 [13, 111]
func Age(birthDate, now time.Time) Result {
	if birthDate.IsZero() {
		return fail("Date of birth is required")
	}
	age := YearsBetween(birthDate, now)
	if age < MinAge {
		return fail("You must be at least 13 years old")
	}
	if age > MaxAge {
		return fail("Please enter a valid date of birth")
	}
	return ok()
}

// YearsBetween 周岁
func YearsBetween(birthDate, now time.Time) int {
	years := now.Year() - birthDate.Year()
	if now.Month() < birthDate.Month() ||
		(now.Month() == birthDate.Month() && now.Day() < birthDate.Day()) {
		years--
	}
	return years
}
