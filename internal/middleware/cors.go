package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"sudooom.social.client/internal/config"
)

// CORS 跨域中间件
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:     cfg.AllowedMethods,
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           24 * time.Hour,
	}

	allowAll := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	switch {
	case allowAll && cfg.AllowCredentials:
		// 带凭证时不能返回 *，回显请求的 Origin
		corsCfg.AllowOriginFunc = func(string) bool { return true }
	case allowAll:
		corsCfg.AllowAllOrigins = true
	case len(cfg.AllowedOrigins) > 0:
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	default:
		corsCfg.AllowOriginFunc = func(string) bool { return false }
	}

	return cors.New(corsCfg)
}
