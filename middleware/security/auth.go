package security

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync"

	"WaGate/tools/errs"
	"WaGate/tools/security"

	"github.com/gin-gonic/gin"
)

// —— context key ——
const CtxAuthKey = "authorization"

var (
	secretMu sync.RWMutex
	secret   []byte
)

// SetSecret 启动时注入 API 密钥；为空表示不开鉴权
func SetSecret(s string) {
	secretMu.Lock()
	secret = []byte(s)
	secretMu.Unlock()
}

func currentSecret() []byte {
	secretMu.RLock()
	defer secretMu.RUnlock()
	return secret
}

type Options struct {
	HeaderToken               string // 默认 "authorization"
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               CtxAuthKey,
		EnableAuthorizationBearer: true,
	}
}

// Middleware 变更类接口的令牌校验。
// 既接受静态密钥直出，也接受用该密钥签的 HS256 JWT。
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		sec := currentSecret()
		if len(sec) == 0 {
			c.Next()
			return
		}

		token := strings.TrimSpace(c.GetHeader(opts.HeaderToken))

		// 兼容 Authorization: Bearer xxx
		if token == "" && opts.EnableAuthorizationBearer {
			if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
				if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
					token = strings.TrimSpace(authz[len("bearer "):])
				}
			}
		}

		if token == "" || !verify(sec, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}

		c.Set(CtxAuthKey, token)
		c.Next()
	}
}

func verify(sec []byte, token string) bool {
	if subtle.ConstantTimeCompare(sec, []byte(token)) == 1 {
		return true
	}
	_, err := security.Verify(security.DefaultOptions(sec), token)
	return err == nil
}
