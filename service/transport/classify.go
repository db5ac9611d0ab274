package transport

import "strings"

// 远端错误没有结构化错误码，只能按文案归类。
// 模式参考远端网络实际返回的几类报错。

var rateLimitPatterns = []string{
	"rate limit",
	"rate-limit",
	"ratelimit",
	"too many",
	"blocked",
	"spam",
	"429",
}

var unregisteredPatterns = []string{
	"not registered",
	"unregistered",
	"invalid number",
	"invalid wid",
	"404",
}

// IsRateLimitShaped 远端限流/封禁类错误
func IsRateLimitShaped(err error) bool {
	return matchAny(err, rateLimitPatterns)
}

// IsUnregisteredShaped 号码未注册类错误
func IsUnregisteredShaped(err error) bool {
	return matchAny(err, unregisteredPatterns)
}

func matchAny(err error, patterns []string) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
