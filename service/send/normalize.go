package send

import (
	"strings"

	"WaGate/tools/errs"
)

const (
	UserSuffix  = "@c.us" // 单聊
	GroupSuffix = "@g.us" // 群聊
)

// CanonicalRecipient 把用户输入归一成远端接受的地址形式。
//
// 规则（有损、带地区假设，按配置的默认国码补全裸 10 位号）：
//  1. 已带可识别后缀的视为 canonical，原样返回（归一化幂等）。
//  2. 去掉所有非数字字符。
//  3. 以 0 开头去掉恰好一个前导 0。
//  4. 剩 10 位（本地格式无国码）则补 defaultCountryCode。
//  5. 追加单聊后缀。
func CanonicalRecipient(raw, defaultCountryCode string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errs.ErrInvalidInput.WrapMsg("empty recipient")
	}

	if strings.HasSuffix(s, UserSuffix) || strings.HasSuffix(s, GroupSuffix) {
		return s, nil
	}

	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", errs.ErrInvalidInput.WrapMsg("recipient has no digits", "raw", raw)
	}

	if strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	if len(digits) == 10 {
		digits = defaultCountryCode + digits
	}
	return digits + UserSuffix, nil
}
