package errs

// 网关错误码：1xxx 为发送链路，11xx 为鉴权
const (
	NotReadyCode              = 1001 // 会话未就绪，可稍后重试
	InvalidInputCode          = 1002 // 收件人/正文不合法
	UnregisteredRecipientCode = 1003 // 远端确认号码未注册
	RateLimitedCode           = 1004 // 仅内部使用，不对外返回
	TransportErrorCode        = 1005
	InitializationFailureCode = 1006
	ServerInternalError       = 1500

	TokenInvalidCode = 1101
)

var (
	ErrNotReady              = NewCodeError(NotReadyCode, "NotReady")
	ErrInvalidInput          = NewCodeError(InvalidInputCode, "InvalidInput")
	ErrUnregisteredRecipient = NewCodeError(UnregisteredRecipientCode, "UnregisteredRecipient")
	ErrRateLimited           = NewCodeError(RateLimitedCode, "RateLimited")
	ErrTransport             = NewCodeError(TransportErrorCode, "TransportError")
	ErrInitialization        = NewCodeError(InitializationFailureCode, "InitializationFailure")

	ErrTokenInvalid = NewCodeError(TokenInvalidCode, "TokenInvalid")
)
