package gateway

// HTTP 请求/响应模型

type SendMessageRequest struct {
	Recipient string `json:"recipient" binding:"required"`
	Body      string `json:"body" binding:"required"`
}

type SendMessageResponse struct {
	MessageID string `json:"messageId"`
	Timestamp int64  `json:"timestamp"` // unix 毫秒
	Recipient string `json:"recipient"`
}

type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type CheckNumberRequest struct {
	Recipient string `json:"recipient" binding:"required"`
}

type CheckNumberResponse struct {
	Recipient  string `json:"recipient"`
	Registered bool   `json:"registered"`
}

type ErrorResponse struct {
	Code   int    `json:"code"`
	Msg    string `json:"msg"`
	Detail string `json:"detail,omitempty"`
}
