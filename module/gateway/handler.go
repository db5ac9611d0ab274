package gateway

import (
	"net/http"

	"WaGate/logger"
	"WaGate/service/send"
	"WaGate/service/session"
	"WaGate/service/status"
	"WaGate/service/transport"
	"WaGate/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler HTTP 薄胶水层：参数校验 + 错误码到状态码的映射，业务全在 service 层
type Handler struct {
	pipeline           *send.Pipeline
	sup                *session.Supervisor
	hub                *status.Hub
	tr                 transport.Transport
	defaultCountryCode string
}

func NewHandler(pipeline *send.Pipeline, sup *session.Supervisor, hub *status.Hub, tr transport.Transport, defaultCountryCode string) *Handler {
	return &Handler{
		pipeline:           pipeline,
		sup:                sup,
		hub:                hub,
		tr:                 tr,
		defaultCountryCode: defaultCountryCode,
	}
}

// HandlerStatus GET /status 永远 200
func (h *Handler) HandlerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.CurrentSnapshot())
}

// HandlerSendMessage POST /send-message
func (h *Handler) HandlerSendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.ErrInvalidInput.WrapMsg(err.Error()))
		return
	}

	res, err := h.pipeline.Send(c.Request.Context(), req.Recipient, req.Body)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SendMessageResponse{
		MessageID: res.MessageID,
		Timestamp: res.Timestamp.UnixMilli(),
		Recipient: req.Recipient,
	})
}

// HandlerRestart POST /restart 异步：重连进度看 /status
func (h *Handler) HandlerRestart(c *gin.Context) {
	accepted := h.sup.Restart()
	c.JSON(http.StatusOK, AcceptedResponse{Accepted: accepted})
}

// HandlerClearSession POST /clear-session 顺带清掉持久化凭证
func (h *Handler) HandlerClearSession(c *gin.Context) {
	accepted := h.sup.ClearSession()
	c.JSON(http.StatusOK, AcceptedResponse{Accepted: accepted})
}

// HandlerCheckNumber POST /check-number 远端查号码是否注册
func (h *Handler) HandlerCheckNumber(c *gin.Context) {
	var req CheckNumberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, errs.ErrInvalidInput.WrapMsg(err.Error()))
		return
	}
	if !h.sup.IsSendCapable() {
		writeError(c, errs.ErrNotReady.WrapMsg("session not ready"))
		return
	}
	canonical, err := send.CanonicalRecipient(req.Recipient, h.defaultCountryCode)
	if err != nil {
		writeError(c, err)
		return
	}
	registered, err := h.tr.IsRegisteredUser(c.Request.Context(), canonical)
	if err != nil {
		writeError(c, errs.ErrTransport.WrapMsg("check number", "err", err))
		return
	}
	c.JSON(http.StatusOK, CheckNumberResponse{Recipient: canonical, Registered: registered})
}

// HandlerChats GET /chats 透传
func (h *Handler) HandlerChats(c *gin.Context) {
	if !h.sup.IsSendCapable() {
		writeError(c, errs.ErrNotReady.WrapMsg("session not ready"))
		return
	}
	chats, err := h.tr.GetChats(c.Request.Context())
	if err != nil {
		writeError(c, errs.ErrTransport.WrapMsg("get chats", "err", err))
		return
	}
	c.JSON(http.StatusOK, chats)
}

// HandlerContacts GET /contacts 透传
func (h *Handler) HandlerContacts(c *gin.Context) {
	if !h.sup.IsSendCapable() {
		writeError(c, errs.ErrNotReady.WrapMsg("session not ready"))
		return
	}
	contacts, err := h.tr.GetContacts(c.Request.Context())
	if err != nil {
		writeError(c, errs.ErrTransport.WrapMsg("get contacts", "err", err))
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// writeError 错误码 → HTTP 状态码。
// 调用方错误一律 400，远端/未知失败 500。
func writeError(c *gin.Context, err error) {
	ce := errs.AsCodeError(err)
	if ce == nil {
		logger.Errorf("[Gateway] unclassified error: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Code: errs.ServerInternalError, Msg: "InternalError"})
		return
	}

	httpStatus := http.StatusInternalServerError
	switch ce.Code {
	case errs.NotReadyCode, errs.InvalidInputCode, errs.UnregisteredRecipientCode:
		httpStatus = http.StatusBadRequest
	}
	c.JSON(httpStatus, ErrorResponse{Code: ce.Code, Msg: ce.Msg, Detail: ce.Detail})
}
