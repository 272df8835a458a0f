package errors

func (d Definition) Error() string {
	return d.Message
}

// Definition 表示业务错误码及默认信息。
type Definition struct {
	Code    string
	Message string
}

// 消息模块错误。
var (
	MessageNotFound     = Definition{Code: "MESSAGE_NOT_FOUND", Message: "Message not found"}
	MessageNotDraft     = Definition{Code: "MESSAGE_NOT_DRAFT", Message: "Message is not in draft state"}
	ReceiverRequired    = Definition{Code: "RECEIVER_REQUIRED", Message: "Receiver is required"}
	ReceiverInvalid     = Definition{Code: "RECEIVER_INVALID", Message: "Receiver must contain digits"}
	TextRequired        = Definition{Code: "TEXT_REQUIRED", Message: "Message text is required"}
	OriginModelUnknown  = Definition{Code: "ORIGIN_MODEL_UNKNOWN", Message: "No recipient resolver registered for origin model"}
)

// 网关模块错误。
var (
	GatewayNotConfigured = Definition{Code: "GATEWAY_NOT_CONFIGURED", Message: "SMS gateway credentials are not configured"}
	GatewayPayloadError  = Definition{Code: "GATEWAY_PAYLOAD_ERROR", Message: "Failed to build gateway payload"}
)

// Webhook 模块错误。
var (
	WebhookTokenInvalid     = Definition{Code: "WEBHOOK_TOKEN_INVALID", Message: "Invalid webhook token"}
	WebhookSignatureInvalid = Definition{Code: "WEBHOOK_SIGNATURE_INVALID", Message: "Invalid webhook signature"}
	WebhookPayloadInvalid   = Definition{Code: "WEBHOOK_PAYLOAD_INVALID", Message: "Malformed webhook payload"}
)

// Lookup 提供错误码查询能力。
var Lookup = map[string]Definition{
	MessageNotFound.Code:         MessageNotFound,
	MessageNotDraft.Code:         MessageNotDraft,
	ReceiverRequired.Code:        ReceiverRequired,
	ReceiverInvalid.Code:         ReceiverInvalid,
	TextRequired.Code:            TextRequired,
	OriginModelUnknown.Code:      OriginModelUnknown,
	GatewayNotConfigured.Code:    GatewayNotConfigured,
	GatewayPayloadError.Code:     GatewayPayloadError,
	WebhookTokenInvalid.Code:     WebhookTokenInvalid,
	WebhookSignatureInvalid.Code: WebhookSignatureInvalid,
	WebhookPayloadInvalid.Code:   WebhookPayloadInvalid,
}

// Get 根据错误码返回 Definition，若不存在则返回空 Definition。
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}
