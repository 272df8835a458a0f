package gateway

import (
	"fmt"

	"SmsRelay/pkg/errors"
	"SmsRelay/utils"
)

// SendData 一次投递需要的消息数据
type SendData struct {
	Type      string // 为空时默认 "text"
	Sender    string
	Receiver  string
	Text      string
	MessageID int64 // 本地消息 id，随 payload 透传，回执靠它对账
}

// Payload 网关的请求体
type Payload struct {
	Type     string        `json:"type"`
	Auth     PayloadAuth   `json:"auth"`
	Sender   string        `json:"sender"`
	Receiver string        `json:"receiver"`
	Text     string        `json:"text"`
	Custom   PayloadCustom `json:"custom"`

	Dcs                   string `json:"dcs,omitempty"`
	DlrMask               int    `json:"dlrMask,omitempty"`
	DlrURL                string `json:"dlrUrl,omitempty"`
	Flash                 bool   `json:"flash,omitempty"`
	ValidatePeriodMinutes int    `json:"validatePeriodMinutes,omitempty"`
}

type PayloadAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type PayloadCustom struct {
	OdooMessageID int64 `json:"odoo_message_id"`
}

// BuildPayload 由消息数据构造请求体，纯函数，不发起网络请求
func (c *Client) BuildPayload(data SendData) (*Payload, error) {
	msgType := data.Type
	if msgType == "" {
		msgType = "text"
	}

	receiver := utils.NormalizeReceiver(data.Receiver)
	if !utils.ValidateReceiver(receiver) {
		return nil, fmt.Errorf("%w: invalid receiver %q, expected digits after stripping '+'",
			errors.GatewayPayloadError, data.Receiver)
	}

	p := &Payload{
		Type: msgType,
		Auth: PayloadAuth{
			Username: c.username,
			Password: c.password,
		},
		Sender:   data.Sender,
		Receiver: receiver,
		Text:     data.Text,
		Custom:   PayloadCustom{OdooMessageID: data.MessageID},
	}

	if p.Type == "text" {
		p.Dcs = c.dcs
	}

	// dlrMask 只有在回调地址可用时才有意义
	if c.dlrMask != 0 && c.dlrURL != "" {
		p.DlrMask = c.dlrMask
		p.DlrURL = c.dlrURL
	}

	if c.useFlash {
		p.Flash = true
	}

	if c.useValidatePeriod {
		p.ValidatePeriodMinutes = c.validatePeriodMinutes
	}

	return p, nil
}
