package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	dypnsapi "github.com/alibabacloud-go/dypnsapi-20170525/v3/client"
	"github.com/alibabacloud-go/tea/tea"
)

type AliyunConfig struct {
	AccessKeyID     string
	AccessKeySecret string
	Endpoint        string
	SignName        string
	TemplateCode    string
	// ValidMinutes is shown to the recipient in the template.
	ValidMinutes int
}

// smsVerifyClient is the slice of the dypnsapi client used for delivery.
type smsVerifyClient interface {
	SendSmsVerifyCode(*dypnsapi.SendSmsVerifyCodeRequest) (*dypnsapi.SendSmsVerifyCodeResponse, error)
}

// AliyunSMSSender sends verification codes through the Aliyun phone number
// verification service.
type AliyunSMSSender struct {
	cfg    AliyunConfig
	client smsVerifyClient
}

func NewAliyunSMSSender(cfg AliyunConfig) (*AliyunSMSSender, error) {
	if cfg.AccessKeyID == "" || cfg.AccessKeySecret == "" {
		return nil, errors.New("aliyun sms credentials required")
	}
	if cfg.SignName == "" || cfg.TemplateCode == "" {
		return nil, errors.New("aliyun sms sign name and template code required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "dypnsapi.aliyuncs.com"
	}
	if cfg.ValidMinutes <= 0 {
		cfg.ValidMinutes = 5
	}
	client, err := dypnsapi.NewClient(&openapi.Config{
		AccessKeyId:     tea.String(cfg.AccessKeyID),
		AccessKeySecret: tea.String(cfg.AccessKeySecret),
		Endpoint:        tea.String(cfg.Endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("aliyun client: %w", err)
	}
	return &AliyunSMSSender{cfg: cfg, client: client}, nil
}

func (s *AliyunSMSSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Channel != ChannelSMS {
		return fmt.Errorf("aliyun sender cannot deliver %s", msg.Channel)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req, err := s.request(msg)
	if err != nil {
		return err
	}
	resp, err := s.client.SendSmsVerifyCode(req)
	if err != nil {
		return fmt.Errorf("aliyun send: %w", err)
	}
	if resp == nil || resp.Body == nil {
		return errors.New("aliyun send: empty response")
	}
	if code := tea.StringValue(resp.Body.Code); code != "OK" {
		return fmt.Errorf("aliyun send: %s: %s", code, tea.StringValue(resp.Body.Message))
	}
	return nil
}

func (s *AliyunSMSSender) request(msg Message) (*dypnsapi.SendSmsVerifyCodeRequest, error) {
	params, err := json.Marshal(map[string]string{
		"code": msg.Code,
		"min":  fmt.Sprint(s.cfg.ValidMinutes),
	})
	if err != nil {
		return nil, err
	}
	return &dypnsapi.SendSmsVerifyCodeRequest{
		PhoneNumber:   tea.String(msg.Recipient),
		SignName:      tea.String(s.cfg.SignName),
		TemplateCode:  tea.String(s.cfg.TemplateCode),
		TemplateParam: tea.String(string(params)),
	}, nil
}
