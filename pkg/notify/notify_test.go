package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	dypnsapi "github.com/alibabacloud-go/dypnsapi-20170525/v3/client"
	"github.com/alibabacloud-go/tea/tea"
	amqp "github.com/rabbitmq/amqp091-go"

	"pearl/pkg/queue"
)

func sms(code string) Message {
	return Message{ID: "m1", Channel: ChannelSMS, Recipient: "+79990001122", Purpose: PurposeVerification, Code: code}
}

func TestLogNotifierWritesCode(t *testing.T) {
	var buf bytes.Buffer
	n := LogNotifier{Logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	if err := n.Notify(context.Background(), sms("004211")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if !strings.Contains(buf.String(), `"code":"004211"`) {
		t.Fatalf("code missing from log: %s", buf.String())
	}
	if err := n.Notify(context.Background(), Message{Channel: ChannelSMS}); err == nil {
		t.Fatalf("expected validation error")
	}
}

type fakeQueue struct {
	kind    string
	payload []byte
}

func (f *fakeQueue) Enqueue(_ context.Context, kind string, payload []byte) (queue.Job, error) {
	f.kind, f.payload = kind, payload
	return queue.Job{ID: "j1", Kind: kind, Payload: payload}, nil
}

type recordingSender struct {
	sent []Message
	err  error
}

func (r *recordingSender) Send(_ context.Context, msg Message) error {
	r.sent = append(r.sent, msg)
	return r.err
}

func TestQueueNotifierRoundTripsThroughWorker(t *testing.T) {
	q := &fakeQueue{}
	if err := (QueueNotifier{Queue: q}).Notify(context.Background(), sms("123456")); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if q.kind != JobKind {
		t.Fatalf("kind = %q", q.kind)
	}

	sender := &recordingSender{}
	w := Worker{Sender: sender}
	if err := w.Handle(context.Background(), queue.Job{ID: "j1", Kind: JobKind, Payload: q.payload}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Code != "123456" {
		t.Fatalf("sent = %+v", sender.sent)
	}

	sender.err = errors.New("sms gateway down")
	if err := w.Handle(context.Background(), queue.Job{Kind: JobKind, Payload: q.payload}); err == nil {
		t.Fatalf("send errors must propagate for retry")
	}
	if err := w.Handle(context.Background(), queue.Job{Kind: JobKind, Payload: []byte("{")}); err != nil {
		t.Fatalf("bad payloads are dropped, got %v", err)
	}
}

func TestAMQPPublishing(t *testing.T) {
	msg := sms("555000")
	msg.CreatedAt = time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	pub, err := publishing(msg)
	if err != nil {
		t.Fatalf("publishing: %v", err)
	}
	if pub.ContentType != "application/json" || pub.DeliveryMode != amqp.Persistent || !pub.Timestamp.Equal(msg.CreatedAt) {
		t.Fatalf("unexpected publishing %+v", pub)
	}
	var decoded Message
	if err := json.Unmarshal(pub.Body, &decoded); err != nil || decoded.Code != "555000" {
		t.Fatalf("body = %s, %v", pub.Body, err)
	}
	if got := routingKey(msg); got != "verification.sms" {
		t.Fatalf("routing key = %q", got)
	}
	if _, err := NewAMQPNotifier("", ""); err == nil {
		t.Fatalf("expected error for empty url")
	}
}

type fakeSMS struct {
	req  *dypnsapi.SendSmsVerifyCodeRequest
	code string
}

func (f *fakeSMS) SendSmsVerifyCode(req *dypnsapi.SendSmsVerifyCodeRequest) (*dypnsapi.SendSmsVerifyCodeResponse, error) {
	f.req = req
	return &dypnsapi.SendSmsVerifyCodeResponse{
		Body: &dypnsapi.SendSmsVerifyCodeResponseBody{Code: tea.String(f.code), Message: tea.String("msg")},
	}, nil
}

func TestAliyunSMSSender(t *testing.T) {
	fake := &fakeSMS{code: "OK"}
	s := &AliyunSMSSender{cfg: AliyunConfig{SignName: "Pearl", TemplateCode: "SMS_1", ValidMinutes: 5}, client: fake}

	if err := s.Send(context.Background(), sms("000123")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if tea.StringValue(fake.req.PhoneNumber) != "+79990001122" || tea.StringValue(fake.req.SignName) != "Pearl" {
		t.Fatalf("unexpected request %+v", fake.req)
	}
	var params map[string]string
	if err := json.Unmarshal([]byte(tea.StringValue(fake.req.TemplateParam)), &params); err != nil {
		t.Fatalf("template params: %v", err)
	}
	if params["code"] != "000123" || params["min"] != "5" {
		t.Fatalf("params = %v", params)
	}

	fake.code = "isv.BUSINESS_LIMIT_CONTROL"
	if err := s.Send(context.Background(), sms("000123")); err == nil {
		t.Fatalf("expected provider error")
	}
	email := sms("1")
	email.Channel = ChannelEmail
	if err := s.Send(context.Background(), email); err == nil {
		t.Fatalf("expected channel error")
	}
	if _, err := NewAliyunSMSSender(AliyunConfig{}); err == nil {
		t.Fatalf("expected credential error")
	}
}
