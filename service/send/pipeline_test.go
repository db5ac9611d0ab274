package send

import (
	"context"
	"errors"
	"testing"
	"time"

	"WaGate/service/transport"
	"WaGate/tools/errs"
)

type fakeReady struct{ ready bool }

func (f *fakeReady) IsSendCapable() bool { return f.ready }

type fakeReserver struct {
	reserves  int
	penalties int
}

func (f *fakeReserver) Reserve(context.Context) error { f.reserves++; return nil }
func (f *fakeReserver) Penalize()                     { f.penalties++ }

type fakeSender struct {
	calls []string // 每次调用的 canonical id
	errs  []error  // 按调用序返回，超出后为 nil
}

func (f *fakeSender) SendMessage(_ context.Context, canonicalID, _ string) (transport.SendResult, error) {
	i := len(f.calls)
	f.calls = append(f.calls, canonicalID)
	if i < len(f.errs) && f.errs[i] != nil {
		return transport.SendResult{}, f.errs[i]
	}
	return transport.SendResult{MessageID: "true_123@c.us_3EB0", Timestamp: time.UnixMilli(1700000000000)}, nil
}

func newTestPipeline(ready bool, sender *fakeSender) (*Pipeline, *fakeReserver) {
	rl := &fakeReserver{}
	p := NewPipeline(&fakeReady{ready: ready}, rl, sender, Conf{DefaultCountryCode: "91"})
	return p, rl
}

func TestSendSuccess(t *testing.T) {
	sender := &fakeSender{}
	p, rl := newTestPipeline(true, sender)

	res, err := p.Send(context.Background(), "9876543210", "hi")
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if res.MessageID == "" {
		t.Fatal("expected message id")
	}
	if rl.reserves != 1 {
		t.Fatalf("reserves = %d, want 1", rl.reserves)
	}
	if len(sender.calls) != 1 || sender.calls[0] != "919876543210@c.us" {
		t.Fatalf("sent to %v, want [919876543210@c.us]", sender.calls)
	}
}

func TestSendNotReadyRejectsImmediately(t *testing.T) {
	sender := &fakeSender{}
	p, rl := newTestPipeline(false, sender)

	_, err := p.Send(context.Background(), "9876543210", "hi")
	ce := errs.AsCodeError(err)
	if ce == nil || ce.Code != errs.NotReadyCode {
		t.Fatalf("expected NotReady, got %v", err)
	}
	// 不排队不预约：限速窗口一点都不能动
	if rl.reserves != 0 || rl.penalties != 0 {
		t.Fatalf("rate limiter touched: reserves=%d penalties=%d", rl.reserves, rl.penalties)
	}
	if len(sender.calls) != 0 {
		t.Fatal("transport must not be called when not ready")
	}
}

func TestSendInvalidRecipient(t *testing.T) {
	sender := &fakeSender{}
	p, rl := newTestPipeline(true, sender)

	_, err := p.Send(context.Background(), "???", "hi")
	ce := errs.AsCodeError(err)
	if ce == nil || ce.Code != errs.InvalidInputCode {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
	if rl.reserves != 0 {
		t.Fatal("reserve must not run for invalid recipient")
	}
}

func TestSendUnregisteredNotRetried(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("number not registered on network")}}
	p, rl := newTestPipeline(true, sender)

	_, err := p.Send(context.Background(), "9876543210", "hi")
	ce := errs.AsCodeError(err)
	if ce == nil || ce.Code != errs.UnregisteredRecipientCode {
		t.Fatalf("expected UnregisteredRecipient, got %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("calls = %d, unregistered must not retry", len(sender.calls))
	}
	if rl.penalties != 0 {
		t.Fatal("unregistered must not penalize")
	}
}

func TestSendRateLimitRetriesOnce(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("429 too many requests")}}
	p, rl := newTestPipeline(true, sender)

	res, err := p.Send(context.Background(), "9876543210", "hi")
	if err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if res.MessageID == "" {
		t.Fatal("expected message id from retry")
	}
	if len(sender.calls) != 2 {
		t.Fatalf("calls = %d, want 2 (original + one retry)", len(sender.calls))
	}
	if sender.calls[0] != sender.calls[1] {
		t.Fatal("retry must reuse the same canonical recipient")
	}
	if rl.penalties != 1 || rl.reserves != 2 {
		t.Fatalf("penalties=%d reserves=%d, want 1/2", rl.penalties, rl.reserves)
	}
}

func TestSendSecondRateLimitSurfaces(t *testing.T) {
	sender := &fakeSender{errs: []error{
		errors.New("rate limit exceeded"),
		errors.New("rate limit exceeded"),
	}}
	p, rl := newTestPipeline(true, sender)

	_, err := p.Send(context.Background(), "9876543210", "hi")
	ce := errs.AsCodeError(err)
	if ce == nil || ce.Code != errs.TransportErrorCode {
		t.Fatalf("second rate limit must surface as TransportError, got %v", err)
	}
	if len(sender.calls) != 2 {
		t.Fatalf("calls = %d, retry is bounded to one", len(sender.calls))
	}
	if rl.penalties != 2 {
		t.Fatalf("penalties = %d, want 2", rl.penalties)
	}
}

func TestSendTransportErrorNotRetried(t *testing.T) {
	sender := &fakeSender{errs: []error{errors.New("page crashed")}}
	p, _ := newTestPipeline(true, sender)

	_, err := p.Send(context.Background(), "9876543210", "hi")
	ce := errs.AsCodeError(err)
	if ce == nil || ce.Code != errs.TransportErrorCode {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatal("generic transport errors must not retry")
	}
}
