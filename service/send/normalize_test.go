package send

import (
	"testing"

	"WaGate/tools/errs"
)

func TestCanonicalRecipientLocalNumber(t *testing.T) {
	// 裸 10 位本地号：补默认国码 + 单聊后缀
	got, err := CanonicalRecipient("9876543210", "91")
	if err != nil {
		t.Fatalf("CanonicalRecipient failed: %v", err)
	}
	if got != "919876543210@c.us" {
		t.Fatalf("got %q, want 919876543210@c.us", got)
	}
}

func TestCanonicalRecipientLeadingZero(t *testing.T) {
	// 前导 0 恰好去一个，去完剩 10 位再补国码
	got, err := CanonicalRecipient("09876543210", "91")
	if err != nil {
		t.Fatalf("CanonicalRecipient failed: %v", err)
	}
	if got != "919876543210@c.us" {
		t.Fatalf("got %q, want 919876543210@c.us", got)
	}
}

func TestCanonicalRecipientStripsFormatting(t *testing.T) {
	got, err := CanonicalRecipient("+91 98765-43210", "91")
	if err != nil {
		t.Fatalf("CanonicalRecipient failed: %v", err)
	}
	if got != "919876543210@c.us" {
		t.Fatalf("got %q, want 919876543210@c.us", got)
	}
}

func TestCanonicalRecipientIdempotent(t *testing.T) {
	canonical := "919876543210@c.us"
	got, err := CanonicalRecipient(canonical, "91")
	if err != nil {
		t.Fatalf("CanonicalRecipient failed: %v", err)
	}
	if got != canonical {
		t.Fatalf("not idempotent: got %q, want %q", got, canonical)
	}
}

func TestCanonicalRecipientGroupSuffixKept(t *testing.T) {
	group := "1234567890-987654@g.us"
	got, err := CanonicalRecipient(group, "91")
	if err != nil {
		t.Fatalf("CanonicalRecipient failed: %v", err)
	}
	if got != group {
		t.Fatalf("group id mangled: got %q, want %q", got, group)
	}
}

func TestCanonicalRecipientFullInternational(t *testing.T) {
	// 已带国码的 12 位号不再补
	got, err := CanonicalRecipient("5511987654321", "91")
	if err != nil {
		t.Fatalf("CanonicalRecipient failed: %v", err)
	}
	if got != "5511987654321@c.us" {
		t.Fatalf("got %q, want 5511987654321@c.us", got)
	}
}

func TestCanonicalRecipientInvalid(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc-def"} {
		_, err := CanonicalRecipient(raw, "91")
		if err == nil {
			t.Fatalf("expected error for %q", raw)
		}
		ce := errs.AsCodeError(err)
		if ce == nil || ce.Code != errs.InvalidInputCode {
			t.Fatalf("expected InvalidInput for %q, got %v", raw, err)
		}
	}
}
