package models

import (
	"testing"
	"time"
)

func TestNewOrderID(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	id := NewOrderID("gs", at, "test@example.com")

	want := "gs-1700000000000-dGVzdEBleGFtcGxlLmNvbQ=="
	if id != want {
		t.Errorf("NewOrderID() = %q, want %q", id, want)
	}
}

func TestParseOrderID(t *testing.T) {
	code, at, email, err := ParseOrderID("gs-1700000000000-dGVzdEBleGFtcGxlLmNvbQ==")
	if err != nil {
		t.Fatalf("ParseOrderID() error = %v", err)
	}
	if code != "gs" {
		t.Errorf("code = %q, want gs", code)
	}
	if at.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %d, want 1700000000000", at.UnixMilli())
	}
	if email != "test@example.com" {
		t.Errorf("email = %q, want test@example.com", email)
	}
}

func TestParseOrderIDRoundTrip(t *testing.T) {
	at := time.Now().Truncate(time.Millisecond)
	id := NewOrderID("ev", at, "user+tag@host.co")

	code, gotAt, email, err := ParseOrderID(id)
	if err != nil {
		t.Fatalf("ParseOrderID() error = %v", err)
	}
	if code != "ev" || !gotAt.Equal(at) || email != "user+tag@host.co" {
		t.Errorf("round trip mismatch: %q %v %q", code, gotAt, email)
	}
}

func TestParseOrderIDMalformed(t *testing.T) {
	cases := []string{
		"",
		"gs",
		"gs-123",
		"gs-notanumber-dGVzdA==",
		"gs-123-%%%not-base64%%%",
	}
	for _, id := range cases {
		if _, _, _, err := ParseOrderID(id); err == nil {
			t.Errorf("ParseOrderID(%q) expected error", id)
		}
	}
}

func TestParseReferralCode(t *testing.T) {
	ref, err := ParseReferralCode("AGENT1_gmaps_173000_ab_cd")
	if err != nil {
		t.Fatalf("ParseReferralCode() error = %v", err)
	}
	if ref.AgentCode != "AGENT1" {
		t.Errorf("AgentCode = %q, want AGENT1", ref.AgentCode)
	}
	if ref.ProductType != "gmaps" {
		t.Errorf("ProductType = %q, want gmaps", ref.ProductType)
	}
	if ref.Timestamp != "173000" {
		t.Errorf("Timestamp = %q, want 173000", ref.Timestamp)
	}
	if ref.Random != "ab_cd" {
		t.Errorf("Random = %q, want ab_cd", ref.Random)
	}
}

func TestParseReferralCodeExactSegments(t *testing.T) {
	ref, err := ParseReferralCode("A_b_1_x")
	if err != nil {
		t.Fatalf("ParseReferralCode() error = %v", err)
	}
	if ref.Random != "x" {
		t.Errorf("Random = %q, want x", ref.Random)
	}
}

func TestParseReferralCodeTooFewSegments(t *testing.T) {
	for _, code := range []string{"", "AGENT1", "AGENT1_gmaps", "AGENT1_gmaps_173000"} {
		if _, err := ParseReferralCode(code); err == nil {
			t.Errorf("ParseReferralCode(%q) expected error", code)
		}
	}
}
