package domain

import (
	"net/http"
	"testing"
	"time"
)

func TestFilterHeaders_StripsSecrets(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer token")
	h.Set("Proxy-Authorization", "Basic xyz")
	h.Set("Cookie", "session=abc")
	h.Set("X-Api-Key", "secret")
	h.Set("Content-Type", "application/json")
	h.Add("Accept", "application/json")
	h.Add("Accept", "text/plain")

	got := FilterHeaders(h)
	for _, leaked := range []string{"authorization", "proxy-authorization", "cookie", "x-api-key"} {
		if _, ok := got[leaked]; ok {
			t.Errorf("secret header %q reached the policy input", leaked)
		}
	}
	if got["content-type"] != "application/json" {
		t.Errorf("content-type = %q", got["content-type"])
	}
	if got["accept"] != "application/json, text/plain" {
		t.Errorf("multi-valued header = %q", got["accept"])
	}
}

func TestFilterHeaders_Empty(t *testing.T) {
	if got := FilterHeaders(nil); got != nil {
		t.Errorf("FilterHeaders(nil) = %v, want nil", got)
	}
}

func TestPolicyInput_AsMap(t *testing.T) {
	in := PolicyInput{
		Caller:      UserCaller("alice", []string{"admin"}, "acme"),
		OperationID: "user.get",
		Method:      "GET",
		Path:        "/users/alice",
		Timestamp:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Environment: "production",
	}
	m := in.AsMap()

	caller, ok := m["caller"].(map[string]any)
	if !ok {
		t.Fatalf("caller = %T", m["caller"])
	}
	if caller["kind"] != "user" || caller["subject"] != "user:alice" || caller["tenant"] != "acme" {
		t.Errorf("caller = %v", caller)
	}
	if m["operation_id"] != "user.get" {
		t.Errorf("operation_id = %v", m["operation_id"])
	}
	if m["environment"] != "production" {
		t.Errorf("environment = %v", m["environment"])
	}
	if m["timestamp"] != "2026-01-02T03:04:05Z" {
		t.Errorf("timestamp = %v", m["timestamp"])
	}
}
