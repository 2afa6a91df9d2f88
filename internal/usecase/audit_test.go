package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"tokensentry/internal/domain"
)

func TestAuditEntriesCarryValidChecksums(t *testing.T) {
	store := newMemStore()
	svc := testAudit(store)

	svc.Record(context.Background(), ActionBotStart, "api", map[string]interface{}{
		"paper": true,
	}, "ok")

	entries, _ := store.ListAudit(context.Background(), 10)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	e := entries[0]
	if !e.Verify() {
		t.Error("fresh entry must verify")
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Error("entry must carry id and timestamp")
	}
}

func TestAuditTamperDetection(t *testing.T) {
	now := time.Now().UTC()
	e := &domain.AuditEntry{
		Action:    ActionSettingsUpdate,
		Details:   `{"stop_loss_pct":25}`,
		Checksum:  domain.AuditChecksum(ActionSettingsUpdate, `{"stop_loss_pct":25}`, now),
		CreatedAt: now,
	}
	if !e.Verify() {
		t.Fatal("untouched entry must verify")
	}

	tampered := *e
	tampered.Details = `{"stop_loss_pct":99}`
	if tampered.Verify() {
		t.Error("edited details must fail verification")
	}

	shifted := *e
	shifted.CreatedAt = now.Add(time.Second)
	if shifted.Verify() {
		t.Error("shifted timestamp must fail verification")
	}
}

func TestAuditWriteFailureDoesNotFailCaller(t *testing.T) {
	store := newMemStore()
	store.failAudit = true
	svc := testAudit(store)

	// Must not panic or propagate the error.
	svc.Record(context.Background(), ActionBotStop, "api", nil, "ok")
}

func TestRedactMasksSecrets(t *testing.T) {
	out := Redact(map[string]interface{}{
		"api_key":     "abc123",
		"wallet":      mintAddr,
		"rpc_token":   "xyz",
		"stop_loss":   25.0,
		"credentials": map[string]interface{}{"password": "hunter2", "user": "ops"},
	})

	if out["api_key"] != "[redacted]" {
		t.Errorf("api_key = %v, want masked", out["api_key"])
	}
	if out["rpc_token"] != "[redacted]" {
		t.Errorf("rpc_token = %v, want masked", out["rpc_token"])
	}
	if out["wallet"] != mintAddr {
		t.Error("non-secret values must survive")
	}
	if out["stop_loss"] != 25.0 {
		t.Error("numeric values must survive")
	}

	nested, ok := out["credentials"].(map[string]interface{})
	if !ok {
		t.Fatal("nested map lost")
	}
	if nested["password"] != "[redacted]" {
		t.Error("nested password must be masked")
	}
	if nested["user"] != "ops" {
		t.Error("nested non-secret must survive")
	}

	for k, v := range out {
		if s, ok := v.(string); ok && strings.Contains(s, "hunter2") {
			t.Errorf("secret leaked under %s", k)
		}
	}
}
