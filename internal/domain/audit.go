package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// AuditEntry is one append-only record of a state-changing action.
// Entries are never updated or deleted.
type AuditEntry struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor"`
	Details   string    `json:"details"` // redacted json
	Status    string    `json:"status"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditChecksum derives the tamper-evidence hash over action, details and
// timestamp. Verification must recompute it with the exact stored values.
func AuditChecksum(action, details string, ts time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", action, details, ts.UnixNano())))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the checksum and compares it to the stored one.
func (e *AuditEntry) Verify() bool {
	return e.Checksum == AuditChecksum(e.Action, e.Details, e.CreatedAt)
}
