package usecase

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tokensentry/internal/domain"
)

// Audit action names. Every state-changing action writes exactly one entry.
const (
	ActionBotStart        = "bot.start"
	ActionBotStop         = "bot.stop"
	ActionBotPause        = "bot.pause"
	ActionBotResume       = "bot.resume"
	ActionKillSwitch      = "bot.kill_switch"
	ActionSettingsUpdate  = "settings.update"
	ActionRegimeOverride  = "regime.override"
	ActionRegimeChange    = "regime.change"
	ActionWalletAdd       = "wallet.add"
	ActionWalletRemove    = "wallet.remove"
	ActionWalletTier      = "wallet.tier"
	ActionBlacklistAdd    = "blacklist.add"
	ActionBlacklistRemove = "blacklist.remove"
	ActionWeightLock      = "learning.weight_lock"
	ActionWeightUnlock    = "learning.weight_unlock"
	ActionWeightReset     = "learning.weights_reset"
	ActionLearningMode    = "learning.mode"
	ActionLearningAdjust  = "learning.adjust"
	ActionAnalyzeRequest  = "scanner.analyze"
	ActionPositionOpen    = "position.open"
	ActionPositionExit    = "position.exit"
	ActionPositionClose   = "position.close_manual"
	ActionEmergencySell   = "position.emergency_sell"
	ActionRiskPause       = "risk.pause"
	ActionRiskHardStop    = "risk.hard_stop"
	ActionRiskResume      = "risk.resume"
	ActionRPCFailover     = "rpc.failover"
)

// AuditService appends checksummed entries to the audit log. A failed write
// is reported on a fallback log channel and never fails the caller.
type AuditService struct {
	repo     domain.AuditRepository
	logger   *zap.Logger
	fallback *zap.Logger
}

func NewAuditService(repo domain.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{
		repo:     repo,
		logger:   logger,
		fallback: logger.Named("audit_fallback"),
	}
}

// Record redacts the payload, checksums the entry and appends it.
func (a *AuditService) Record(ctx context.Context, action, actor string, details map[string]interface{}, status string) {
	payload, err := json.Marshal(Redact(details))
	if err != nil {
		payload = []byte("{}")
	}

	now := time.Now().UTC()
	entry := &domain.AuditEntry{
		ID:        uuid.NewString(),
		Action:    action,
		Actor:     actor,
		Details:   string(payload),
		Status:    status,
		Checksum:  domain.AuditChecksum(action, string(payload), now),
		CreatedAt: now,
	}

	if err := a.repo.AppendAudit(ctx, entry); err != nil {
		a.fallback.Error("audit write failed",
			zap.String("action", action),
			zap.String("actor", actor),
			zap.String("details", entry.Details),
			zap.Error(err))
	}
}

var secretKeyFragments = []string{"key", "secret", "password", "token", "credential"}

// Redact replaces secret-looking values in a payload map. Nested maps are
// redacted recursively.
func Redact(details map[string]interface{}) map[string]interface{} {
	if details == nil {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = Redact(nested)
			continue
		}
		lower := strings.ToLower(k)
		redacted := false
		for _, frag := range secretKeyFragments {
			if strings.Contains(lower, frag) {
				out[k] = "[redacted]"
				redacted = true
				break
			}
		}
		if !redacted {
			out[k] = v
		}
	}
	return out
}
