package credential

import (
	"context"
	"log/slog"

	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/audit"
	"voiceid/pkg/platform/clock"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Lifecycle revokes credentials on behalf of the connected signer.
type Lifecycle struct {
	store          *Store
	wallet         ports.WalletProvider
	sched          clock.Scheduler
	logger         *slog.Logger
	metrics        *metrics.Metrics
	auditPublisher AuditPublisher
	notify         func(models.Notice)
}

type LifecycleOption func(*Lifecycle)

func WithLifecycleLogger(logger *slog.Logger) LifecycleOption {
	return func(l *Lifecycle) {
		l.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) LifecycleOption {
	return func(l *Lifecycle) {
		l.metrics = m
	}
}

func WithAuditPublisher(publisher AuditPublisher) LifecycleOption {
	return func(l *Lifecycle) {
		l.auditPublisher = publisher
	}
}

// WithNotifier receives the user-facing notice for every revoke outcome.
func WithNotifier(fn func(models.Notice)) LifecycleOption {
	return func(l *Lifecycle) {
		l.notify = fn
	}
}

func NewLifecycle(store *Store, wallet ports.WalletProvider, sched clock.Scheduler, opts ...LifecycleOption) *Lifecycle {
	l := &Lifecycle{store: store, wallet: wallet, sched: sched, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Revoke tombstones a credential. Revoking an already revoked credential is a
// no-op. On failure the optimistic change is rolled back and a distinct notice
// is surfaced.
func (l *Lifecycle) Revoke(ctx context.Context, tokenID id.TokenID) error {
	if tokenID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "token ID required")
	}
	signer, connected := l.wallet.Signer()
	if !connected {
		return dErrors.New(dErrors.CodeNoSigner, "connect a wallet to revoke credentials")
	}

	credential, ok := l.store.Get(tokenID)
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, "credential not found")
	}
	if credential.IsRevoked() {
		return nil
	}

	if err := l.store.SetStatus(ctx, tokenID, models.CredentialStatusRevoked); err != nil {
		l.metrics.IncRevocation("rolled_back")
		l.emitNotice(models.Notice{
			Kind:    models.NoticeRevokeFailed,
			Code:    dErrors.CodeOf(err),
			Message: "revocation failed, credential is still " + l.currentStatus(tokenID).String(),
			TokenID: tokenID,
		})
		l.logAudit(ctx, audit.EventCredentialRevokeFailed, credential.OwnerID, tokenID, signer, string(dErrors.CodeOf(err)))
		return err
	}

	l.metrics.IncRevocation("revoked")
	l.emitNotice(models.Notice{
		Kind:    models.NoticeRevoked,
		Message: "voice credential revoked",
		TokenID: tokenID,
	})
	l.logAudit(ctx, audit.EventCredentialRevoked, credential.OwnerID, tokenID, signer, "")
	return nil
}

func (l *Lifecycle) currentStatus(tokenID id.TokenID) models.CredentialStatus {
	credential, _ := l.store.Get(tokenID)
	return credential.Status
}

func (l *Lifecycle) emitNotice(n models.Notice) {
	if l.notify == nil {
		return
	}
	n.At = l.sched.Now()
	l.notify(n)
}

func (l *Lifecycle) logAudit(ctx context.Context, event audit.AuditEvent, userID id.UserID, tokenID id.TokenID, signer id.SignerAddress, reason string) {
	args := []any{
		"event", string(event),
		"log_type", "audit",
		"user_id", userID.String(),
		"token_id", tokenID.String(),
	}
	if reason != "" {
		args = append(args, "reason", reason)
	}
	l.logger.InfoContext(ctx, string(event), args...)
	if l.auditPublisher == nil {
		return
	}
	_ = l.auditPublisher.Emit(ctx, audit.Event{
		UserID:   userID,
		Subject:  tokenID.String(),
		Action:   string(event),
		Decision: string(models.CredentialStatusRevoked),
		Reason:   reason,
		ActorID:  signer.String(),
	})
}
