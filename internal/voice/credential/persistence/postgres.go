package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"voiceid/internal/voice/models"
	id "voiceid/pkg/domain"
	"voiceid/pkg/platform/clock"
	"voiceid/pkg/platform/sentinel"
)

// Schema is applied by EnsureSchema. Status only moves from active to revoked;
// the UPDATE in SetStatus enforces that in SQL as well.
const Schema = `
CREATE TABLE IF NOT EXISTS voice_credentials (
	token_id               TEXT PRIMARY KEY,
	voice_id               TEXT NOT NULL UNIQUE,
	owner_id               UUID NOT NULL,
	signer_address         TEXT NOT NULL,
	fingerprint_hash       TEXT NOT NULL,
	contract_address       TEXT NOT NULL,
	transaction_hash       TEXT NOT NULL,
	network                TEXT NOT NULL,
	mint_date              TIMESTAMPTZ NOT NULL,
	status                 TEXT NOT NULL CHECK (status IN ('active', 'revoked')),
	is_marketplace_enabled BOOLEAN NOT NULL DEFAULT FALSE,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS voice_credentials_owner_idx ON voice_credentials (owner_id, created_at);
`

// Postgres stores credentials in a single table. Postgres offers no push
// channel here, so Subscribe polls on the scheduler and delivers when the
// list changes.
type Postgres struct {
	db           *sql.DB
	sched        clock.Scheduler
	pollInterval time.Duration
	logger       *slog.Logger
}

type PostgresOption func(*Postgres)

func WithPollInterval(d time.Duration) PostgresOption {
	return func(p *Postgres) {
		if d > 0 {
			p.pollInterval = d
		}
	}
}

func WithPostgresLogger(logger *slog.Logger) PostgresOption {
	return func(p *Postgres) {
		p.logger = logger
	}
}

func NewPostgres(db *sql.DB, sched clock.Scheduler, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, sched: sched, pollInterval: 2 * time.Second, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure credential schema: %w", err)
	}
	return nil
}

func (p *Postgres) Save(ctx context.Context, userID id.UserID, credential models.VoiceCredential) error {
	query := `
		INSERT INTO voice_credentials (
			token_id, voice_id, owner_id, signer_address, fingerprint_hash,
			contract_address, transaction_hash, network, mint_date, status, is_marketplace_enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (token_id) DO NOTHING
	`
	res, err := p.db.ExecContext(ctx, query,
		credential.TokenID.String(),
		credential.VoiceID.String(),
		uuid.UUID(userID),
		credential.SignerAddress.String(),
		credential.FingerprintHash,
		credential.ContractAddress,
		credential.TransactionHash,
		credential.Network,
		credential.MintDate,
		credential.Status.String(),
		credential.IsMarketplaceEnabled,
	)
	if err != nil {
		return translatePQError(err, "insert credential")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var owner uuid.UUID
	var voiceID string
	err = p.db.QueryRowContext(ctx,
		`SELECT owner_id, voice_id FROM voice_credentials WHERE token_id = $1`,
		credential.TokenID.String(),
	).Scan(&owner, &voiceID)
	if err != nil {
		return translatePQError(err, "load existing credential")
	}
	if !sameRecord(models.VoiceCredential{OwnerID: id.UserID(owner), VoiceID: id.VoiceID(voiceID)}, userID, credential) {
		return fmt.Errorf("token %s already registered: %w", credential.TokenID, sentinel.ErrConflict)
	}
	return nil
}

func (p *Postgres) SetStatus(ctx context.Context, tokenID id.TokenID, status models.CredentialStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("status %q: %w", status, sentinel.ErrInvalidState)
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE voice_credentials
		SET status = $2, updated_at = now()
		WHERE token_id = $1
		  AND status <> $2
		  AND NOT (status = 'revoked' AND $2 = 'active')
	`, tokenID.String(), status.String())
	if err != nil {
		return translatePQError(err, "update credential status")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var current string
	err = p.db.QueryRowContext(ctx, `SELECT status FROM voice_credentials WHERE token_id = $1`, tokenID.String()).Scan(&current)
	if err != nil {
		return translatePQError(err, "load credential status")
	}
	if models.CredentialStatus(current) == status {
		return nil
	}
	return fmt.Errorf("token %s is %s: %w", tokenID, current, sentinel.ErrInvalidState)
}

// Subscribe loads and delivers the list, then polls every pollInterval and
// delivers whenever it differs from the last delivery. Overlapping polls are skipped.
func (p *Postgres) Subscribe(ctx context.Context, userID id.UserID, onChange func([]models.VoiceCredential)) (func(), error) {
	list, err := p.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	onChange(list)

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var (
		polling sync.Mutex
		last    = digest(list)
	)
	stopTicker := p.sched.Every(p.pollInterval, func() {
		if !polling.TryLock() {
			return
		}
		defer polling.Unlock()
		if pollCtx.Err() != nil {
			return
		}
		list, err := p.List(pollCtx, userID)
		if err != nil {
			if pollCtx.Err() == nil {
				p.logger.WarnContext(pollCtx, "credential poll failed", "user_id", userID.String(), "error", err)
			}
			return
		}
		if d := digest(list); d != last {
			last = d
			onChange(list)
		}
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			stopTicker()
			cancel()
		})
	}, nil
}

func (p *Postgres) List(ctx context.Context, userID id.UserID) ([]models.VoiceCredential, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT token_id, voice_id, owner_id, signer_address, fingerprint_hash, contract_address,
		       transaction_hash, network, mint_date, status, is_marketplace_enabled
		FROM voice_credentials
		WHERE owner_id = $1
		ORDER BY created_at, token_id
	`, uuid.UUID(userID))
	if err != nil {
		return nil, translatePQError(err, "list credentials")
	}
	defer rows.Close()

	out := []models.VoiceCredential{}
	for rows.Next() {
		var (
			c                        models.VoiceCredential
			tokenID, voiceID, signer string
			status                   string
			owner                    uuid.UUID
		)
		if err := rows.Scan(&tokenID, &voiceID, &owner, &signer, &c.FingerprintHash, &c.ContractAddress,
			&c.TransactionHash, &c.Network, &c.MintDate, &status, &c.IsMarketplaceEnabled); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		c.TokenID = id.TokenID(tokenID)
		c.VoiceID = id.VoiceID(voiceID)
		c.OwnerID = id.UserID(owner)
		c.SignerAddress = id.SignerAddress(signer)
		c.Status = models.CredentialStatus(status)
		c.MintDate = c.MintDate.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return out, nil
}

// translatePQError maps serialization failures, deadlocks and unique
// violations to ErrConflict and missing rows to ErrNotFound.
func translatePQError(err error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%s: %s: %w", op, pqErr.Code.Name(), sentinel.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func digest(list []models.VoiceCredential) string {
	var b strings.Builder
	for _, c := range list {
		b.WriteString(c.TokenID.String())
		b.WriteByte('=')
		b.WriteString(c.Status.String())
		b.WriteByte(';')
	}
	return b.String()
}
