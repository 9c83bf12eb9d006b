package simulated

import (
	"context"
	"sync"

	"voiceid/internal/platform/config"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/clock"
)

// Ledger mints on the configured network without consensus. Each clone can be
// minted once; a second mint of the same clone is rejected.
type Ledger struct {
	cfg    config.LedgerConfig
	ids    ports.IDGenerator
	hashes ports.HashProvider
	sched  clock.Scheduler

	mu     sync.Mutex
	minted map[string]id.TokenID
}

func NewLedger(cfg config.LedgerConfig, ids ports.IDGenerator, hashes ports.HashProvider, sched clock.Scheduler) *Ledger {
	return &Ledger{
		cfg:    cfg,
		ids:    ids,
		hashes: hashes,
		sched:  sched,
		minted: make(map[string]id.TokenID),
	}
}

func (l *Ledger) RegisterVoice(ctx context.Context, req models.MintRequest) (models.MintReceipt, error) {
	if err := ctx.Err(); err != nil {
		return models.MintReceipt{}, dErrors.Wrap(err, dErrors.CodeNetworkError, "ledger request abandoned")
	}
	if req.Signer.IsNil() {
		return models.MintReceipt{}, dErrors.New(dErrors.CodeNoSigner, "mint requires a connected signer")
	}
	if req.CloneID == "" || len(req.Payload) == 0 {
		return models.MintReceipt{}, dErrors.New(dErrors.CodeMintRejected, "mint request is missing voice data")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if token, ok := l.minted[req.CloneID]; ok {
		return models.MintReceipt{}, dErrors.New(dErrors.CodeMintRejected, "voice already minted as "+token.String())
	}

	tokenID := id.TokenID(l.ids.NewID(l.cfg.TokenPrefix))
	fingerprint := l.hashes.Hash(req.Payload)
	receipt := models.MintReceipt{
		TokenID:         tokenID,
		VoiceID:         id.VoiceID(l.ids.NewID("voice")),
		ContractAddress: l.cfg.ContractAddress,
		FingerprintHash: fingerprint,
		TransactionHash: l.hashes.Hash([]byte(tokenID.String() + ":" + req.Signer.String() + ":" + fingerprint)),
		Network:         l.cfg.Network,
		MintDate:        l.sched.Now().UTC(),
	}
	l.minted[req.CloneID] = tokenID
	return receipt, nil
}
