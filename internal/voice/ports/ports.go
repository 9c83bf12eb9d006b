// Package ports declares the narrow contracts the voice pipeline consumes from
// its external collaborators. Implementations live in providers/ and
// credential/persistence/; tests substitute the generated mocks.
package ports

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"voiceid/internal/voice/models"
	id "voiceid/pkg/domain"
)

// BiometricProvider clones voices and scores synthetic audio.
// Failures are reported as provider_unavailable.
type BiometricProvider interface {
	CreateClone(ctx context.Context, displayName string) (string, error)
	Detect(ctx context.Context, payload []byte) (models.Detection, error)
}

// LedgerService anchors voice credentials. Failures are reported as
// mint_rejected, network_error or no_signer.
type LedgerService interface {
	RegisterVoice(ctx context.Context, req models.MintRequest) (models.MintReceipt, error)
}

// PersistenceService stores registration records and streams the user's full
// credential set on every change. Failures are write_conflict or network_error.
type PersistenceService interface {
	Save(ctx context.Context, userID id.UserID, credential models.VoiceCredential) error
	Subscribe(ctx context.Context, userID id.UserID, onChange func([]models.VoiceCredential)) (func(), error)
	SetStatus(ctx context.Context, tokenID id.TokenID, status models.CredentialStatus) error
}

// WalletProvider exposes the signer the pipeline attributes ledger writes to.
// The pipeline reads it and never mutates it.
type WalletProvider interface {
	Signer() (id.SignerAddress, bool)
}
