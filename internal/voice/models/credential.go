package models

import (
	"time"

	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
)

// CredentialStatus is the lifecycle state of a VoiceCredential.
type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRevoked CredentialStatus = "revoked"
)

func (s CredentialStatus) String() string { return string(s) }

// IsValid reports whether s is a known status.
func (s CredentialStatus) IsValid() bool {
	return s == CredentialStatusActive || s == CredentialStatusRevoked
}

// ParseCredentialStatus validates a status supplied by a persistence backend or client.
func ParseCredentialStatus(s string) (CredentialStatus, error) {
	status := CredentialStatus(s)
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown credential status: "+s)
	}
	return status, nil
}

// VoiceCredential is the ledger-anchored record of a registered voice identity.
// Invariant: only Status changes after mint, and only from active to revoked.
type VoiceCredential struct {
	TokenID              id.TokenID       `json:"token_id"`
	VoiceID              id.VoiceID       `json:"voice_id"`
	OwnerID              id.UserID        `json:"owner_id"`
	SignerAddress        id.SignerAddress `json:"signer_address"`
	FingerprintHash      string           `json:"fingerprint_hash"`
	ContractAddress      string           `json:"contract_address"`
	TransactionHash      string           `json:"transaction_hash"`
	Network              string           `json:"network"`
	MintDate             time.Time        `json:"mint_date"`
	Status               CredentialStatus `json:"status"`
	IsMarketplaceEnabled bool             `json:"is_marketplace_enabled"`
}

// IsRevoked reports whether the credential has been tombstoned.
func (c VoiceCredential) IsRevoked() bool {
	return c.Status == CredentialStatusRevoked
}

// CanTransitionTo enforces the monotonic active -> revoked lifecycle.
// A transition to the current status is allowed and is a no-op for callers.
func (c VoiceCredential) CanTransitionTo(next CredentialStatus) error {
	if !next.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown credential status: "+string(next))
	}
	if c.Status == CredentialStatusRevoked && next == CredentialStatusActive {
		return dErrors.New(dErrors.CodeInvariantViolation, "revoked credential cannot be reactivated")
	}
	return nil
}

// Validate checks the fields a successful mint must populate.
func (c VoiceCredential) Validate() error {
	switch {
	case c.TokenID.IsNil():
		return dErrors.New(dErrors.CodeInvariantViolation, "credential token ID is required")
	case c.VoiceID.IsNil():
		return dErrors.New(dErrors.CodeInvariantViolation, "credential voice ID is required")
	case c.OwnerID.IsNil():
		return dErrors.New(dErrors.CodeInvariantViolation, "credential owner is required")
	case !c.Status.IsValid():
		return dErrors.New(dErrors.CodeInvariantViolation, "credential status is invalid")
	}
	return nil
}

// MergeStatus returns the later of two lifecycle states. A stale feed that still
// reports active never overwrites a revocation already observed.
func MergeStatus(known, incoming CredentialStatus) CredentialStatus {
	if known == CredentialStatusRevoked || incoming == CredentialStatusRevoked {
		return CredentialStatusRevoked
	}
	if incoming.IsValid() {
		return incoming
	}
	return known
}
