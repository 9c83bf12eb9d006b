package models

import (
	"time"

	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
)

// Stage is the state of a RegistrationRun.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageHolding        Stage = "holding"
	StageUploading      Stage = "uploading"
	StageFingerprinting Stage = "fingerprinting"
	StageShielding      Stage = "shielding"
	StageRegistered     Stage = "registered"
)

func (s Stage) String() string { return string(s) }

// InFlight reports whether the run has passed the gesture and can no longer be cancelled.
func (s Stage) InFlight() bool {
	switch s {
	case StageUploading, StageFingerprinting, StageShielding, StageRegistered:
		return true
	}
	return false
}

// Failure describes why the last run aborted back to idle.
type Failure struct {
	Stage   Stage        `json:"stage"`
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

// RunState is a point-in-time snapshot of the registration pipeline.
type RunState struct {
	RunID       id.RunID     `json:"-"`
	Stage       Stage        `json:"stage"`
	Progress    int          `json:"progress"`
	CaptureID   id.CaptureID `json:"-"`
	TokenID     id.TokenID   `json:"token_id,omitempty"`
	LastFailure *Failure     `json:"last_failure,omitempty"`
}

// NoticeKind classifies user-facing notices.
type NoticeKind string

const (
	NoticeRegistered         NoticeKind = "registered"
	NoticeRegistrationFailed NoticeKind = "registration_failed"
	NoticeRevoked            NoticeKind = "revoked"
	NoticeRevokeFailed       NoticeKind = "revoke_failed"
)

// Notice is surfaced to the user session after a pipeline or lifecycle outcome.
type Notice struct {
	Kind    NoticeKind   `json:"kind"`
	Code    dErrors.Code `json:"code,omitempty"`
	Message string       `json:"message"`
	TokenID id.TokenID   `json:"token_id,omitempty"`
	At      time.Time    `json:"at"`
}

// MintRequest is what the ledger needs to anchor a voice credential.
type MintRequest struct {
	Owner       id.UserID
	Signer      id.SignerAddress
	CloneID     string
	DisplayName string
	Payload     []byte
}

// MintReceipt is the ledger's answer to a successful mint.
type MintReceipt struct {
	TokenID         id.TokenID
	VoiceID         id.VoiceID
	ContractAddress string
	FingerprintHash string
	TransactionHash string
	Network         string
	MintDate        time.Time
}

// Credential builds the active VoiceCredential anchored by this receipt.
func (r MintReceipt) Credential(owner id.UserID, signer id.SignerAddress) VoiceCredential {
	return VoiceCredential{
		TokenID:         r.TokenID,
		VoiceID:         r.VoiceID,
		OwnerID:         owner,
		SignerAddress:   signer,
		FingerprintHash: r.FingerprintHash,
		ContractAddress: r.ContractAddress,
		TransactionHash: r.TransactionHash,
		Network:         r.Network,
		MintDate:        r.MintDate,
		Status:          CredentialStatusActive,
	}
}
