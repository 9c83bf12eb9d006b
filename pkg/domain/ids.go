package domain

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "voiceid/pkg/domain-errors"
)

// UserID identifies the account that owns a voice session and its credentials.
type UserID uuid.UUID

// CaptureID identifies one in-memory CaptureSession.
type CaptureID uuid.UUID

// RunID identifies one RegistrationRun.
type RunID uuid.UUID

func (u UserID) String() string    { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool       { return uuid.UUID(u) == uuid.Nil }
func (c CaptureID) String() string { return uuid.UUID(c).String() }
func (c CaptureID) IsNil() bool    { return uuid.UUID(c) == uuid.Nil }
func (r RunID) String() string     { return uuid.UUID(r).String() }
func (r RunID) IsNil() bool        { return uuid.UUID(r) == uuid.Nil }

// MarshalText encodes the canonical UUID string so JSON payloads stay readable.
func (u UserID) MarshalText() ([]byte, error) { return uuid.UUID(u).MarshalText() }

func (u *UserID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(u).UnmarshalText(data)
}

// NewCaptureID returns a fresh random CaptureID.
func NewCaptureID() CaptureID { return CaptureID(uuid.New()) }

// NewRunID returns a fresh random RunID.
func NewRunID() RunID { return RunID(uuid.New()) }

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" must not be nil")
	}
	return parsed, nil
}

// ParseUserID validates external input at trust boundaries.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user ID", s)
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

// ParseCaptureID validates external input at trust boundaries.
func ParseCaptureID(s string) (CaptureID, error) {
	u, err := parseUUID("capture ID", s)
	if err != nil {
		return CaptureID{}, err
	}
	return CaptureID(u), nil
}

// TokenID is the ledger-assigned identifier of a minted voice credential.
type TokenID string

// VoiceID is the biometric-provider-assigned identifier of a voice.
type VoiceID string

// SignerAddress is the wallet address that authorizes ledger writes.
type SignerAddress string

func (t TokenID) String() string       { return string(t) }
func (t TokenID) IsNil() bool          { return t == "" }
func (v VoiceID) String() string       { return string(v) }
func (v VoiceID) IsNil() bool          { return v == "" }
func (a SignerAddress) String() string { return string(a) }
func (a SignerAddress) IsNil() bool    { return a == "" }

// maxOpaqueIDLength bounds ledger and wallet identifiers accepted from callers.
const maxOpaqueIDLength = 128

func parseOpaque(kind, s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	if len(s) > maxOpaqueIDLength || !utf8.ValidString(s) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	for _, r := range s {
		if !isOpaqueRune(r) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
		}
	}
	return s, nil
}

func isOpaqueRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '-', r == '_', r == ':', r == '.':
		return true
	}
	return false
}

// ParseTokenID validates a token identifier taken from a URL or request body.
func ParseTokenID(s string) (TokenID, error) {
	v, err := parseOpaque("token ID", s)
	return TokenID(v), err
}

// ParseSignerAddress validates a wallet address supplied by the client.
func ParseSignerAddress(s string) (SignerAddress, error) {
	v, err := parseOpaque("signer address", s)
	return SignerAddress(v), err
}
