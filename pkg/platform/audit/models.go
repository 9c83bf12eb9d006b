package audit

import (
	"context"
	"time"

	id "voiceid/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal or regulatory significance,
	// such as a credential being anchored or tombstoned.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to fraud monitoring and forensics.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers events useful for debugging and operational visibility.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory `json:"category"`
	Timestamp time.Time     `json:"timestamp"`
	UserID    id.UserID     `json:"user_id"`
	Subject   string        `json:"subject,omitempty"`
	Action    string        `json:"action"`
	Decision  string        `json:"decision,omitempty"`
	Reason    string        `json:"reason,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	// ActorID is the wallet signer that authorised the action, when one did.
	ActorID string `json:"actor_id,omitempty"`
}

type AuditEvent string

const (
	// Registration events
	EventVoiceRegistered    AuditEvent = "voice_registered"
	EventRegistrationFailed AuditEvent = "registration_failed"

	// Lifecycle events
	EventCredentialRevoked      AuditEvent = "credential_revoked"
	EventCredentialRevokeFailed AuditEvent = "credential_revoke_failed"

	// Detection events
	EventAudioAudited AuditEvent = "audio_audited"

	// Wallet events
	EventWalletConnected    AuditEvent = "wallet_connected"
	EventWalletDisconnected AuditEvent = "wallet_disconnected"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventVoiceRegistered:   CategoryCompliance,
	EventCredentialRevoked: CategoryCompliance,

	EventCredentialRevokeFailed: CategorySecurity,
	EventAudioAudited:           CategorySecurity,
	EventWalletConnected:        CategorySecurity,
	EventWalletDisconnected:     CategorySecurity,

	EventRegistrationFailed: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}
