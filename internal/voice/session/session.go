// Package session owns the per-user voice pipeline: one recorder, wallet,
// credential store, lifecycle, orchestrator and auditor for each user, created
// on first use and released on Close.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/auditor"
	"voiceid/internal/voice/capture"
	"voiceid/internal/voice/credential"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	"voiceid/internal/voice/registration"
	"voiceid/internal/voice/wallet"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/audit"
	"voiceid/pkg/platform/clock"
)

const maxNotices = 20

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Persistence ports.PersistenceService
	Biometric   ports.BiometricProvider
	Ledger      ports.LedgerService
	Scheduler   clock.Scheduler
	Timings     registration.Timings
	MaxPayload  int
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Audit       AuditPublisher
}

// Session is one user's pipeline. Capture changes are refused while a
// registration is underway so the run never loses its audio.
type Session struct {
	UserID id.UserID

	device       *capture.PushDevice
	recorder     *capture.Recorder
	wallet       *wallet.Connection
	credentials  *credential.Store
	lifecycle    *credential.Lifecycle
	orchestrator *registration.Orchestrator
	auditor      *auditor.Auditor

	sched  clock.Scheduler
	logger *slog.Logger
	audit  AuditPublisher

	// gate orders capture changes against Hold.
	gate sync.Mutex

	mu      sync.Mutex
	notices []models.Notice
}

func newSession(ctx context.Context, userID id.UserID, deviceLabel string, deps Deps, dispatch func(func())) (*Session, error) {
	s := &Session{
		UserID: userID,
		device: capture.NewPushDevice(),
		wallet: &wallet.Connection{},
		sched:  deps.Scheduler,
		logger: deps.Logger.With("user_id", userID.String()),
		audit:  deps.Audit,
	}

	recorderOpts := []capture.Option{
		capture.WithLogger(s.logger),
		capture.WithMetrics(deps.Metrics),
		capture.WithDeviceLabel(deviceLabel),
	}
	if deps.MaxPayload > 0 {
		recorderOpts = append(recorderOpts, capture.WithMaxPayload(deps.MaxPayload))
	}
	s.recorder = capture.New(s.device, deps.Scheduler, recorderOpts...)

	s.credentials = credential.NewStore(deps.Persistence, userID, credential.WithLogger(s.logger))
	if err := s.credentials.Subscribe(ctx); err != nil {
		s.recorder.Close(ctx)
		return nil, err
	}

	lifecycleOpts := []credential.LifecycleOption{
		credential.WithLifecycleLogger(s.logger),
		credential.WithMetrics(deps.Metrics),
		credential.WithNotifier(s.pushNotice),
	}
	if deps.Audit != nil {
		lifecycleOpts = append(lifecycleOpts, credential.WithAuditPublisher(deps.Audit))
	}
	s.lifecycle = credential.NewLifecycle(s.credentials, s.wallet, deps.Scheduler, lifecycleOpts...)

	orchOpts := []registration.Option{
		registration.WithLogger(s.logger),
		registration.WithMetrics(deps.Metrics),
		registration.WithTimings(deps.Timings),
		registration.WithNotifier(s.pushNotice),
	}
	if dispatch != nil {
		orchOpts = append(orchOpts, registration.WithDispatch(dispatch))
	}
	if deps.Audit != nil {
		orchOpts = append(orchOpts, registration.WithAuditPublisher(deps.Audit))
	}
	orch, err := registration.New(userID, s.recorder, s.wallet, deps.Biometric, deps.Ledger, s.credentials, deps.Scheduler, orchOpts...)
	if err != nil {
		s.credentials.Close()
		s.recorder.Close(ctx)
		return nil, err
	}
	s.orchestrator = orch

	auditorOpts := []auditor.Option{
		auditor.WithLogger(s.logger),
		auditor.WithMetrics(deps.Metrics),
		auditor.WithCallTimeout(deps.Timings.CallTimeout),
	}
	if deps.Audit != nil {
		auditorOpts = append(auditorOpts, auditor.WithAuditPublisher(deps.Audit))
	}
	s.auditor = auditor.New(userID, deps.Biometric, deps.Scheduler, auditorOpts...)
	return s, nil
}

// ConnectWallet sets the signer used for mints and revocations.
func (s *Session) ConnectWallet(ctx context.Context, raw string) (id.SignerAddress, error) {
	address, err := id.ParseSignerAddress(raw)
	if err != nil {
		return "", err
	}
	s.wallet.Connect(address)
	s.logAudit(ctx, audit.EventWalletConnected, address)
	return address, nil
}

func (s *Session) DisconnectWallet(ctx context.Context) {
	if previous := s.wallet.Disconnect(); !previous.IsNil() {
		s.logAudit(ctx, audit.EventWalletDisconnected, previous)
	}
}

func (s *Session) Signer() (id.SignerAddress, bool) {
	return s.wallet.Signer()
}

func (s *Session) SetCaptureMode(ctx context.Context, mode models.CaptureSource) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := s.captureUnlocked(); err != nil {
		return err
	}
	return s.recorder.SetMode(ctx, mode)
}

func (s *Session) CaptureMode() models.CaptureSource {
	return s.recorder.Mode()
}

func (s *Session) Upload(ctx context.Context, fileName string, payload []byte) (models.CaptureSession, error) {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := s.captureUnlocked(); err != nil {
		return models.CaptureSession{}, err
	}
	return s.recorder.Select(ctx, fileName, payload)
}

func (s *Session) StartRecording(ctx context.Context) (bool, error) {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := s.captureUnlocked(); err != nil {
		return false, err
	}
	return s.recorder.StartCapture(ctx)
}

// PushAudio feeds a chunk into the open recording.
func (s *Session) PushAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return dErrors.New(dErrors.CodeInputMissing, "audio chunk is empty")
	}
	if err := s.device.Push(chunk); err != nil {
		return dErrors.Wrap(err, dErrors.CodeConflict, "no recording in progress")
	}
	return nil
}

// StopRecording finalizes the live recording into the pending capture. While a
// registration owns the capture the recording is discarded instead and busy
// is returned.
func (s *Session) StopRecording(ctx context.Context) (*models.CaptureSession, error) {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := s.captureUnlocked(); err != nil {
		if s.recorder.Discard(ctx) {
			return nil, err
		}
		return nil, nil
	}
	return s.recorder.StopCapture(ctx)
}

// Recording reports whether a live capture is open and for how long.
func (s *Session) Recording() (bool, time.Duration) {
	return s.recorder.Recording()
}

func (s *Session) Capture() (models.CaptureSession, bool) {
	return s.recorder.Session()
}

func (s *Session) PurgeCapture() (bool, error) {
	s.gate.Lock()
	defer s.gate.Unlock()
	if err := s.captureUnlocked(); err != nil {
		return false, err
	}
	return s.recorder.Purge(), nil
}

func (s *Session) Hold(ctx context.Context) error {
	s.gate.Lock()
	defer s.gate.Unlock()
	return s.orchestrator.Hold(ctx)
}

func (s *Session) Release(ctx context.Context) bool {
	return s.orchestrator.Release(ctx)
}

func (s *Session) Registration() models.RunState {
	return s.orchestrator.State()
}

func (s *Session) Credentials() []models.VoiceCredential {
	return s.credentials.List()
}

func (s *Session) Revoke(ctx context.Context, tokenID id.TokenID) error {
	return s.lifecycle.Revoke(ctx, tokenID)
}

// Audit scans payload, or the current capture when payload is empty.
func (s *Session) Audit(ctx context.Context, payload []byte) (models.DetectionVerdict, error) {
	if len(payload) == 0 {
		if current, ok := s.recorder.Session(); ok {
			payload = current.Payload
		}
	}
	return s.auditor.Audit(ctx, payload)
}

func (s *Session) LastVerdict() (models.DetectionVerdict, bool) {
	return s.auditor.Last()
}

// Notices returns the most recent notices, oldest first.
func (s *Session) Notices() []models.Notice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notice(nil), s.notices...)
}

// Close cancels a pending hold, releases the audio device and detaches the
// credential feed. A confirmed registration still runs to completion.
func (s *Session) Close(ctx context.Context) {
	s.orchestrator.Release(ctx)
	s.recorder.Close(ctx)
	s.credentials.Close()
}

func (s *Session) captureUnlocked() error {
	if s.orchestrator.State().Stage != models.StageIdle {
		return dErrors.New(dErrors.CodeBusy, "capture is locked while a registration is underway")
	}
	return nil
}

func (s *Session) pushNotice(n models.Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, n)
	if len(s.notices) > maxNotices {
		s.notices = append([]models.Notice(nil), s.notices[len(s.notices)-maxNotices:]...)
	}
}

func (s *Session) logAudit(ctx context.Context, event audit.AuditEvent, address id.SignerAddress) {
	s.logger.InfoContext(ctx, string(event),
		"event", string(event),
		"log_type", "audit",
		"signer", address.String(),
	)
	if s.audit == nil {
		return
	}
	_ = s.audit.Emit(ctx, audit.Event{
		UserID:  s.UserID,
		Subject: address.String(),
		Action:  string(event),
		ActorID: address.String(),
	})
}
