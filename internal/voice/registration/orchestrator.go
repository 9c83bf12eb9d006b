// Package registration drives the voice registration pipeline:
//
//	idle -> holding -> uploading -> fingerprinting -> shielding -> registered -> idle
//
// Hold and Release gate entry through a gesture.Timer. Once the gesture
// confirms, the run executes on a context detached from the caller and cannot
// be cancelled; every external call gets its own timeout instead. Any failure
// returns the pipeline to idle with the capture kept, and the credential is
// written exactly once, just before the registered stage.
package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/gesture"
	"voiceid/internal/voice/models"
	"voiceid/internal/voice/ports"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/audit"
	"voiceid/pkg/platform/clock"
)

const tracerName = "voiceid/internal/voice/registration"

// CaptureSource is the part of the capture recorder the pipeline reads.
type CaptureSource interface {
	Session() (models.CaptureSession, bool)
	Recording() (bool, time.Duration)
	PurgeIf(captureID id.CaptureID) bool
}

// CredentialWriter appends the minted credential to the user's store.
type CredentialWriter interface {
	Save(ctx context.Context, credential models.VoiceCredential) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Timings are the pipeline delays and the per-call timeout.
type Timings struct {
	SettleDelay time.Duration
	DisplayHold time.Duration
	CallTimeout time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		SettleDelay: 2 * time.Second,
		DisplayHold: 3 * time.Second,
		CallTimeout: 30 * time.Second,
	}
}

type Orchestrator struct {
	userID      id.UserID
	captures    CaptureSource
	wallet      ports.WalletProvider
	biometric   ports.BiometricProvider
	ledger      ports.LedgerService
	credentials CredentialWriter
	sched       clock.Scheduler
	gesture     *gesture.Timer

	timings        Timings
	logger         *slog.Logger
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	auditPublisher AuditPublisher
	notify         func(models.Notice)
	observe        func(models.RunState)
	dispatch       func(func())

	mu         sync.Mutex
	state      models.RunState
	stageSince time.Time
	runCtx     context.Context
}

// run is what the confirmed pipeline carries from stage to stage.
type run struct {
	id      id.RunID
	capture models.CaptureSession
}

type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(o *Orchestrator) {
		o.auditPublisher = publisher
	}
}

func WithTimings(t Timings) Option {
	return func(o *Orchestrator) {
		o.timings = t
	}
}

// WithNotifier receives the notice produced by every finished run.
func WithNotifier(fn func(models.Notice)) Option {
	return func(o *Orchestrator) {
		o.notify = fn
	}
}

// WithStageObserver is called with a snapshot after every stage change.
func WithStageObserver(fn func(models.RunState)) Option {
	return func(o *Orchestrator) {
		o.observe = fn
	}
}

// WithDispatch replaces the goroutine a confirmed run executes on.
// Tests pass a synchronous dispatcher.
func WithDispatch(dispatch func(func())) Option {
	return func(o *Orchestrator) {
		o.dispatch = dispatch
	}
}

func New(
	userID id.UserID,
	captures CaptureSource,
	wallet ports.WalletProvider,
	biometric ports.BiometricProvider,
	ledger ports.LedgerService,
	credentials CredentialWriter,
	sched clock.Scheduler,
	opts ...Option,
) (*Orchestrator, error) {
	if userID.IsNil() {
		return nil, errors.New("user ID is required")
	}
	if captures == nil {
		return nil, errors.New("capture source is required")
	}
	if wallet == nil {
		return nil, errors.New("wallet provider is required")
	}
	if biometric == nil {
		return nil, errors.New("biometric provider is required")
	}
	if ledger == nil {
		return nil, errors.New("ledger service is required")
	}
	if credentials == nil {
		return nil, errors.New("credential writer is required")
	}
	if sched == nil {
		return nil, errors.New("scheduler is required")
	}

	o := &Orchestrator{
		userID:      userID,
		captures:    captures,
		wallet:      wallet,
		biometric:   biometric,
		ledger:      ledger,
		credentials: credentials,
		sched:       sched,
		timings:     DefaultTimings(),
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		dispatch:    func(fn func()) { go fn() },
		state:       models.RunState{Stage: models.StageIdle},
	}
	for _, opt := range opts {
		opt(o)
	}
	o.gesture = gesture.New(sched, o.confirm,
		gesture.WithGuard(o.gestureAllowed),
		gesture.WithProgress(o.setProgress),
	)
	return o, nil
}

// Hold claims the pipeline and starts the confirmation gesture.
// It fails without side effects when there is no capture, no connected
// signer, a live recording is still open, or a run is already underway.
func (o *Orchestrator) Hold(ctx context.Context) error {
	capture, ok := o.captures.Session()
	if !ok {
		return dErrors.New(dErrors.CodeInputMissing, "select or record audio before registering")
	}
	if recording, _ := o.captures.Recording(); recording {
		return dErrors.New(dErrors.CodeBusy, "stop the live recording before registering")
	}
	if _, connected := o.wallet.Signer(); !connected {
		return dErrors.New(dErrors.CodeInputMissing, "connect a wallet before registering")
	}

	o.mu.Lock()
	if o.state.Stage != models.StageIdle {
		o.mu.Unlock()
		return dErrors.New(dErrors.CodeBusy, "a registration is already in progress")
	}
	runID := id.NewRunID()
	o.state = models.RunState{
		RunID:     runID,
		Stage:     models.StageHolding,
		CaptureID: capture.ID,
	}
	o.runCtx = context.WithoutCancel(ctx)
	snapshot := o.enterLocked(models.StageIdle)
	o.mu.Unlock()
	o.emitStage(snapshot)

	if !o.gesture.Begin() {
		o.abandonHold(runID)
		return dErrors.New(dErrors.CodeBusy, "a registration is already in progress")
	}
	return nil
}

// Release cancels a gesture that has not confirmed yet. It reports whether the
// hold was cancelled; releasing after confirmation has no effect.
func (o *Orchestrator) Release(_ context.Context) bool {
	o.mu.Lock()
	if o.state.Stage != models.StageHolding {
		o.mu.Unlock()
		return false
	}
	runID := o.state.RunID
	o.mu.Unlock()

	if !o.gesture.Cancel() {
		return false
	}
	return o.abandonHold(runID)
}

// State returns a snapshot of the current run.
func (o *Orchestrator) State() models.RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// InFlight reports whether a confirmed run is executing.
func (o *Orchestrator) InFlight() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Stage.InFlight()
}

func (o *Orchestrator) gestureAllowed() bool {
	if _, ok := o.captures.Session(); !ok {
		return false
	}
	if _, connected := o.wallet.Signer(); !connected {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Stage == models.StageHolding
}

func (o *Orchestrator) setProgress(progress int) {
	o.mu.Lock()
	if o.state.Stage != models.StageHolding && progress != 0 {
		o.mu.Unlock()
		return
	}
	o.state.Progress = progress
	o.mu.Unlock()
}

func (o *Orchestrator) abandonHold(runID id.RunID) bool {
	o.mu.Lock()
	if o.state.Stage != models.StageHolding || o.state.RunID != runID {
		o.mu.Unlock()
		return false
	}
	o.state = models.RunState{Stage: models.StageIdle, LastFailure: o.state.LastFailure}
	o.runCtx = nil
	snapshot := o.enterLocked(models.StageHolding)
	o.mu.Unlock()
	o.emitStage(snapshot)
	return true
}

// confirm is the gesture's completion callback and the only way into the
// pipeline. A confirm that finds the pipeline anywhere but holding is dropped.
func (o *Orchestrator) confirm() {
	o.mu.Lock()
	if o.state.Stage != models.StageHolding {
		o.mu.Unlock()
		return
	}
	r := run{id: o.state.RunID}
	capture, ok := o.captures.Session()
	if !ok || capture.ID != o.state.CaptureID {
		o.mu.Unlock()
		o.abandonHold(r.id)
		o.gesture.Reset()
		return
	}
	r.capture = capture
	ctx := o.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	o.state.Stage = models.StageUploading
	o.state.LastFailure = nil
	snapshot := o.enterLocked(models.StageHolding)
	o.mu.Unlock()
	o.emitStage(snapshot)

	o.dispatch(func() { o.execute(ctx, r) })
}

func (o *Orchestrator) execute(ctx context.Context, r run) {
	ctx, span := o.tracer.Start(ctx, "registration.run", trace.WithAttributes(
		attribute.String("user_id", o.userID.String()),
		attribute.String("run_id", r.id.String()),
		attribute.String("capture_source", string(r.capture.Source)),
	))
	defer span.End()

	cloneID, err := o.createClone(ctx, r)
	if err != nil {
		o.fail(ctx, span, r, models.StageUploading, err)
		return
	}
	o.advance(r.id, models.StageFingerprinting)

	if err := o.settle(ctx); err != nil {
		o.fail(ctx, span, r, models.StageFingerprinting, dErrors.Wrap(err, dErrors.CodeTimeout, "fingerprint did not settle"))
		return
	}
	o.advance(r.id, models.StageShielding)

	credential, err := o.mint(ctx, r, cloneID)
	if err != nil {
		o.fail(ctx, span, r, models.StageShielding, err)
		return
	}
	if err := o.persist(ctx, credential); err != nil {
		o.fail(ctx, span, r, models.StageShielding, err)
		return
	}
	o.succeed(ctx, span, r, credential)

	if err := o.sched.Sleep(ctx, o.timings.DisplayHold); err != nil {
		o.logger.WarnContext(ctx, "display hold interrupted", "run_id", r.id.String(), "error", err)
	}
	o.finish(r.id)
}

func (o *Orchestrator) createClone(ctx context.Context, r run) (string, error) {
	ctx, span := o.tracer.Start(ctx, "registration.create_clone")
	defer span.End()
	ctx, cancel := o.callContext(ctx)
	defer cancel()

	cloneID, err := o.biometric.CreateClone(ctx, r.capture.DisplayName())
	if err != nil {
		return "", providerError(err)
	}
	if cloneID == "" {
		return "", dErrors.New(dErrors.CodeProviderUnavailable, "biometric provider returned no clone")
	}
	return cloneID, nil
}

// settle waits out the fingerprint computation. The ordering is the contract;
// the duration is configuration.
func (o *Orchestrator) settle(ctx context.Context) error {
	ctx, span := o.tracer.Start(ctx, "registration.settle")
	defer span.End()
	return o.sched.Sleep(ctx, o.timings.SettleDelay)
}

func (o *Orchestrator) mint(ctx context.Context, r run, cloneID string) (models.VoiceCredential, error) {
	ctx, span := o.tracer.Start(ctx, "registration.mint")
	defer span.End()

	signer, connected := o.wallet.Signer()
	if !connected {
		return models.VoiceCredential{}, dErrors.New(dErrors.CodeNoSigner, "wallet disconnected before mint")
	}

	callCtx, cancel := o.callContext(ctx)
	defer cancel()
	receipt, err := o.ledger.RegisterVoice(callCtx, models.MintRequest{
		Owner:       o.userID,
		Signer:      signer,
		CloneID:     cloneID,
		DisplayName: r.capture.DisplayName(),
		Payload:     r.capture.Payload,
	})
	if err != nil {
		return models.VoiceCredential{}, ledgerError(err)
	}

	credential := receipt.Credential(o.userID, signer)
	if err := credential.Validate(); err != nil {
		return models.VoiceCredential{}, dErrors.Wrap(err, dErrors.CodeMintRejected, "ledger returned an incomplete receipt")
	}
	span.SetAttributes(attribute.String("token_id", credential.TokenID.String()))
	return credential, nil
}

func (o *Orchestrator) persist(ctx context.Context, credential models.VoiceCredential) error {
	ctx, span := o.tracer.Start(ctx, "registration.persist")
	defer span.End()
	ctx, cancel := o.callContext(ctx)
	defer cancel()

	if err := o.credentials.Save(ctx, credential); err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			return dErrors.Wrap(err, dErrors.CodeWriteConflict, "failed to store credential")
		}
		return err
	}
	return nil
}

func (o *Orchestrator) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timings.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timings.CallTimeout)
}

func (o *Orchestrator) advance(runID id.RunID, stage models.Stage) {
	o.mu.Lock()
	if o.state.RunID != runID {
		o.mu.Unlock()
		return
	}
	previous := o.state.Stage
	o.state.Stage = stage
	snapshot := o.enterLocked(previous)
	o.mu.Unlock()
	o.emitStage(snapshot)
}

func (o *Orchestrator) succeed(ctx context.Context, span trace.Span, r run, credential models.VoiceCredential) {
	o.mu.Lock()
	previous := o.state.Stage
	o.state.Stage = models.StageRegistered
	o.state.TokenID = credential.TokenID
	snapshot := o.enterLocked(previous)
	o.mu.Unlock()

	o.captures.PurgeIf(r.capture.ID)
	o.emitStage(snapshot)

	span.SetStatus(codes.Ok, "")
	o.metrics.IncRegistration("success", "")
	o.emitNotice(models.Notice{
		Kind:    models.NoticeRegistered,
		Message: "voice registered as " + credential.TokenID.String(),
		TokenID: credential.TokenID,
	})
	o.logAudit(ctx, audit.EventVoiceRegistered, credential.TokenID.String(), "registered", "",
		"run_id", r.id.String(),
		"network", credential.Network,
	)
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, r run, stage models.Stage, err error) {
	code := dErrors.CodeOf(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(code))

	o.mu.Lock()
	if o.state.RunID != r.id {
		o.mu.Unlock()
		return
	}
	failure := &models.Failure{
		Stage:   stage,
		Code:    code,
		Message: dErrors.MessageOf(err),
		At:      o.sched.Now(),
	}
	previous := o.state.Stage
	o.state = models.RunState{Stage: models.StageIdle, LastFailure: failure}
	o.runCtx = nil
	snapshot := o.enterLocked(previous)
	o.mu.Unlock()

	o.gesture.Reset()
	o.emitStage(snapshot)

	o.metrics.IncRegistration("failure", string(code))
	o.emitNotice(models.Notice{
		Kind:    models.NoticeRegistrationFailed,
		Code:    code,
		Message: fmt.Sprintf("registration failed while %s: %s", stage, failure.Message),
	})
	o.logger.ErrorContext(ctx, "registration failed",
		"user_id", o.userID.String(),
		"run_id", r.id.String(),
		"stage", stage.String(),
		"code", string(code),
		"error", err,
	)
	o.logAudit(ctx, audit.EventRegistrationFailed, r.capture.ID.String(), "failed", string(code),
		"run_id", r.id.String(),
		"stage", stage.String(),
	)
}

// finish returns a registered run to idle after the display hold.
func (o *Orchestrator) finish(runID id.RunID) {
	o.mu.Lock()
	if o.state.RunID != runID || o.state.Stage != models.StageRegistered {
		o.mu.Unlock()
		return
	}
	o.state = models.RunState{Stage: models.StageIdle}
	o.runCtx = nil
	snapshot := o.enterLocked(models.StageRegistered)
	o.mu.Unlock()

	o.gesture.Reset()
	o.emitStage(snapshot)
}

// enterLocked stamps the stage change and returns the snapshot to publish.
func (o *Orchestrator) enterLocked(previous models.Stage) models.RunState {
	now := o.sched.Now()
	o.metrics.ObserveStage(o.state.Stage.String(), previous.String(), o.stageSince)
	o.stageSince = now
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() models.RunState {
	snapshot := o.state
	if o.state.LastFailure != nil {
		failure := *o.state.LastFailure
		snapshot.LastFailure = &failure
	}
	return snapshot
}

func (o *Orchestrator) emitStage(snapshot models.RunState) {
	if o.observe != nil {
		o.observe(snapshot)
	}
}

func (o *Orchestrator) emitNotice(n models.Notice) {
	if o.notify == nil {
		return
	}
	n.At = o.sched.Now()
	o.notify(n)
}

func (o *Orchestrator) logAudit(ctx context.Context, event audit.AuditEvent, subject, decision, reason string, attrs ...any) {
	signer, _ := o.wallet.Signer()
	args := append([]any{
		"event", string(event),
		"log_type", "audit",
		"user_id", o.userID.String(),
		"subject", subject,
	}, attrs...)
	if reason != "" {
		args = append(args, "reason", reason)
	}
	o.logger.InfoContext(ctx, string(event), args...)
	if o.auditPublisher == nil {
		return
	}
	_ = o.auditPublisher.Emit(ctx, audit.Event{
		UserID:   o.userID,
		Subject:  subject,
		Action:   string(event),
		Decision: decision,
		Reason:   reason,
		ActorID:  signer.String(),
	})
}

// providerError keeps a coded provider failure and classifies anything else
// as the provider being unavailable.
func providerError(err error) error {
	if dErrors.HasCode(err, dErrors.CodeProviderUnavailable) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeProviderUnavailable, "biometric provider unavailable")
}

func ledgerError(err error) error {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeMintRejected, dErrors.CodeNetworkError, dErrors.CodeNoSigner:
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return dErrors.Wrap(err, dErrors.CodeNetworkError, "ledger did not answer in time")
	}
	return dErrors.Wrap(err, dErrors.CodeNetworkError, "ledger unreachable")
}
