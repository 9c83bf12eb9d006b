// Package capture produces the audio payload a registration or audit runs on.
//
// A Recorder works in one of two mutually exclusive modes. In uploaded mode a
// file selection becomes the capture immediately. In recorded mode the
// recorder holds a live AudioStream between StartCapture and StopCapture and
// counts whole seconds on the injected scheduler. The stream is released on
// every exit path: stop, mode switch, and Close.
package capture

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"voiceid/internal/platform/metrics"
	"voiceid/internal/voice/models"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/clock"
)

const (
	// DefaultMaxPayload bounds uploads and recordings.
	DefaultMaxPayload  = 25 << 20
	durationResolution = time.Second
)

type Recorder struct {
	device      AudioDevice
	sched       clock.Scheduler
	logger      *slog.Logger
	metrics     *metrics.Metrics
	deviceLabel string
	maxPayload  int

	mu       sync.Mutex
	mode     models.CaptureSource
	session  *models.CaptureSession
	active   *recording
	starting bool
	closed   bool
}

type recording struct {
	stream      AudioStream
	unsubscribe func()
	stopTicker  func()
	buf         bytes.Buffer
	elapsed     time.Duration
	overflow    bool
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithDeviceLabel stamps recorded captures with a human-readable device name.
func WithDeviceLabel(label string) Option {
	return func(r *Recorder) {
		r.deviceLabel = label
	}
}

func WithMaxPayload(n int) Option {
	return func(r *Recorder) {
		if n > 0 {
			r.maxPayload = n
		}
	}
}

// New returns a Recorder in uploaded mode.
func New(device AudioDevice, sched clock.Scheduler, opts ...Option) *Recorder {
	r := &Recorder{
		device:     device,
		sched:      sched,
		logger:     slog.Default(),
		maxPayload: DefaultMaxPayload,
		mode:       models.CaptureSourceUploaded,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Mode() models.CaptureSource {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode switches acquisition mode. Switching discards the pending capture and
// releases any live recording so stale audio is never registered under the new mode.
func (r *Recorder) SetMode(ctx context.Context, mode models.CaptureSource) error {
	if !mode.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown capture mode: "+string(mode))
	}
	r.mu.Lock()
	if r.mode == mode {
		r.mu.Unlock()
		return nil
	}
	r.mode = mode
	r.session = nil
	rec := r.active
	r.active = nil
	r.mu.Unlock()

	if rec != nil {
		r.release(ctx, rec)
	}
	r.logger.InfoContext(ctx, "capture mode switched", "mode", string(mode))
	return nil
}

// Select makes an uploaded file the current capture, replacing any previous one.
func (r *Recorder) Select(ctx context.Context, fileName string, payload []byte) (models.CaptureSession, error) {
	if len(payload) == 0 {
		return models.CaptureSession{}, dErrors.New(dErrors.CodeInputMissing, "audio file is empty")
	}
	if len(payload) > r.maxPayload {
		return models.CaptureSession{}, dErrors.New(dErrors.CodeInvalidInput, "audio file exceeds size limit")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return models.CaptureSession{}, dErrors.New(dErrors.CodeConflict, "recorder is closed")
	}
	if r.mode != models.CaptureSourceUploaded {
		return models.CaptureSession{}, dErrors.New(dErrors.CodeConflict, "file selection requires uploaded mode")
	}
	session := models.CaptureSession{
		ID:        id.NewCaptureID(),
		Source:    models.CaptureSourceUploaded,
		Payload:   append([]byte(nil), payload...),
		FileName:  fileName,
		CreatedAt: r.sched.Now(),
	}
	r.session = &session
	r.metrics.IncCapture(string(session.Source))
	return session, nil
}

// StartCapture acquires the audio device and begins buffering. It returns false
// without error when a recording is already active.
func (r *Recorder) StartCapture(ctx context.Context) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, dErrors.New(dErrors.CodeConflict, "recorder is closed")
	}
	if r.mode != models.CaptureSourceRecorded {
		r.mu.Unlock()
		return false, dErrors.New(dErrors.CodeConflict, "live capture requires recorded mode")
	}
	if r.active != nil || r.starting {
		r.mu.Unlock()
		return false, nil
	}
	r.starting = true
	r.mu.Unlock()

	stream, err := r.device.Acquire(ctx)

	r.mu.Lock()
	r.starting = false
	if err != nil {
		r.mu.Unlock()
		r.logger.WarnContext(ctx, "audio device unavailable", "error", err)
		return false, dErrors.Wrap(err, dErrors.CodeDeviceUnavailable, "audio input device unavailable")
	}
	if r.closed || r.mode != models.CaptureSourceRecorded {
		r.mu.Unlock()
		r.closeStream(ctx, stream)
		return false, dErrors.New(dErrors.CodeConflict, "capture mode changed while acquiring device")
	}
	// Neither registration invokes its callback synchronously, so both are
	// safe under r.mu and the recording is complete before anyone can stop it.
	rec := &recording{stream: stream}
	rec.unsubscribe = stream.OnData(func(chunk []byte) { r.append(rec, chunk) })
	rec.stopTicker = r.sched.Every(durationResolution, func() { r.count(rec) })
	r.active = rec
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "live capture started")
	return true, nil
}

// StopCapture finalizes the buffered audio into the current capture and
// releases the device. It returns nil without error when nothing is recording.
func (r *Recorder) StopCapture(ctx context.Context) (*models.CaptureSession, error) {
	r.mu.Lock()
	rec := r.active
	if rec == nil {
		r.mu.Unlock()
		return nil, nil
	}
	r.active = nil
	r.mu.Unlock()

	r.release(ctx, rec)

	if rec.buf.Len() == 0 {
		return nil, dErrors.New(dErrors.CodeInputMissing, "no audio was captured")
	}
	if rec.overflow {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "recording exceeds size limit")
	}

	session := models.CaptureSession{
		ID:          id.NewCaptureID(),
		Source:      models.CaptureSourceRecorded,
		Payload:     append([]byte(nil), rec.buf.Bytes()...),
		Duration:    rec.elapsed,
		DeviceLabel: r.deviceLabel,
		CreatedAt:   r.sched.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.mode != models.CaptureSourceRecorded {
		return nil, dErrors.New(dErrors.CodeConflict, "capture mode changed while stopping")
	}
	r.session = &session
	r.metrics.IncCapture(string(session.Source))
	r.logger.InfoContext(ctx, "live capture finalized",
		"capture_id", session.ID.String(),
		"bytes", len(session.Payload),
		"duration_seconds", int(session.Duration/time.Second),
	)
	return &session, nil
}

// Discard releases a live recording without finalizing it. The pending
// capture is left untouched. Returns false if nothing was recording.
func (r *Recorder) Discard(ctx context.Context) bool {
	r.mu.Lock()
	rec := r.active
	r.active = nil
	r.mu.Unlock()

	if rec == nil {
		return false
	}
	r.release(ctx, rec)
	r.logger.InfoContext(ctx, "live capture discarded", "bytes", rec.buf.Len())
	return true
}

// Recording reports whether a live capture is active and its elapsed seconds.
func (r *Recorder) Recording() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return false, 0
	}
	return true, r.active.elapsed
}

// Session returns the pending capture, if any.
func (r *Recorder) Session() (models.CaptureSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil {
		return models.CaptureSession{}, false
	}
	return *r.session, true
}

// HasSession reports whether a capture is pending.
func (r *Recorder) HasSession() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session != nil
}

// Purge discards the pending capture. Returns false if there was none.
func (r *Recorder) Purge() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	had := r.session != nil
	r.session = nil
	return had
}

// PurgeIf discards the pending capture only if it is still captureID.
func (r *Recorder) PurgeIf(captureID id.CaptureID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session == nil || r.session.ID != captureID {
		return false
	}
	r.session = nil
	return true
}

// Close releases the device and discards any capture. Later calls are no-ops.
func (r *Recorder) Close(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.session = nil
	rec := r.active
	r.active = nil
	r.mu.Unlock()

	if rec != nil {
		r.release(ctx, rec)
	}
}

func (r *Recorder) append(rec *recording, chunk []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != rec || rec.overflow {
		return
	}
	if rec.buf.Len()+len(chunk) > r.maxPayload {
		rec.overflow = true
		return
	}
	rec.buf.Write(chunk)
}

func (r *Recorder) count(rec *recording) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == rec {
		rec.elapsed += durationResolution
	}
}

// release must only be called once rec is no longer r.active.
func (r *Recorder) release(ctx context.Context, rec *recording) {
	if rec.unsubscribe != nil {
		rec.unsubscribe()
	}
	if rec.stopTicker != nil {
		rec.stopTicker()
	}
	r.closeStream(ctx, rec.stream)
}

func (r *Recorder) closeStream(ctx context.Context, stream AudioStream) {
	if err := stream.Close(); err != nil {
		r.logger.WarnContext(ctx, "failed to release audio device", "error", err)
	}
}
