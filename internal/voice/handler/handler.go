// Package handler exposes the voice pipeline over HTTP. Every route acts on
// the authenticated user's session, which is opened on first use.
package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voiceid/internal/voice/models"
	"voiceid/internal/voice/session"
	id "voiceid/pkg/domain"
	dErrors "voiceid/pkg/domain-errors"
	"voiceid/pkg/platform/device"
	"voiceid/pkg/platform/httputil"
	authmw "voiceid/pkg/platform/middleware/auth"
	devicemw "voiceid/pkg/platform/middleware/device"
	"voiceid/pkg/requestcontext"
)

// DefaultMaxUpload bounds raw audio request bodies.
const DefaultMaxUpload = 25 << 20

// SessionManager opens and closes per-user pipeline sessions.
type SessionManager interface {
	Open(ctx context.Context, userID id.UserID, deviceLabel string) (*session.Session, error)
	Close(ctx context.Context, userID id.UserID) bool
}

// Handler serves the /v1/voice routes.
type Handler struct {
	logger       *slog.Logger
	sessions     SessionManager
	jwtValidator authmw.JWTValidator
	maxUpload    int64
}

type Option func(*Handler)

func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// New creates a voice handler.
func New(sessions SessionManager, jwtValidator authmw.JWTValidator, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:       logger,
		sessions:     sessions,
		jwtValidator: jwtValidator,
		maxUpload:    DefaultMaxUpload,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the voice routes behind bearer authentication.
func (h *Handler) Register(r chi.Router) {
	voiceRouter := chi.NewRouter()
	voiceRouter.Use(authmw.RequireAuth(h.jwtValidator, h.logger))

	voiceRouter.Get("/session", h.HandleGetSession)
	voiceRouter.Delete("/session", h.HandleCloseSession)

	voiceRouter.Post("/wallet", h.HandleConnectWallet)
	voiceRouter.Delete("/wallet", h.HandleDisconnectWallet)

	voiceRouter.Get("/capture", h.HandleGetCapture)
	voiceRouter.Delete("/capture", h.HandlePurgeCapture)
	voiceRouter.Put("/capture/mode", h.HandleSetCaptureMode)
	voiceRouter.Post("/capture/upload", h.HandleUpload)
	voiceRouter.Post("/capture/recording", h.HandleStartRecording)
	voiceRouter.Post("/capture/recording/chunks", h.HandlePushAudio)
	voiceRouter.Delete("/capture/recording", h.HandleStopRecording)

	voiceRouter.Get("/registration", h.HandleGetRegistration)
	voiceRouter.Post("/registration/hold", h.HandleHold)
	voiceRouter.Post("/registration/release", h.HandleRelease)

	voiceRouter.Get("/credentials", h.HandleListCredentials)
	voiceRouter.Post("/credentials/{tokenID}/revoke", h.HandleRevoke)

	voiceRouter.Post("/audit", h.HandleAudit)
	voiceRouter.Get("/audit", h.HandleLastVerdict)

	voiceRouter.Get("/notices", h.HandleNotices)

	r.Mount("/v1/voice", voiceRouter)
}

func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	resp := sessionResponse{
		UserID:       sess.UserID.String(),
		Wallet:       walletView(sess),
		Capture:      captureView(sess),
		Registration: sess.Registration(),
	}
	if verdict, ok := sess.LastVerdict(); ok {
		resp.LastVerdict = toVerdictResponse(verdict)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleCloseSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}
	h.sessions.Close(ctx, userID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleConnectWallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req connectWalletRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "failed to decode wallet request", err)
		return
	}
	if _, err := sess.ConnectWallet(r.Context(), req.Address); err != nil {
		h.writeError(w, r, "failed to connect wallet", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, walletView(sess))
}

func (h *Handler) HandleDisconnectWallet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	sess.DisconnectWallet(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleGetCapture(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, captureView(sess))
}

func (h *Handler) HandleSetCaptureMode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req captureModeRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.writeError(w, r, "failed to decode capture mode", err)
		return
	}
	if err := sess.SetCaptureMode(r.Context(), req.Mode); err != nil {
		h.writeError(w, r, "failed to switch capture mode", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, captureView(sess))
}

// HandleUpload takes the raw audio bytes as the request body. The file name
// travels in the file_name query parameter.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	payload, err := h.readAudio(r)
	if err != nil {
		h.writeError(w, r, "failed to read upload", err)
		return
	}
	capture, err := sess.Upload(r.Context(), r.URL.Query().Get("file_name"), payload)
	if err != nil {
		h.writeError(w, r, "failed to select upload", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, capture.Summary())
}

func (h *Handler) HandleStartRecording(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	started, err := sess.StartRecording(r.Context())
	if err != nil {
		h.writeError(w, r, "failed to start recording", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, startRecordingResponse{Started: started})
}

func (h *Handler) HandlePushAudio(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	chunk, err := h.readAudio(r)
	if err != nil {
		h.writeError(w, r, "failed to read audio chunk", err)
		return
	}
	if err := sess.PushAudio(chunk); err != nil {
		h.writeError(w, r, "failed to push audio chunk", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleStopRecording(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	capture, err := sess.StopRecording(r.Context())
	if err != nil {
		h.writeError(w, r, "failed to stop recording", err)
		return
	}
	if capture == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, capture.Summary())
}

func (h *Handler) HandlePurgeCapture(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	purged, err := sess.PurgeCapture()
	if err != nil {
		h.writeError(w, r, "failed to purge capture", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, purgeResponse{Purged: purged})
}

func (h *Handler) HandleGetRegistration(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sess.Registration())
}

// HandleHold starts the confirmation gesture. The pipeline runs in the
// background once the gesture completes; clients poll GET /registration.
func (h *Handler) HandleHold(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Hold(r.Context()); err != nil {
		h.writeError(w, r, "failed to begin hold", err)
		return
	}
	httputil.WriteJSON(w, http.StatusAccepted, sess.Registration())
}

func (h *Handler) HandleRelease(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	cancelled := sess.Release(r.Context())
	httputil.WriteJSON(w, http.StatusOK, releaseResponse{
		Cancelled:    cancelled,
		Registration: sess.Registration(),
	})
}

func (h *Handler) HandleListCredentials(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	credentials := sess.Credentials()
	if credentials == nil {
		credentials = []models.VoiceCredential{}
	}
	httputil.WriteJSON(w, http.StatusOK, credentialsResponse{Credentials: credentials})
}

func (h *Handler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		h.writeError(w, r, "invalid token ID", err)
		return
	}
	if err := sess.Revoke(r.Context(), tokenID); err != nil {
		h.writeError(w, r, "failed to revoke credential", err)
		return
	}
	for _, credential := range sess.Credentials() {
		if credential.TokenID == tokenID {
			httputil.WriteJSON(w, http.StatusOK, credential)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleAudit scans the request body, or the current capture when the body is empty.
func (h *Handler) HandleAudit(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	payload, err := h.readAudio(r)
	if err != nil {
		h.writeError(w, r, "failed to read audit payload", err)
		return
	}
	verdict, err := sess.Audit(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, "audit failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerdictResponse(verdict))
}

func (h *Handler) HandleLastVerdict(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	verdict, found := sess.LastVerdict()
	if !found {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "no audit has completed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toVerdictResponse(verdict))
}

func (h *Handler) HandleNotices(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	notices := sess.Notices()
	if notices == nil {
		notices = []models.Notice{}
	}
	httputil.WriteJSON(w, http.StatusOK, noticesResponse{Notices: notices})
}

// session resolves the caller's pipeline, writing the error response itself
// when it cannot.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		h.logger.ErrorContext(ctx, "userID missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return nil, false
	}
	label := devicemw.GetLabel(ctx)
	if label == "" {
		label = device.ParseUserAgent(r.UserAgent())
	}
	sess, err := h.sessions.Open(ctx, userID, label)
	if err != nil {
		h.writeError(w, r, "failed to open voice session", err)
		return nil, false
	}
	return sess, true
}

// readAudio reads at most one byte past the limit so oversize bodies reach
// the recorder's own size check instead of being silently truncated.
func (h *Handler) readAudio(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, h.maxUpload+1))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "failed to read request body")
	}
	if int64(len(payload)) > h.maxUpload {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "audio exceeds size limit")
	}
	return payload, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"error", err,
		"code", string(dErrors.CodeOf(err)),
		"user_id", requestcontext.UserID(ctx).String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteError(w, err)
}

func walletView(sess *session.Session) walletResponse {
	signer, connected := sess.Signer()
	return walletResponse{Connected: connected, Signer: signer.String()}
}

func captureView(sess *session.Session) captureResponse {
	recording, elapsed := sess.Recording()
	resp := captureResponse{
		Mode:             sess.CaptureMode(),
		Recording:        recording,
		RecordingSeconds: int(elapsed / time.Second),
	}
	if capture, ok := sess.Capture(); ok {
		summary := capture.Summary()
		resp.Capture = &summary
	}
	return resp
}
