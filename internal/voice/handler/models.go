package handler

import (
	"voiceid/internal/voice/models"
)

type connectWalletRequest struct {
	Address string `json:"address"`
}

type walletResponse struct {
	Connected bool   `json:"connected"`
	Signer    string `json:"signer,omitempty"`
}

type captureModeRequest struct {
	Mode models.CaptureSource `json:"mode"`
}

type captureResponse struct {
	Mode             models.CaptureSource   `json:"mode"`
	Recording        bool                   `json:"recording"`
	RecordingSeconds int                    `json:"recording_seconds,omitempty"`
	Capture          *models.CaptureSummary `json:"capture,omitempty"`
}

type startRecordingResponse struct {
	Started bool `json:"started"`
}

type purgeResponse struct {
	Purged bool `json:"purged"`
}

type releaseResponse struct {
	Cancelled    bool            `json:"cancelled"`
	Registration models.RunState `json:"registration"`
}

type credentialsResponse struct {
	Credentials []models.VoiceCredential `json:"credentials"`
}

type verdictResponse struct {
	Label string `json:"label"`
	models.DetectionVerdict
}

type noticesResponse struct {
	Notices []models.Notice `json:"notices"`
}

type sessionResponse struct {
	UserID       string           `json:"user_id"`
	Wallet       walletResponse   `json:"wallet"`
	Capture      captureResponse  `json:"capture"`
	Registration models.RunState  `json:"registration"`
	LastVerdict  *verdictResponse `json:"last_verdict,omitempty"`
}

func toVerdictResponse(v models.DetectionVerdict) *verdictResponse {
	return &verdictResponse{Label: v.Label(), DetectionVerdict: v}
}
