package testutil

import (
	"net/http"

	id "voiceid/pkg/domain"
	devicemw "voiceid/pkg/platform/middleware/device"
	"voiceid/pkg/requestcontext"
)

// WithUserID adds a user ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the userID is not a valid UUID, it will not be added to the context.
func WithUserID(req *http.Request, userID string) *http.Request {
	if parsedUserID, err := id.ParseUserID(userID); err == nil {
		return req.WithContext(requestcontext.WithUserID(req.Context(), parsedUserID))
	}
	return req
}

// WithDevice adds the label the device middleware would derive from the User-Agent.
func WithDevice(req *http.Request, label string) *http.Request {
	return req.WithContext(devicemw.WithLabel(req.Context(), label))
}
