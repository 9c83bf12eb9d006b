// Package device labels each request with the client's device so captures
// record what produced them.
package device

import (
	"context"
	"net/http"

	platformdevice "voiceid/pkg/platform/device"
)

type contextKeyDeviceLabel struct{}

// Middleware derives a readable label from the User-Agent header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := platformdevice.ParseUserAgent(r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(WithLabel(r.Context(), label)))
	})
}

// GetLabel retrieves the device label from the context.
func GetLabel(ctx context.Context) string {
	if label, ok := ctx.Value(contextKeyDeviceLabel{}).(string); ok {
		return label
	}
	return ""
}

// WithLabel injects a device label into a context.
// Useful for handler tests that don't run the full HTTP middleware chain.
func WithLabel(ctx context.Context, label string) context.Context {
	return context.WithValue(ctx, contextKeyDeviceLabel{}, label)
}
