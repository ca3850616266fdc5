package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/toolbridge-go/proxy-api/internal/logging"
	"github.com/toolbridge-go/proxy-api/internal/protocol"
)

// Recover converts panics into a 500 server_error response. If the response
// has already started (mid-stream), the connection is simply dropped.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				return
			}
			logging.Error("panic serving request", fmt.Errorf("%v", rec), "path", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(protocol.ErrorResponse{
				Error: protocol.ErrorDetail{
					Message: "Internal server error",
					Type:    protocol.ErrTypeServer,
				},
			})
		}()
		next.ServeHTTP(w, r)
	})
}
