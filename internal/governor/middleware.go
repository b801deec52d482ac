package governor

import (
	"net/http"

	"github.com/fleetops/devicecontrol/internal/pkg/response"
)

// backpressureRetryAfterSeconds is the Retry-After hint sent with a shed
// request.
const backpressureRetryAfterSeconds = 2

// Admit returns a middleware that sheds write-path requests with a 503 when
// the pool governor reports backpressure, before the request ever attempts
// to acquire a database connection.
func (g *PoolGovernor) Admit() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Overloaded() {
				response.Backpressure(w, backpressureRetryAfterSeconds)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
