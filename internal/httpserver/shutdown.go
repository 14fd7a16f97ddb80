package httpserver

import (
	"context"
	"time"
)

// DefaultShutdownTimeout bounds how long Stop waits for in-flight requests.
const DefaultShutdownTimeout = 10 * time.Second

// Stop gracefully terminates the server, waiting up to timeout for in-flight
// requests to drain. A non-positive timeout falls back to the default.
func Stop(srv *Server, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return srv.Shutdown(ctx)
}
