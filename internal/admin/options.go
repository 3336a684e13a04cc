package admin

import "time"

// Options configures the introspection HTTP server.
type Options struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	FlushTimeout    time.Duration // how long /flush blocks waiting for the backend
	ShutdownTimeout time.Duration
}

// DefaultOptions binds to localhost only; operators wanting remote
// access must opt in explicitly by setting Addr.
func DefaultOptions() Options {
	return Options{
		Addr:            "127.0.0.1:7730",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		FlushTimeout:    5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}
