package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

type logformatter struct {
	logger zerolog.Logger
}

func (l *logformatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	req := map[string]any{}

	if reqID := middleware.GetReqID(r.Context()); reqID != "" {
		req["id"] = reqID
	}

	req["scheme"] = "http"
	if r.TLS != nil {
		req["scheme"] = "https"
	}

	req["proto"] = r.Proto
	req["method"] = r.Method
	req["remote"] = r.RemoteAddr
	req["agent"] = r.UserAgent()
	req["uri"] = r.RequestURI

	return &logentry{
		logger: l.logger.With().Fields(req).Logger(),
	}
}

type logentry struct {
	logger zerolog.Logger
	errors []map[string]any
}

func (e *logentry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra any) {
	res := map[string]any{}
	res["time"] = time.Now().UTC().Format(time.RFC1123)
	res["status"] = status
	res["bytes"] = bytes
	res["elapsed"] = float64(elapsed.Nanoseconds()) / 1000000.0

	logger := e.logger.With().Fields(map[string]any{"res": res}).Logger()

	if len(e.errors) > 0 {
		logger.Error().Fields(map[string]any{"errors": e.errors}).Msgf("request failed (%d)", status)
	} else {
		logger.Debug().Msgf("request complete (%d)", status)
	}
}

func (e *logentry) Panic(v any, stack []byte) {
	e.errors = append(e.errors, map[string]any{
		"message": v,
		"stack":   string(stack),
	})
}
