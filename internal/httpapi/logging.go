package httpapi

import (
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is an optional structured logger. If unset, falls back to log.Printf.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug", "1":
		return LevelDebug
	default:
		return LevelInfo
	}
}

// defaultLogLevel is read once from MODELAPI_REQUEST_LOG.
var defaultLogLevel = parseLevel(os.Getenv("MODELAPI_REQUEST_LOG"))

// SetDefaultRequestLogLevel overrides the level used when a request carries no override.
func SetDefaultRequestLogLevel(s string) { defaultLogLevel = parseLevel(s) }

// requestLogLevel honours ?log= and X-Log-Level before the process default.
func requestLogLevel(r *http.Request) LogLevel {
	if v := r.URL.Query().Get("log"); v != "" {
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return defaultLogLevel
}

// logStart records the beginning of a compute request.
func logStart(r *http.Request, lvl LogLevel, op string) {
	if lvl < LevelDebug {
		return
	}
	if zlog != nil {
		z := zlog.Debug().Str("op", op).Str("path", r.URL.Path)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("request event=start")
		return
	}
	log.Printf("request event=start op=%s path=%s", op, r.URL.Path)
}

// logEnd records the outcome. Errors log at LevelError, successes at LevelInfo.
func logEnd(r *http.Request, lvl LogLevel, op string, status int, start time.Time, err error) {
	if lvl == LevelOff || (err == nil && lvl < LevelInfo) {
		return
	}
	dur := time.Since(start)
	if zlog != nil {
		z := zlog.Info()
		if err != nil {
			z = zlog.Error().Err(err)
		}
		z = z.Str("op", op).Int("status", status).Dur("dur", dur)
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			z = z.Str("request_id", rid)
		}
		z.Msg("request event=end")
		return
	}
	if err != nil {
		log.Printf("request event=end op=%s status=%d dur=%s err=%v", op, status, dur, err)
		return
	}
	log.Printf("request event=end op=%s status=%d dur=%s", op, status, dur)
}
