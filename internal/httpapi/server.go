package httpapi

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelapi/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	Generate(ctx context.Context, req types.GenerateRequest) (string, error)
	Chat(ctx context.Context, req types.ChatRequest) (types.History, error)
	ChatEval(ctx context.Context, req types.ChatEvalRequest, sequential bool) ([]types.ScoreResult, error)
	Model(ctx context.Context, req types.ModelRequest) (any, error)
	CurrentModel() *string
	TokenCount(ctx context.Context, req types.TokenCountRequest) (int, error)
	Stop()
	Ready() bool
	State() string
	LastError() string
}

// NewMux builds the router. API routes are served both at the root and
// under /api/v1.
func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(noCache)
	if len(corsAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}))
	} else {
		r.Use(permissiveCORS)
	}
	r.Use(preflight)

	notFound := func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, errTypeNotFound, "not found: "+r.Method+" "+r.URL.Path)
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	h := &handlers{svc: svc, gate: newGate(maxConcurrent, admissionWait)}
	h.register(r)
	r.Route("/api/v1", func(r chi.Router) {
		r.NotFound(notFound)
		r.MethodNotAllowed(notFound)
		h.register(r)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		body := svc.State()
		if msg := svc.LastError(); msg != "" {
			body += ": " + msg
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(body))
	})
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)
	return r
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		next.ServeHTTP(w, r)
	})
}

func permissiveCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "*")
		h.Set("Access-Control-Allow-Headers", "*")
		next.ServeHTTP(w, r)
	})
}

// preflight answers OPTIONS on any path with an empty 200.
func preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type handlers struct {
	svc  Service
	gate *gate
}

func (h *handlers) register(r chi.Router) {
	r.Get("/model", h.currentModel)
	r.Post("/model", h.model)
	r.Post("/generate", h.generate)
	r.Post("/chat", h.chat)
	r.Post("/chateval", h.chatEval(false))
	r.Post("/chateval_o", h.chatEval(true))
	r.Post("/stop-stream", h.stop)
	r.Post("/token-count", h.tokenCount)
}

// decodeBody decodes the JSON body into v, which already holds defaults.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		msg := "invalid request body"
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			msg = "request body too large"
		}
		writeJSONError(w, http.StatusBadRequest, errTypeBadRequest, msg)
		return false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeJSONError(w, http.StatusBadRequest, errTypeBadRequest, "empty request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeJSONError(w, http.StatusBadRequest, errTypeBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// compute runs fn behind the admission gate on a context that also ends at
// shutdown, then writes either the result or the mapped error. Nothing is
// written when the client went away.
func (h *handlers) compute(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context) (any, error)) {
	lvl := requestLogLevel(r)
	start := time.Now()
	logStart(r, lvl, op)
	ctx, cancel := joinContexts(r.Context(), serverBaseCtx)
	defer cancel()

	release, err := h.gate.acquire(ctx)
	if err == nil {
		defer release()
		var out any
		out, err = fn(ctx)
		if err == nil {
			writeJSON(w, http.StatusOK, out)
			logEnd(r, lvl, op, http.StatusOK, start, nil)
			return
		}
	}
	if clientGone(r.Context()) {
		logEnd(r, lvl, op, 499, start, err)
		return
	}
	if IsTooBusy(err) {
		IncrementBackpressure(op)
	}
	logEnd(r, lvl, op, writeServiceError(w, err), start, err)
}

// currentModel godoc
// @Summary      Current model
// @Description  Name of the loaded model, null when none is loaded.
// @Tags         model
// @Produce      json
// @Success      200  {object}  types.ModelResponse
// @Router       /model [get]
func (h *handlers) currentModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelResponse{Result: h.svc.CurrentModel()})
}

// model runs a lifecycle action. It bypasses the admission gate so that a
// saturated server can still be reconfigured.
//
// @Summary      Model lifecycle
// @Description  load, unload, list or info; an empty action returns the current model name.
// @Tags         model
// @Accept       json
// @Produce      json
// @Param        body  body      types.ModelRequest  true  "Action"
// @Success      200   {object}  types.ModelResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      500   {object}  types.ErrorResponse
// @Router       /model [post]
func (h *handlers) model(w http.ResponseWriter, r *http.Request) {
	var req types.ModelRequest
	if !decodeBody(w, r, &req) {
		return
	}
	lvl := requestLogLevel(r)
	start := time.Now()
	res, err := h.svc.Model(r.Context(), req)
	if err != nil {
		logEnd(r, lvl, "model."+req.Action, writeServiceError(w, err), start, err)
		return
	}
	writeJSON(w, http.StatusOK, types.ModelResponse{Result: res})
	logEnd(r, lvl, "model."+req.Action, http.StatusOK, start, nil)
}

// generate godoc
// @Summary      Complete a prompt
// @Tags         generation
// @Accept       json
// @Produce      json
// @Param        body  body      types.GenerateRequest  true  "Prompt and sampling parameters"
// @Success      200   {object}  types.GenerateResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /generate [post]
func (h *handlers) generate(w http.ResponseWriter, r *http.Request) {
	req := types.GenerateRequest{GenerateParams: types.DefaultGenerateParams()}
	if !decodeBody(w, r, &req) {
		return
	}
	h.compute(w, r, "generate", func(ctx context.Context) (any, error) {
		text, err := h.svc.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		return types.GenerateResponse{Results: []types.TextResult{{Text: text}}}, nil
	})
}

// chat godoc
// @Summary      Run one chat turn
// @Description  Appends a turn, or regenerates or continues the last reply.
// @Tags         generation
// @Accept       json
// @Produce      json
// @Param        body  body      types.ChatRequest  true  "User input, history and parameters"
// @Success      200   {object}  types.ChatResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      429   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /chat [post]
func (h *handlers) chat(w http.ResponseWriter, r *http.Request) {
	req := types.ChatRequest{GenerateParams: types.DefaultGenerateParams(), ChatParams: types.DefaultChatParams()}
	if !decodeBody(w, r, &req) {
		return
	}
	h.compute(w, r, "chat", func(ctx context.Context) (any, error) {
		hist, err := h.svc.Chat(ctx, req)
		if err != nil {
			return nil, err
		}
		return types.ChatResponse{Results: []types.HistoryResult{{History: hist}}}, nil
	})
}

// chatEval godoc
// @Summary      Score candidate continuations
// @Description  ret[0] scores the base history, ret[i] the history extended by choices[i-1]. chateval_o scores one prompt at a time.
// @Tags         scoring
// @Accept       json
// @Produce      json
// @Param        body  body      types.ChatEvalRequest  true  "History and choices"
// @Success      200   {object}  types.ChatEvalResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      500   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /chateval [post]
// @Router       /chateval_o [post]
func (h *handlers) chatEval(sequential bool) http.HandlerFunc {
	op := "chateval"
	if sequential {
		op = "chateval_o"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		req := types.ChatEvalRequest{GenerateParams: types.DefaultGenerateParams(), ChatParams: types.DefaultChatParams()}
		if !decodeBody(w, r, &req) {
			return
		}
		h.compute(w, r, op, func(ctx context.Context) (any, error) {
			ret, err := h.svc.ChatEval(ctx, req, sequential)
			if err != nil {
				return nil, err
			}
			return types.ChatEvalResponse{Ret: ret}, nil
		})
	}
}

// tokenCount godoc
// @Summary      Count prompt tokens
// @Tags         generation
// @Accept       json
// @Produce      json
// @Param        body  body      types.TokenCountRequest  true  "Prompt"
// @Success      200   {object}  types.TokenCountResponse
// @Failure      400   {object}  types.ErrorResponse
// @Failure      503   {object}  types.ErrorResponse
// @Router       /token-count [post]
func (h *handlers) tokenCount(w http.ResponseWriter, r *http.Request) {
	var req types.TokenCountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.compute(w, r, "token-count", func(ctx context.Context) (any, error) {
		n, err := h.svc.TokenCount(ctx, req)
		if err != nil {
			return nil, err
		}
		return types.TokenCountResponse{Results: []types.TokenCount{{Tokens: n}}}, nil
	})
}

// stop ignores the body and always succeeds.
//
// @Summary      Stop generation
// @Tags         generation
// @Produce      json
// @Success      200  {object}  types.StopResponse
// @Router       /stop-stream [post]
func (h *handlers) stop(w http.ResponseWriter, r *http.Request) {
	h.svc.Stop()
	writeJSON(w, http.StatusOK, types.StopResponse{Results: "success"})
}
