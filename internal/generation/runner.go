package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"modelapi/internal/engine"
	"modelapi/internal/stopsignal"
	"modelapi/pkg/types"
)

// Kind selects what a Request produces.
type Kind int

const (
	KindCompletion Kind = iota
	KindChat
)

func (k Kind) String() string {
	if k == KindChat {
		return "chat"
	}
	return "completion"
}

// Request is a validated generation request. It is not modified once built.
type Request struct {
	Kind       Kind
	Prompt     string
	UserInput  string
	Regenerate bool
	Continue   bool
	Params     types.GenerateParams
	Chat       types.ChatParams
}

// Config wires a Runner.
type Config struct {
	Signal   *stopsignal.Signal
	Renderer engine.PromptRenderer
	// Timeout bounds a single generation; 0 disables it.
	Timeout time.Duration
	Logger  *zerolog.Logger
}

// Runner executes generation requests against a model and blocks until the
// result is complete or the stop signal fires.
type Runner struct {
	signal   *stopsignal.Signal
	renderer engine.PromptRenderer
	timeout  time.Duration
	log      zerolog.Logger
}

// New returns a Runner.
func New(cfg Config) *Runner {
	r := &Runner{
		signal:   cfg.Signal,
		renderer: cfg.Renderer,
		timeout:  cfg.Timeout,
		log:      zerolog.Nop(),
	}
	if r.signal == nil {
		r.signal = stopsignal.New()
	}
	if cfg.Logger != nil {
		r.log = *cfg.Logger
	}
	return r
}

// Signal returns the stop signal the runner observes.
func (r *Runner) Signal() *stopsignal.Signal { return r.signal }

func (r *Runner) begin(ctx context.Context) (context.Context, func()) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		gctx, release := r.signal.Begin(ctx)
		return gctx, func() { release(); cancel() }
	}
	return r.signal.Begin(ctx)
}

// Complete generates a completion of req.Prompt. When the model produces
// nothing the prompt is echoed back.
func (r *Runner) Complete(ctx context.Context, gen engine.Generator, req Request) (string, error) {
	id := uuid.NewString()
	start := time.Now()
	ctx, release := r.begin(ctx)
	defer release()

	r.log.Debug().Str("generation_id", id).Str("kind", "completion").Int("max_new_tokens", req.Params.MaxNewTokens).Msg("generation event=start")
	p, err := gen.Generate(ctx, req.Prompt, req.Params)
	if err != nil {
		if stopsignal.Stopped(ctx) {
			r.finish(id, KindCompletion, start, outcomeStopped, nil)
			return req.Prompt, nil
		}
		r.finish(id, KindCompletion, start, outcomeError, err)
		return "", err
	}
	out, err := Drain(ctx, TrimStops(p, req.Params.StoppingStrings), req.Prompt)
	r.finish(id, KindCompletion, start, outcomeOf(ctx, err), err)
	return out, err
}

// Chat generates the next bot reply and returns the updated history. With an
// empty user input and neither Regenerate nor Continue set, the history is
// returned unchanged.
func (r *Runner) Chat(ctx context.Context, gen engine.Generator, req Request) (types.History, error) {
	original := req.Chat.History.Copy()
	turn, opts, ok, err := planChat(req)
	if err != nil {
		return original, err
	}
	if !ok {
		return original, nil
	}
	if r.renderer == nil {
		return original, engine.ErrUnsupported("chat prompt rendering")
	}
	prompt, err := r.renderer.Render(turn.base, opts)
	if err != nil {
		return original, err
	}

	id := uuid.NewString()
	start := time.Now()
	ctx, release := r.begin(ctx)
	defer release()

	r.log.Debug().Str("generation_id", id).Str("kind", "chat").Str("mode", req.Chat.Mode).Bool("regenerate", req.Regenerate).Bool("continue", req.Continue).Msg("generation event=start")
	p, err := gen.Generate(ctx, prompt, req.Params)
	if err != nil {
		if stopsignal.Stopped(ctx) {
			r.finish(id, KindChat, start, outcomeStopped, nil)
			return original, nil
		}
		r.finish(id, KindChat, start, outcomeError, err)
		return original, err
	}
	stops := append(append([]string(nil), req.Params.StoppingStrings...), r.renderer.StopStrings(opts)...)
	out, err := Drain(ctx, chatProducer(TrimStops(p, stops), turn), original)
	r.finish(id, KindChat, start, outcomeOf(ctx, err), err)
	return out, err
}

const (
	outcomeOK      = "ok"
	outcomeStopped = "stopped"
	outcomeError   = "error"
)

func outcomeOf(ctx context.Context, err error) string {
	switch {
	case err != nil:
		return outcomeError
	case stopsignal.Stopped(ctx):
		return outcomeStopped
	default:
		return outcomeOK
	}
}

func (r *Runner) finish(id string, kind Kind, start time.Time, outcome string, err error) {
	dur := time.Since(start)
	generationsTotal.WithLabelValues(kind.String(), outcome).Inc()
	generationDuration.WithLabelValues(kind.String()).Observe(dur.Seconds())
	ev := r.log.Debug()
	if err != nil {
		ev = r.log.Warn().Err(err)
	}
	ev.Str("generation_id", id).Str("kind", kind.String()).Str("outcome", outcome).Dur("took", dur).Msg("generation event=done")
}
