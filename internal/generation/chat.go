package generation

import (
	"html"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

// chatTurn describes how generated text is folded into a history.
type chatTurn struct {
	// base is the history the reply is added to.
	base types.History
	// userText and visibleText start a new turn; unused when extending.
	userText    string
	visibleText string
	// extend appends the reply to the last bot message instead of starting a turn.
	extend bool
	// prevInternal and prevVisible are the bot texts being extended.
	prevInternal string
	prevVisible  string
}

// planChat works out the prompt inputs and the history layout for a chat
// request. ok is false when there is nothing to generate, in which case the
// original history is returned untouched.
func planChat(req Request) (turn chatTurn, opts engine.RenderOptions, ok bool, err error) {
	h := req.Chat.History.Copy()
	opts = engine.RenderOptions{ChatParams: req.Chat}
	switch {
	case req.Regenerate:
		if h.Len() == 0 {
			return turn, opts, false, engine.ErrInvalidRequest("regenerate needs a non-empty history")
		}
		last := h.Len() - 1
		turn.userText = h.Internal[last].User()
		turn.visibleText = h.Visible[last].User()
		h.Internal = h.Internal[:last]
		h.Visible = h.Visible[:last]
		turn.base = h
		opts.UserInput = turn.userText
	case req.Continue:
		if h.Len() == 0 {
			return turn, opts, false, engine.ErrInvalidRequest("continue needs a non-empty history")
		}
		last := h.Len() - 1
		turn.extend = true
		turn.prevInternal = h.Internal[last].Bot()
		turn.prevVisible = h.Visible[last].Bot()
		turn.base = h
		opts.Continue = true
	default:
		if req.UserInput == "" {
			return turn, opts, false, nil
		}
		turn.userText = req.UserInput
		turn.visibleText = html.EscapeString(req.UserInput)
		turn.base = h
		opts.UserInput = req.UserInput
	}
	opts.ChatParams.History = turn.base
	return turn, opts, true, nil
}

// apply returns the history after reply has been generated so far.
func (t chatTurn) apply(reply string) types.History {
	out := t.base.Copy()
	if t.extend {
		last := out.Len() - 1
		out.Internal[last] = types.Turn{out.Internal[last].User(), t.prevInternal + reply}
		out.Visible[last] = types.Turn{out.Visible[last].User(), t.prevVisible + reply}
		return out
	}
	out.Internal = append(out.Internal, types.Turn{t.userText, reply})
	out.Visible = append(out.Visible, types.Turn{t.visibleText, reply})
	return out
}

// chatProducer maps growing reply text to a growing history.
func chatProducer(src engine.Producer[string], turn chatTurn) engine.Producer[types.History] {
	return engine.MapProducer(src, turn.apply)
}
