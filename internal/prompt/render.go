// Package prompt renders conversations into prompts for chat, instruct and
// chat-instruct modes.
package prompt

import (
	"bytes"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

const (
	chatTurnTemplate     = "<|user|>: <|user-message|>\n<|bot|>: <|bot-message|>\n"
	instructTurnTemplate = "<|user|>\n<|user-message|>\n<|bot|>\n<|bot-message|>\n"
	defaultChatInstruct  = `Continue the chat dialogue below. Write a single reply for the character "<|character|>".

<|prompt|>`
	// placeholder users put in the first turn to start a chat with a greeting.
	beginVisibleChat = "<|BEGIN-VISIBLE-CHAT|>"
)

// Renderer implements engine.PromptRenderer.
type Renderer struct {
	templates *templateStore
}

// New returns a Renderer that reads instruction templates from dir. An empty
// dir disables named templates.
func New(dir string) *Renderer {
	return &Renderer{templates: &templateStore{dir: dir}}
}

// turnParts are the pieces of a turn template with speaker names substituted.
type turnParts struct {
	userTurn        string // "<user prefix><|user-message|><suffix>"
	botTurn         string // "<bot prefix><|bot-message|><suffix>"
	userTurnPrefix  string // up to the user message
	botTurnPrefix   string // up to the bot message
	userTurnClosing string // between the user message and the bot prefix
	botTurnClosing  string // after the bot message
}

func splitTurn(tmpl, user, bot string) turnParts {
	userPart, botPart, found := strings.Cut(tmpl, "<|bot|>")
	if !found {
		botPart = "<|bot-message|>"
	} else {
		botPart = "<|bot|>" + botPart
	}
	r := strings.NewReplacer("<|user|>", strings.TrimSpace(user), "<|bot|>", strings.TrimSpace(bot))
	p := turnParts{
		userTurn: r.Replace(userPart),
		botTurn:  r.Replace(botPart),
	}
	p.userTurnPrefix, p.userTurnClosing, _ = strings.Cut(p.userTurn, "<|user-message|>")
	p.botTurnPrefix, p.botTurnClosing, _ = strings.Cut(p.botTurn, "<|bot-message|>")
	return p
}

// format is the resolved layout for one rendering.
type format struct {
	parts   turnParts
	context string
}

func (r *Renderer) instructFormat(c types.ChatParams) (format, error) {
	var t Instruction
	if c.InstructionTemplate != nil {
		var err error
		if t, err = r.templates.get(*c.InstructionTemplate); err != nil {
			if IsInstructionNotFound(err) {
				return format{}, engine.ErrInvalidRequest("%v", err)
			}
			return format{}, err
		}
	}
	user := firstNonEmpty(c.Name1Instruct, t.User)
	bot := firstNonEmpty(c.Name2Instruct, t.Bot)
	turn := firstNonEmpty(c.TurnTemplate, t.TurnTemplate, instructTurnTemplate)
	turn = strings.ReplaceAll(turn, `\n`, "\n")
	ctx := firstNonEmpty(c.ContextInstruct, t.Context)
	return format{parts: splitTurn(turn, user, bot), context: ctx}, nil
}

func (r *Renderer) chatFormat(c types.ChatParams) (format, error) {
	ctx, err := renderContext(c.Context, c)
	if err != nil {
		return format{}, err
	}
	if s := strings.TrimSpace(ctx); s != "" {
		ctx = s + "\n"
	}
	return format{parts: splitTurn(chatTurnTemplate, c.Name1, c.Name2), context: ctx}, nil
}

// Render implements engine.PromptRenderer.
func (r *Renderer) Render(h types.History, opts engine.RenderOptions) (string, error) {
	c := opts.ChatParams
	switch c.Mode {
	case types.ModeInstruct:
		f, err := r.instructFormat(c)
		if err != nil {
			return "", err
		}
		return f.render(h, opts.UserInput, opts.Continue, true), nil
	case types.ModeChatInstruct:
		chat, err := r.chatFormat(c)
		if err != nil {
			return "", err
		}
		inner := chat.render(h, opts.UserInput, opts.Continue, false)
		inst, err := r.instructFormat(c)
		if err != nil {
			return "", err
		}
		cmd := firstNonEmpty(c.ChatInstructCommand, defaultChatInstruct)
		cmd = strings.NewReplacer("<|character|>", c.Name2, "<|prompt|>", inner).Replace(cmd)
		var b strings.Builder
		b.WriteString(inst.context)
		b.WriteString(strings.Replace(inst.parts.userTurn, "<|user-message|>", cmd, 1))
		b.WriteString(inst.parts.botTurnPrefix)
		if !opts.Continue {
			b.WriteString(strings.TrimRight(chat.parts.botTurnPrefix, " "))
		} else if h.Len() > 0 {
			b.WriteString(chat.parts.botTurnPrefix + strings.TrimSpace(h.Internal[h.Len()-1].Bot()))
		}
		return b.String(), nil
	default:
		f, err := r.chatFormat(c)
		if err != nil {
			return "", err
		}
		return f.render(h, opts.UserInput, opts.Continue, true), nil
	}
}

// render lays out context, past turns and the open bot turn. In continue
// mode the prompt ends right after the last bot message so the model extends
// it; otherwise it ends with the bot prefix of a new turn.
func (f format) render(h types.History, userInput string, cont bool, botPrefix bool) string {
	var b strings.Builder
	b.WriteString(f.context)
	last := h.Len() - 1
	for i, t := range h.Internal {
		if u := t.User(); u != "" && u != beginVisibleChat {
			b.WriteString(strings.NewReplacer(
				"<|user-message|>", strings.TrimSpace(u),
				"<|round|>", strconv.Itoa(i),
			).Replace(f.parts.userTurn))
		}
		if cont && i == last {
			b.WriteString(f.parts.botTurnPrefix + strings.TrimSpace(t.Bot()))
			continue
		}
		b.WriteString(strings.Replace(f.parts.botTurn, "<|bot-message|>", strings.TrimSpace(t.Bot()), 1))
	}
	if cont {
		return b.String()
	}
	if userInput != "" {
		b.WriteString(strings.NewReplacer(
			"<|user-message|>", strings.TrimSpace(userInput),
			"<|round|>", strconv.Itoa(h.Len()),
		).Replace(f.parts.userTurn))
	}
	if botPrefix {
		b.WriteString(strings.TrimRight(f.parts.botTurnPrefix, " "))
	}
	return b.String()
}

// StopStrings implements engine.PromptRenderer.
func (r *Renderer) StopStrings(opts engine.RenderOptions) []string {
	c := opts.ChatParams
	stops := []string{"\n" + c.Name1 + ":", "\n" + c.Name2 + ":"}
	if c.Mode == types.ModeChat {
		return stops
	}
	f, err := r.instructFormat(c)
	if err != nil {
		return stops
	}
	var extra []string
	if s := strings.TrimSpace(f.parts.botTurnClosing + f.parts.userTurnPrefix); s != "" {
		extra = append(extra, f.parts.botTurnClosing+f.parts.userTurnPrefix)
	}
	if s := strings.TrimSpace(f.parts.userTurnClosing); s != "" && f.parts.botTurnPrefix != "" {
		extra = append(extra, f.parts.userTurnClosing)
	}
	if c.Mode == types.ModeInstruct {
		return extra
	}
	return append(extra, stops...)
}

// renderContext expands a context string as a text/template with sprig
// helpers plus {{user}} and {{char}}. Text that does not parse is used as is.
func renderContext(text string, c types.ChatParams) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	funcs := sprig.TxtFuncMap()
	funcs["user"] = func() string { return c.Name1 }
	funcs["char"] = func() string { return c.Name2 }
	t, err := template.New("context").Funcs(funcs).Parse(text)
	if err != nil {
		return text, nil
	}
	var buf bytes.Buffer
	data := map[string]any{
		"Name1": c.Name1,
		"Name2": c.Name2,
		"Mode":  c.Mode,
		"Now":   time.Now(),
	}
	if err := t.Execute(&buf, data); err != nil {
		return "", engine.ErrInvalidRequest("context template: %v", err)
	}
	return buf.String(), nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
