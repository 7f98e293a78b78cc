package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// GenerateParams are the sampling and decoding options shared by every
// generation endpoint. Start from DefaultGenerateParams and decode the request
// body on top of it so omitted fields keep their defaults.
type GenerateParams struct {
	// Maximum number of new tokens to generate.
	// example: 200
	MaxNewTokens int `json:"max_new_tokens" example:"200"`
	// Legacy alias of max_new_tokens.
	MaxLength *int `json:"max_length,omitempty"`
	// Sampling temperature (higher = more random).
	// example: 0.5
	Temperature float64 `json:"temperature" example:"0.5"`
	// Nucleus sampling probability.
	// example: 1
	TopP float64 `json:"top_p" example:"1"`
	// Top-K sampling; 0 disables it.
	// example: 0
	TopK int `json:"top_k" example:"0"`
	// Typical sampling mass.
	// example: 1
	TypicalP float64 `json:"typical_p" example:"1"`
	// Legacy alias of typical_p.
	Typical *float64 `json:"typical,omitempty"`
	// example: 1.1
	RepetitionPenalty float64 `json:"repetition_penalty" example:"1.1"`
	// Legacy alias of repetition_penalty.
	RepPen           *float64 `json:"rep_pen,omitempty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	// Random seed; -1 lets the backend choose.
	// example: -1
	Seed              int64 `json:"seed" example:"-1"`
	DoSample          bool  `json:"do_sample"`
	AddBOSToken       bool  `json:"add_bos_token"`
	BanEOSToken       bool  `json:"ban_eos_token"`
	SkipSpecialTokens bool  `json:"skip_special_tokens"`
	// Prompt budget in tokens.
	// example: 2048
	TruncationLength int `json:"truncation_length" example:"2048"`
	// Legacy alias of truncation_length.
	MaxContextLength *int `json:"max_context_length,omitempty"`
	// Generation stops when any of these strings is produced.
	// example: ["\n###"]
	StoppingStrings []string `json:"stopping_strings,omitempty"`
	// Comma separated quoted strings, e.g. "\"\\n\", \"###\"".
	CustomStoppingStrings string `json:"custom_stopping_strings,omitempty"`
}

// DefaultGenerateParams returns the defaults of the blocking API.
func DefaultGenerateParams() GenerateParams {
	return GenerateParams{
		MaxNewTokens:      200,
		Temperature:       0.5,
		TopP:              1,
		TopK:              0,
		TypicalP:          1,
		RepetitionPenalty: 1.1,
		Seed:              -1,
		DoSample:          true,
		AddBOSToken:       true,
		SkipSpecialTokens: true,
		TruncationLength:  2048,
	}
}

// aliasOf maps each legacy key to its canonical key.
var aliasOf = map[string]string{
	"max_length":         "max_new_tokens",
	"typical":            "typical_p",
	"rep_pen":            "repetition_penalty",
	"max_context_length": "truncation_length",
}

// dropShadowedAliases forgets every legacy alias whose canonical key is also
// present in body, so the canonical value wins in Normalize.
func (p *GenerateParams) dropShadowedAliases(body []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(body, &keys); err != nil {
		return err
	}
	for alias, canonical := range aliasOf {
		if _, ok := keys[canonical]; !ok {
			continue
		}
		switch alias {
		case "max_length":
			p.MaxLength = nil
		case "typical":
			p.Typical = nil
		case "rep_pen":
			p.RepPen = nil
		case "max_context_length":
			p.MaxContextLength = nil
		}
	}
	return nil
}

// Normalize folds legacy aliases into their canonical fields and validates ranges.
func (p *GenerateParams) Normalize() error {
	if p.MaxLength != nil {
		p.MaxNewTokens = *p.MaxLength
		p.MaxLength = nil
	}
	if p.Typical != nil {
		p.TypicalP = *p.Typical
		p.Typical = nil
	}
	if p.RepPen != nil {
		p.RepetitionPenalty = *p.RepPen
		p.RepPen = nil
	}
	if p.MaxContextLength != nil {
		p.TruncationLength = *p.MaxContextLength
		p.MaxContextLength = nil
	}
	if s := strings.TrimSpace(p.CustomStoppingStrings); s != "" {
		var extra []string
		if err := json.Unmarshal([]byte("["+s+"]"), &extra); err != nil {
			return fmt.Errorf("custom_stopping_strings: %w", err)
		}
		p.StoppingStrings = append(p.StoppingStrings, extra...)
		p.CustomStoppingStrings = ""
	}
	switch {
	case p.MaxNewTokens < 0:
		return fmt.Errorf("max_new_tokens must be >= 0")
	case p.Temperature < 0:
		return fmt.Errorf("temperature must be >= 0")
	case p.TopP < 0 || p.TopP > 1:
		return fmt.Errorf("top_p must be within [0, 1]")
	case p.TopK < 0:
		return fmt.Errorf("top_k must be >= 0")
	case p.TruncationLength < 0:
		return fmt.Errorf("truncation_length must be >= 0")
	}
	return nil
}

// Chat modes.
const (
	ModeChat         = "chat"
	ModeInstruct     = "instruct"
	ModeChatInstruct = "chat-instruct"
)

// ChatParams describe how a conversation is turned into a prompt.
type ChatParams struct {
	// One of chat, instruct, chat-instruct.
	// example: chat
	Mode string `json:"mode" example:"chat"`
	// Name of the user in chat mode.
	// example: You
	Name1 string `json:"name1" example:"You"`
	// Name of the bot in chat mode.
	// example: Assistant
	Name2   string `json:"name2" example:"Assistant"`
	Context string `json:"context"`
	// Instruction template name; defaults to the loaded model's setting.
	InstructionTemplate *string `json:"instruction_template,omitempty"`
	// Overrides the turn layout of the instruction template.
	TurnTemplate        string  `json:"turn_template,omitempty"`
	Name1Instruct       string  `json:"name1_instruct,omitempty"`
	Name2Instruct       string  `json:"name2_instruct,omitempty"`
	ContextInstruct     string  `json:"context_instruct,omitempty"`
	ChatInstructCommand string  `json:"chat-instruct_command,omitempty"`
	History             History `json:"history"`
}

// DefaultChatParams returns the defaults applied before decoding a chat body.
func DefaultChatParams() ChatParams {
	return ChatParams{
		Mode:    ModeChat,
		Name1:   "You",
		Name2:   "Assistant",
		History: History{Internal: []Turn{}, Visible: []Turn{}},
	}
}

// Validate checks the mode and the history invariant.
func (c *ChatParams) Validate() error {
	switch c.Mode {
	case ModeChat, ModeInstruct, ModeChatInstruct:
	default:
		return fmt.Errorf("unknown mode %q", c.Mode)
	}
	if c.History.Internal == nil {
		c.History.Internal = []Turn{}
	}
	if c.History.Visible == nil {
		c.History.Visible = []Turn{}
	}
	if !c.History.Consistent() {
		return fmt.Errorf("history: internal has %d turns, visible has %d", len(c.History.Internal), len(c.History.Visible))
	}
	return nil
}

// GenerateRequest is the body of POST /generate.
type GenerateRequest struct {
	// Raw prompt to complete.
	// example: Once upon a time
	Prompt *string `json:"prompt" example:"Once upon a time"`
	GenerateParams
}

// UnmarshalJSON decodes over the current values; canonical keys beat aliases.
func (r *GenerateRequest) UnmarshalJSON(b []byte) error {
	type plain GenerateRequest
	if err := json.Unmarshal(b, (*plain)(r)); err != nil {
		return err
	}
	return r.GenerateParams.dropShadowedAliases(b)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	// example: Hello!
	UserInput  *string `json:"user_input" example:"Hello!"`
	Regenerate bool    `json:"regenerate"`
	Continue   bool    `json:"_continue"`
	GenerateParams
	ChatParams
}

// UnmarshalJSON decodes over the current values; canonical keys beat aliases.
func (r *ChatRequest) UnmarshalJSON(b []byte) error {
	type plain ChatRequest
	if err := json.Unmarshal(b, (*plain)(r)); err != nil {
		return err
	}
	return r.GenerateParams.dropShadowedAliases(b)
}

// ChatEvalRequest is the body of POST /chateval and /chateval_o.
type ChatEvalRequest struct {
	// Candidate continuations of the last bot reply.
	// example: ["!", "?"]
	Choices []string `json:"choices"`
	GenerateParams
	ChatParams
}

// UnmarshalJSON decodes over the current values; canonical keys beat aliases.
func (r *ChatEvalRequest) UnmarshalJSON(b []byte) error {
	type plain ChatEvalRequest
	if err := json.Unmarshal(b, (*plain)(r)); err != nil {
		return err
	}
	return r.GenerateParams.dropShadowedAliases(b)
}

// Model management actions.
const (
	ActionNone   = ""
	ActionLoad   = "load"
	ActionUnload = "unload"
	ActionList   = "list"
	ActionInfo   = "info"
)

// ModelRequest is the body of POST /model.
type ModelRequest struct {
	// One of load, unload, list, info; empty returns the current model name.
	// example: load
	Action string `json:"action" example:"load"`
	// example: llama-2-7b.Q4_K_M.gguf
	ModelName string `json:"model_name,omitempty" example:"llama-2-7b.Q4_K_M.gguf"`
	// Loader argument overrides applied before loading.
	Args map[string]any `json:"args,omitempty"`
}

// TokenCountRequest is the body of POST /token-count.
type TokenCountRequest struct {
	// example: hello
	Prompt *string `json:"prompt" example:"hello"`
}

// TextResult wraps a completion.
type TextResult struct {
	Text string `json:"text"`
}

// GenerateResponse is returned by POST /generate.
type GenerateResponse struct {
	Results []TextResult `json:"results"`
}

// HistoryResult wraps an updated conversation.
type HistoryResult struct {
	History History `json:"history"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Results []HistoryResult `json:"results"`
}

// ChatEvalResponse is returned by POST /chateval. Ret[0] scores the base history.
type ChatEvalResponse struct {
	Ret []ScoreResult `json:"ret"`
}

// StopResponse is returned by POST /stop-stream.
type StopResponse struct {
	// example: success
	Results string `json:"results" example:"success"`
}

// ModelResponse is returned by GET and POST /model; Result depends on the action.
type ModelResponse struct {
	Result any `json:"result"`
}

// TokenCount wraps a token count.
type TokenCount struct {
	// example: 2
	Tokens int `json:"tokens" example:"2"`
}

// TokenCountResponse is returned by POST /token-count.
type TokenCountResponse struct {
	Results []TokenCount `json:"results"`
}

// ModelInfo is the result of the load, unload and info actions.
type ModelInfo struct {
	// Name of the loaded model, null when none is loaded.
	ModelName *string `json:"model_name"`
	// Adapters attached to the loaded model.
	LoraNames []string `json:"lora_names"`
	// Settings snapshot (resolved per-model settings merged over defaults).
	Settings map[string]any `json:"shared.settings"`
	// Loader arguments snapshot.
	Args map[string]any `json:"shared.args"`
	// Lifecycle state: unloaded, loading, ready.
	// example: ready
	State string `json:"state" example:"ready"`
}

// ErrorBody describes a failure.
type ErrorBody struct {
	// example: invalid JSON body
	Message string `json:"message" example:"invalid JSON body"`
	// example: bad_request
	Type string `json:"type" example:"bad_request"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
