package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"modelapi/internal/engine"
	"modelapi/pkg/types"
)

func hist(turns ...types.Turn) types.History {
	return types.History{Internal: turns, Visible: turns}
}

func chatOpts(context string) engine.RenderOptions {
	c := types.DefaultChatParams()
	c.Context = context
	return engine.RenderOptions{ChatParams: c}
}

func TestRenderChatNewTurn(t *testing.T) {
	r := New("")
	opts := chatOpts("Ctx")
	opts.UserInput = "how are you"
	got, err := r.Render(hist(types.Turn{"hi", "hello"}), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Ctx\nYou: hi\nAssistant: hello\nYou: how are you\nAssistant:"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
}

func TestRenderChatContinueEndsAfterBotMessage(t *testing.T) {
	r := New("")
	opts := chatOpts("Ctx")
	opts.Continue = true
	got, err := r.Render(hist(types.Turn{"hi", "hello"}), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Ctx\nYou: hi\nAssistant: hello" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderSkipsBeginVisibleChat(t *testing.T) {
	r := New("")
	opts := chatOpts("")
	opts.Continue = true
	got, err := r.Render(hist(types.Turn{"<|BEGIN-VISIBLE-CHAT|>", "Greetings"}), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Assistant: Greetings" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderInstructTemplateFile(t *testing.T) {
	dir := t.TempDir()
	yml := "user: \"### Instruction:\"\nbot: \"### Response:\"\nturn_template: \"<|user|>\\n<|user-message|>\\n\\n<|bot|>\\n<|bot-message|>\\n\\n\"\ncontext: \"Below.\\n\\n\"\n"
	if err := os.WriteFile(filepath.Join(dir, "Alpaca.yaml"), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	r := New(dir)
	c := types.DefaultChatParams()
	c.Mode = types.ModeInstruct
	name := "Alpaca"
	c.InstructionTemplate = &name
	opts := engine.RenderOptions{ChatParams: c, UserInput: "x"}
	got, err := r.Render(hist(types.Turn{"q", "a"}), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	want := "Below.\n\n### Instruction:\nq\n\n### Response:\na\n\n### Instruction:\nx\n\n### Response:\n"
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	stops := r.StopStrings(opts)
	if len(stops) == 0 || !strings.Contains(stops[0], "### Instruction:") {
		t.Fatalf("stops %q", stops)
	}
}

func TestRenderUnknownTemplateIsInvalid(t *testing.T) {
	r := New(t.TempDir())
	c := types.DefaultChatParams()
	c.Mode = types.ModeInstruct
	name := "Nope"
	c.InstructionTemplate = &name
	_, err := r.Render(hist(), engine.RenderOptions{ChatParams: c, UserInput: "x"})
	if !engine.IsInvalidRequest(err) {
		t.Fatalf("expected invalid request, got %v", err)
	}
}

func TestRenderContextTemplate(t *testing.T) {
	r := New("")
	opts := chatOpts(`{{char}} talks to {{user}}. {{ upper "x" }}`)
	opts.UserInput = "hey"
	got, err := r.Render(hist(), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(got, "Assistant talks to You. X\n") {
		t.Fatalf("got %q", got)
	}
}

func TestRenderContextUnparsableIsLiteral(t *testing.T) {
	r := New("")
	opts := chatOpts("braces {{ not closed")
	opts.UserInput = "hey"
	got, err := r.Render(hist(), opts)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(got, "braces {{ not closed\n") {
		t.Fatalf("got %q", got)
	}
}

func TestRenderChatInstruct(t *testing.T) {
	r := New("")
	c := types.DefaultChatParams()
	c.Mode = types.ModeChatInstruct
	c.Name1Instruct = "USER:"
	c.Name2Instruct = "ASSISTANT:"
	got, err := r.Render(hist(types.Turn{"hi", "hello"}), engine.RenderOptions{ChatParams: c, UserInput: "more"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(got, `a single reply for the character "Assistant"`) {
		t.Fatalf("command missing: %q", got)
	}
	if !strings.Contains(got, "You: hi\nAssistant: hello\nYou: more\n") {
		t.Fatalf("chat prompt missing: %q", got)
	}
	if !strings.HasSuffix(got, "ASSISTANT:\nAssistant:") {
		t.Fatalf("bad suffix: %q", got)
	}
}

func TestStopStringsChat(t *testing.T) {
	r := New("")
	got := r.StopStrings(chatOpts(""))
	if len(got) != 2 || got[0] != "\nYou:" || got[1] != "\nAssistant:" {
		t.Fatalf("got %q", got)
	}
}

func TestIsInstructionNotFoundWrapped(t *testing.T) {
	err := fmt.Errorf("render: %w", instructionNotFoundError{name: "Alpaca"})
	if !IsInstructionNotFound(err) {
		t.Fatal("wrapped template error not recognised")
	}
}
