package tunnel

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// The test binary doubles as a fake cloudflared when TUNNEL_HELPER is set.
func TestMain(m *testing.M) {
	switch os.Getenv("TUNNEL_HELPER") {
	case "url":
		os.Stderr.WriteString("INF Requesting new quick Tunnel on trycloudflare.com...\n")
		os.Stderr.WriteString("INF |  https://calm-river-1234.trycloudflare.com  |\n")
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "named":
		os.Stderr.WriteString("INF Starting tunnel tunnelID=abc\n")
		os.Stderr.WriteString("INF Registered tunnel connection connIndex=0 location=ams01\n")
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "fail":
		os.Stderr.WriteString("ERR failed to request quick Tunnel\n")
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func helper(mode string, calls *atomic.Int32, seen *[]string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls.Add(1)
		if seen != nil {
			*seen = append([]string{name}, args...)
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=^$")
		cmd.Env = append(os.Environ(), "TUNNEL_HELPER="+mode)
		return cmd
	}
}

func TestStartReportsURL(t *testing.T) {
	var calls atomic.Int32
	var seen []string
	tun := New(Config{Command: helper("url", &calls, &seen)})
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- tun.Start(ctx, 5000, func(u string) { got <- u }) }()

	select {
	case u := <-got:
		if u != "https://calm-river-1234.trycloudflare.com" {
			t.Fatalf("url: %q", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for url")
	}
	if tun.URL() == "" {
		t.Fatal("URL() empty while running")
	}
	if strings.Join(seen, " ") != "cloudflared tunnel --no-autoupdate --url http://127.0.0.1:5000" {
		t.Fatalf("args: %v", seen)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
}

func TestStartRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	tun := New(Config{Command: helper("fail", &calls, nil), RetryDelay: time.Millisecond})
	err := tun.Start(context.Background(), 5000, func(string) { t.Fatal("onStart called") })
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Fatalf("attempts: %d", calls.Load())
	}
}

func TestNamedTunnelArgs(t *testing.T) {
	tun := New(Config{TunnelID: "abc"})
	if got := strings.Join(tun.args(80), " "); got != "tunnel run --url http://127.0.0.1:80 abc" {
		t.Fatalf("args: %q", got)
	}
}

func TestNamedTunnelStartsOnRegisteredConnection(t *testing.T) {
	var calls atomic.Int32
	var seen []string
	tun := New(Config{TunnelID: "abc", Hostname: "api.example.com", StartTimeout: 5 * time.Second, Command: helper("named", &calls, &seen)})
	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan string, 1)
	done := make(chan error, 1)
	go func() { done <- tun.Start(ctx, 5000, func(u string) { got <- u }) }()

	select {
	case u := <-got:
		if u != "https://api.example.com" {
			t.Fatalf("url: %q", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("named tunnel never reported started")
	}
	if strings.Join(seen, " ") != "cloudflared tunnel run --url http://127.0.0.1:5000 abc" {
		t.Fatalf("args: %v", seen)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("attempts: %d", calls.Load())
	}
}

func TestNamedTunnelIgnoresQuickTunnelURL(t *testing.T) {
	tun := New(Config{TunnelID: "abc"})
	if got := tun.match("INF |  https://calm-river-1234.trycloudflare.com  |"); got != "" {
		t.Fatalf("match: %q", got)
	}
	if got := tun.match("INF Registered tunnel connection connIndex=0"); got != "abc" {
		t.Fatalf("match: %q", got)
	}
}
