// Package tunnel exposes the local API through a cloudflared quick or named tunnel.
package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	urlPattern        = regexp.MustCompile(`https://[a-zA-Z0-9-]+\.trycloudflare\.com`)
	registeredPattern = regexp.MustCompile(`(?i)registered tunnel connection`)
)

// Config configures the cloudflared process.
type Config struct {
	// Binary is the cloudflared executable; defaults to "cloudflared".
	Binary string
	// TunnelID selects a named tunnel instead of an anonymous quick tunnel.
	TunnelID string
	// Hostname is the public hostname routed to the named tunnel. It is
	// what onStart reports for a named tunnel; the tunnel id is used when empty.
	Hostname string
	// Attempts is how many times to start the tunnel before giving up.
	Attempts int
	// StartTimeout bounds how long one attempt waits for the public URL or,
	// for a named tunnel, the first registered connection.
	StartTimeout time.Duration
	// RetryDelay separates attempts.
	RetryDelay time.Duration
	// Command builds the process; tests replace it.
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Tunnel runs cloudflared for the lifetime of a context.
type Tunnel struct {
	cfg Config
	mu  sync.Mutex
	url string
}

// New returns a Tunnel with defaults applied.
func New(cfg Config) *Tunnel {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "cloudflared"
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 3 * time.Second
	}
	if cfg.Command == nil {
		cfg.Command = exec.CommandContext
	}
	return &Tunnel{cfg: cfg}
}

// URL returns the public URL once the tunnel is up.
func (t *Tunnel) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// Start launches cloudflared for http://127.0.0.1:port and calls onStart with
// the public URL. It blocks until ctx is done or every attempt failed. A
// tunnel that dies after coming up is restarted within the attempt budget.
func (t *Tunnel) Start(ctx context.Context, port int, onStart func(url string)) error {
	var lastErr error
	for attempt := 1; attempt <= t.cfg.Attempts; attempt++ {
		err := t.run(ctx, port, onStart)
		if ctx.Err() != nil {
			return nil
		}
		lastErr = err
		log.Printf("tunnel event=attempt_failed attempt=%d err=%v", attempt, err)
		if attempt < t.cfg.Attempts {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(t.cfg.RetryDelay):
			}
		}
	}
	return fmt.Errorf("tunnel: %d attempts failed: %w", t.cfg.Attempts, lastErr)
}

func (t *Tunnel) args(port int) []string {
	local := fmt.Sprintf("http://127.0.0.1:%d", port)
	if id := strings.TrimSpace(t.cfg.TunnelID); id != "" {
		return []string{"tunnel", "run", "--url", local, id}
	}
	return []string{"tunnel", "--no-autoupdate", "--url", local}
}

func (t *Tunnel) named() bool { return strings.TrimSpace(t.cfg.TunnelID) != "" }

// publicURL is what a named tunnel reports once it has a registered connection.
func (t *Tunnel) publicURL() string {
	h := strings.TrimSpace(t.cfg.Hostname)
	if h == "" {
		return strings.TrimSpace(t.cfg.TunnelID)
	}
	if !strings.Contains(h, "://") {
		h = "https://" + h
	}
	return h
}

// match returns the URL to report for one line of cloudflared output.
func (t *Tunnel) match(line string) string {
	if t.named() {
		if registeredPattern.MatchString(line) {
			return t.publicURL()
		}
		return ""
	}
	return urlPattern.FindString(line)
}

// run starts one cloudflared process and waits for it to exit.
func (t *Tunnel) run(ctx context.Context, port int, onStart func(string)) error {
	runID := uuid.NewString()
	cmd := t.cfg.Command(ctx, t.cfg.Binary, t.args(port)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	log.Printf("tunnel event=spawned run_id=%s pid=%d", runID, cmd.Process.Pid)

	found := make(chan string, 1)
	var wg sync.WaitGroup
	wg.Add(2)
	go t.scan(stderr, found, &wg)
	go t.scan(stdout, found, &wg)

	exited := make(chan error, 1)
	go func() {
		wg.Wait()
		exited <- cmd.Wait()
	}()

	timer := time.NewTimer(t.cfg.StartTimeout)
	defer timer.Stop()
	select {
	case u := <-found:
		t.mu.Lock()
		t.url = u
		t.mu.Unlock()
		log.Printf("tunnel event=ready run_id=%s url=%s", runID, u)
		if onStart != nil {
			onStart(u)
		}
	case err := <-exited:
		if err == nil {
			err = errors.New("cloudflared exited before publishing a URL")
		}
		return err
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-exited
		return errors.New("timed out waiting for the tunnel URL")
	case <-ctx.Done():
		<-exited
		return ctx.Err()
	}

	err = <-exited
	t.mu.Lock()
	t.url = ""
	t.mu.Unlock()
	if err == nil {
		err = errors.New("cloudflared exited")
	}
	return err
}

func (t *Tunnel) scan(r io.Reader, found chan<- string, wg *sync.WaitGroup) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if u := t.match(sc.Text()); u != "" {
			select {
			case found <- u:
			default:
			}
		}
	}
}
