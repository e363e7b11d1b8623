package payment

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

// ErrServerNotFound is returned when the payment server sources are missing.
var ErrServerNotFound = errors.New("payment server not found")

const (
	serverEntry   = "suicrypto.ts"
	readyAttempts = 30
	readyInterval = time.Second
	stopGrace     = 5 * time.Second
)

// ServerProcess runs the TypeScript payment server as a child process.
type ServerProcess struct {
	dir     string
	command []string
	log     *zap.SugaredLogger

	mu   sync.Mutex
	cmd  *exec.Cmd
	done chan struct{}
}

// NewServerProcess returns a process rooted at dir. It is not started.
func NewServerProcess(dir string, log *zap.SugaredLogger) *ServerProcess {
	return &ServerProcess{
		dir:     dir,
		command: []string{"npx", "ts-node", serverEntry},
		log:     logging.OrNop(log),
	}
}

// Start launches the server. Output is forwarded to the log.
func (p *ServerProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(p.dir, serverEntry)); err != nil {
		return fmt.Errorf("%w: %s", ErrServerNotFound, filepath.Join(p.dir, serverEntry))
	}

	cmd := exec.Command(p.command[0], p.command[1:]...)
	cmd.Dir = p.dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start payment server (is Node.js installed?): %w", err)
	}
	p.log.Infof("payment server started in %s (pid %d)", p.dir, cmd.Process.Pid)

	done := make(chan struct{})
	go p.forward(stdout)
	go func() {
		err := cmd.Wait()
		p.log.Infof("payment server exited: %v", err)
		close(done)
	}()

	p.cmd = cmd
	p.done = done
	return nil
}

func (p *ServerProcess) forward(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.log.Debugf("payment server: %s", scanner.Text())
	}
}

// WaitReady polls the client's health check until it passes or the
// attempts run out.
func (p *ServerProcess) WaitReady(ctx context.Context, c *Client) error {
	return waitReady(ctx, c, readyAttempts, readyInterval, p.log)
}

func waitReady(ctx context.Context, c *Client, attempts int, interval time.Duration, log *zap.SugaredLogger) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = c.Health(ctx); err == nil {
			log.Infof("payment server ready at %s", c.baseURL)
			return nil
		}
		if i%5 == 0 {
			log.Infof("waiting for payment server (%d/%d)", i+1, attempts)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return fmt.Errorf("payment server not ready after %d attempts: %w", attempts, err)
}

// Running reports whether the child process is alive.
func (p *ServerProcess) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Stop interrupts the server and kills it if it has not exited after a
// grace period.
func (p *ServerProcess) Stop() error {
	p.mu.Lock()
	cmd, done := p.cmd, p.done
	p.cmd, p.done = nil, nil
	p.mu.Unlock()

	if cmd == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.log.Warnf("signal payment server: %v", err)
	}
	select {
	case <-done:
		return nil
	case <-time.After(stopGrace):
		p.log.Warn("payment server did not stop gracefully, killing")
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("kill payment server: %w", err)
		}
		<-done
		return nil
	}
}
