// Package app wires the camera, face and hand pipelines to the actions
// they trigger.
package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/facegift/internal/amount"
	"github.com/ayusman/facegift/internal/capture"
	"github.com/ayusman/facegift/internal/eventlog"
	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/gesture"
	"github.com/ayusman/facegift/internal/hands"
	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/messaging"
	"github.com/ayusman/facegift/internal/payment"
	"github.com/ayusman/facegift/internal/personinfo"
	"github.com/ayusman/facegift/internal/plugin"
	"github.com/ayusman/facegift/internal/tasks"
	"github.com/ayusman/facegift/internal/tracker"
	"github.com/ayusman/facegift/internal/transcript"
)

// Broadcaster pushes pipeline events to dashboard clients.
type Broadcaster interface {
	Publish(typ string, data any)
}

// FrameSink receives each frame after the pipeline has processed it.
type FrameSink interface {
	PublishMat(frame gocv.Mat) error
}

// Config holds the pipeline tunables.
type Config struct {
	IdleFPS         int
	ActiveFPS       int
	IdleTimeout     time.Duration
	MotionThreshold float64

	Gesture gesture.Config

	Keyword         string
	KeywordWindow   time.Duration
	KeywordCooldown time.Duration
	// TranscriptCheck is how often new transcript segments are scanned.
	TranscriptCheck time.Duration
	// AmountLookback is how much recent speech a snap payment parses.
	AmountLookback time.Duration
	WorkflowPlugin string
}

// DefaultConfig returns the shipped pipeline settings.
func DefaultConfig() Config {
	return Config{
		IdleFPS:         5,
		ActiveFPS:       15,
		IdleTimeout:     2 * time.Second,
		MotionThreshold: 1.0,
		Gesture:         gesture.DefaultConfig(),
		Keyword:         "workflow",
		KeywordWindow:   10 * time.Second,
		KeywordCooldown: 5 * time.Second,
		TranscriptCheck: time.Second,
		AmountLookback:  15 * time.Second,
		WorkflowPlugin:  "notes",
	}
}

// Components are the collaborators the app drives. Source, Faces, Tracker,
// Tasks and Transcript are required; the rest may be nil to disable the
// feature they back.
type Components struct {
	Source     capture.Source
	Faces      *face.Engine
	Tracker    *tracker.Tracker
	Hands      hands.Detector
	Events     *eventlog.Recorder
	Tasks      tasks.Runner
	Transcript *transcript.Buffer
	Amounts    *amount.Parser
	Payments   *payment.Service
	Messages   *messaging.Sender
	People     *personinfo.Service
	Plugins    *plugin.Manager
	Executor   *plugin.Executor
	Hub        Broadcaster
	Frames     FrameSink
}

// Person is the face the app is currently focused on.
type Person struct {
	ID         string `json:"id,omitempty"`
	Name       string `json:"name"`
	Recognized bool   `json:"recognized"`
	area       int
}

// Key names the person in task keys.
func (p Person) Key() string {
	switch {
	case p.ID != "":
		return p.ID
	case p.Name != "":
		return p.Name
	default:
		return "nobody"
	}
}

// Status is a snapshot of the pipeline for the tray and health check.
type Status struct {
	Enabled     bool      `json:"detection_enabled"`
	Running     bool      `json:"running"`
	Active      bool      `json:"active"`
	FPS         int       `json:"fps"`
	Frames      uint64    `json:"frames"`
	Focused     *Person   `json:"focused,omitempty"`
	LastGesture string    `json:"last_gesture,omitempty"`
	GestureAt   time.Time `json:"last_gesture_at,omitempty"`
}

// App is the main application that orchestrates detection and the
// actions gestures and speech trigger.
type App struct {
	config  Config
	c       Components
	log     *zap.SugaredLogger
	motion  *capture.Motion
	pacer   *capture.Pacer
	gesture *gesture.Recognizer
	keyword *transcript.Keyword

	mu          sync.RWMutex
	enabled     bool
	cancel      context.CancelFunc
	done        sync.WaitGroup
	seq         uint64
	focused     *Person
	lastGesture string
	gestureAt   time.Time
}

// New builds the app and registers its task handlers.
func New(config Config, c Components, log *zap.SugaredLogger) *App {
	def := DefaultConfig()
	if config.IdleFPS <= 0 {
		config.IdleFPS = def.IdleFPS
	}
	if config.ActiveFPS <= 0 {
		config.ActiveFPS = def.ActiveFPS
	}
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = def.MotionThreshold
	}
	if config.TranscriptCheck <= 0 {
		config.TranscriptCheck = def.TranscriptCheck
	}
	if config.AmountLookback <= 0 {
		config.AmountLookback = def.AmountLookback
	}

	log = logging.OrNop(log)
	a := &App{
		config:  config,
		c:       c,
		log:     log,
		motion:  capture.NewMotion(config.MotionThreshold),
		pacer:   capture.NewPacer(config.IdleFPS, config.ActiveFPS, config.IdleTimeout),
		gesture: gesture.NewRecognizer(config.Gesture, log),
		keyword: transcript.NewKeyword(config.Keyword, config.KeywordWindow, config.KeywordCooldown),
		enabled: true,
	}

	c.Tasks.Register(KindPayment, a.handlePayment)
	c.Tasks.Register(KindMessage, a.handleMessage)
	c.Tasks.Register(KindWorkflow, a.handleWorkflow)
	return a
}

// SetEnabled turns detection on or off. Frames keep streaming while off.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	a.enabled = enabled
	a.mu.Unlock()
	a.log.Infof("detection enabled: %v", enabled)
	a.publish("detection", map[string]bool{"enabled": enabled})
}

// IsEnabled returns whether detection is currently enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Start opens the source and runs the frame pipeline and transcript
// checker until Stop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}
	if err := a.c.Source.Open(); err != nil {
		return err
	}
	a.c.Source.SetFPS(a.config.IdleFPS)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done.Add(2)
	go func() {
		defer a.done.Done()
		a.runPipeline(ctx)
	}()
	go func() {
		defer a.done.Done()
		a.runTranscriptChecker(ctx)
	}()

	a.log.Info("detection pipeline started")
	return nil
}

// Wait blocks until the pipeline has stopped, either through Stop or
// because a finite source ran out.
func (a *App) Wait() {
	a.done.Wait()
}

// Stop halts the pipeline and releases capture resources.
func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	a.done.Wait()

	if err := a.c.Source.Close(); err != nil {
		a.log.Warnf("close capture source: %v", err)
	}
	a.motion.Close()
	if a.c.Hands != nil {
		if err := a.c.Hands.Close(); err != nil {
			a.log.Warnf("close hand detector: %v", err)
		}
	}
	a.log.Info("detection pipeline stopped")
}

// Reset forgets every tracked identity and everything derived from them.
func (a *App) Reset() error {
	err := a.c.Tracker.Reset()
	a.c.Faces.Reset()
	if a.c.People != nil {
		a.c.People.StopAll()
		a.c.People.ClearCache()
	}
	if a.c.Events != nil {
		a.c.Events.Forget()
	}
	a.gesture.Reset()

	a.mu.Lock()
	a.focused = nil
	a.mu.Unlock()

	a.publish("reset", nil)
	return err
}

// Focused returns the person in focus, if any.
func (a *App) Focused() (Person, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.focused == nil {
		return Person{}, false
	}
	return *a.focused, true
}

// Status returns a snapshot of the pipeline.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := Status{
		Enabled:     a.enabled,
		Running:     a.cancel != nil,
		Active:      a.pacer.Active(),
		FPS:         a.pacer.FPS(),
		Frames:      a.seq,
		LastGesture: a.lastGesture,
		GestureAt:   a.gestureAt,
	}
	if a.focused != nil {
		p := *a.focused
		s.Focused = &p
	}
	return s
}

// HealthStatus adapts Status for the health endpoint.
func (a *App) HealthStatus() map[string]any {
	s := a.Status()
	out := map[string]any{
		"detection_enabled": s.Enabled,
		"running":           s.Running,
		"active":            s.Active,
		"fps":               s.FPS,
		"frames":            s.Frames,
	}
	if s.Focused != nil {
		out["focused"] = s.Focused
	}
	if a.c.Payments != nil {
		out["payment_cooldown"] = a.c.Payments.Client().CooldownRemaining().Seconds()
	}
	if a.c.Messages != nil {
		out["imessage"] = a.c.Messages.Status()
	}
	return out
}

func (a *App) publish(typ string, data any) {
	if a.c.Hub != nil {
		a.c.Hub.Publish(typ, data)
	}
}

func (a *App) submit(kind, key string, payload any) {
	job, err := tasks.NewJob(kind, key, payload)
	if err == nil {
		err = a.c.Tasks.Submit(job)
	}
	switch {
	case err == nil:
		a.log.Debugf("submitted %s", key)
	case errors.Is(err, tasks.ErrDuplicate):
		a.log.Debugf("%s already running", key)
	default:
		a.log.Warnf("submit %s: %v", key, err)
	}
}
