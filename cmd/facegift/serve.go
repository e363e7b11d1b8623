package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/amount"
	"github.com/ayusman/facegift/internal/app"
	"github.com/ayusman/facegift/internal/capture"
	"github.com/ayusman/facegift/internal/config"
	"github.com/ayusman/facegift/internal/eventlog"
	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/gesture"
	"github.com/ayusman/facegift/internal/hands"
	"github.com/ayusman/facegift/internal/messaging"
	"github.com/ayusman/facegift/internal/payment"
	"github.com/ayusman/facegift/internal/personinfo"
	"github.com/ayusman/facegift/internal/plugin"
	"github.com/ayusman/facegift/internal/server"
	"github.com/ayusman/facegift/internal/store"
	"github.com/ayusman/facegift/internal/tasks"
	"github.com/ayusman/facegift/internal/tracker"
	"github.com/ayusman/facegift/internal/transcript"
	"github.com/ayusman/facegift/internal/tray"
)

const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	addr     string
	camera   string
	tray     bool
	noDetect bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the camera pipeline and the dashboard server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveFlags.camera, "camera", "", "Camera index or video URL (overrides camera.source)")
	serveCmd.Flags().BoolVar(&serveFlags.tray, "tray", false, "Show the menu bar icon")
	serveCmd.Flags().BoolVar(&serveFlags.noDetect, "no-detect", false, "Start with detection disabled")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	if addr := serveFlags.addr; addr != "" {
		cfg.Server.Addr = addr
	}
	if src := serveFlags.camera; src != "" {
		cfg.Camera.Source = src
	}
	if serveFlags.tray {
		cfg.Server.Tray = true
	}
	if err := cfg.EnsureDirs(); err != nil {
		return err
	}

	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	models, err := openFaceModels(cfg, true, log)
	if err != nil {
		return err
	}
	defer models.Close()

	trk := tracker.New(trackerConfig(cfg), models.files, log)
	defer trk.Close()

	engine := face.NewEngine(models.detector, models.encoder, models.known, face.EngineConfig{
		DetectionScale: cfg.Face.DetectionScale,
		ProcessEveryN:  cfg.Face.ProcessEveryN,
		MaxFaces:       cfg.Face.MaxFaces,
		Tolerance:      cfg.Face.RecognitionTolerance,
	}, log)

	runner, startRunner := newRunner(cfg, log)
	defer runner.Close()

	buf := transcript.NewBuffer(cfg.Transcript.MaxSegments)
	events := eventlog.NewRecorder(st.Events(), cfg.EventLog.Interval, log)
	amounts := newAmountParser(cfg, log)

	payments, stopPaymentServer := newPayments(cfg, st, log)
	defer stopPaymentServer()

	var messages *messaging.Sender
	if cfg.Messaging.Recipient != "" {
		messages = messaging.NewSender(messaging.Config{
			Recipient: cfg.Messaging.Recipient,
			Lookback:  cfg.Messaging.Lookback,
			Cooldown:  cfg.Messaging.Cooldown,
			Timeout:   cfg.Messaging.Timeout,
		}, nil, log)
	} else {
		log.Info("no iMessage recipient configured, peace sign is disabled")
	}

	var people *personinfo.Service
	if cfg.PersonInfo.BaseURL != "" {
		people = personinfo.NewService(personinfo.Config{
			PollInterval: cfg.PersonInfo.PollInterval,
			MaxPollTime:  cfg.PersonInfo.MaxPollTime,
		}, personinfo.NewHTTPLookup(cfg.PersonInfo.BaseURL, 10*time.Second), trk, runner, log)
		defer people.StopAll()
	}

	plugins := plugin.NewManager(cfg.PluginDir(), log)
	if err := plugins.Discover(); err != nil {
		log.Warnf("discover plugins: %v", err)
	}

	var handDetector hands.Detector
	if mp, err := hands.NewMediaPipeDetector(hands.DefaultConfig(), log); err != nil {
		log.Warnf("hand gestures disabled: %v", err)
	} else {
		handDetector = mp
	}

	hub := server.NewHub(log)
	frames := server.NewFrameBuffer()

	a := app.New(appConfig(cfg), app.Components{
		Source: capture.NewCamera(capture.Config{
			Device: cfg.Camera.Source,
			Width:  cfg.Camera.Width,
			Height: cfg.Camera.Height,
			FPS:    cfg.Camera.IdleFPS,
		}),
		Faces:      engine,
		Tracker:    trk,
		Hands:      handDetector,
		Events:     events,
		Tasks:      runner,
		Transcript: buf,
		Amounts:    amounts,
		Payments:   payments,
		Messages:   messages,
		People:     people,
		Plugins:    plugins,
		Executor:   plugin.NewExecutor(cfg.Transcript.PluginTimeout),
		Hub:        hub,
		Frames:     frames,
	}, log)
	if serveFlags.noDetect {
		a.SetEnabled(false)
	}

	// Handlers are registered by now.
	if err := startRunner(); err != nil {
		return err
	}

	srv := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		StaticDir:    staticDir(cfg),
		Faces:        trk,
		OnReset:      a.Reset,
		OnPersonInfo: a.SetPersonInfo,
		Events:       events,
		Transactions: st.Transactions(),
		Transcript:   buf,
		OnTranscript: func(seg transcript.Segment) { hub.Publish("transcript", seg) },
		Amount:       amounts,
		Frames:       frames,
		Hub:          hub,
		Status:       a.HealthStatus,
	}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("dashboard on http://%s", dashboardHost(cfg.Server.Addr))
		errCh <- srv.Start()
	}()

	if cfg.Server.Tray {
		t := newTray(a, cfg, stop, log)
		go func() {
			if err := <-errCh; err != nil {
				log.Errorf("server: %v", err)
			}
			stop()
		}()
		t.Run(ctx)
	} else {
		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				log.Errorf("server: %v", err)
			}
		}
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("server shutdown: %v", err)
	}
	a.Stop()
	return nil
}

// faceModels bundles the detector, encoder and known faces the engine and
// tracker share.
type faceModels struct {
	detector face.Detector
	encoder  face.Encoder
	files    face.FileEncoding
	known    *face.Database
}

func (m *faceModels) Close() {
	m.encoder.Close()
	m.detector.Close()
}

// openFaceModels loads the detector and encoder. With loadKnown the known
// face cache is read, encoding photos when no cache exists.
func openFaceModels(cfg *config.Config, loadKnown bool, log *zap.SugaredLogger) (*faceModels, error) {
	params := face.DefaultPigoParams()
	params.MinSize, params.MaxSize = cfg.Face.MinSize, cfg.Face.MaxSize

	detector, err := face.NewPigoDetector(cfg.CascadePath(), params)
	if err != nil {
		return nil, fmt.Errorf("load face detector (run `facegift models download`): %w", err)
	}
	encoder, err := face.NewDNNEncoder(cfg.EncoderPath(), face.OpenFaceModel)
	if err != nil {
		detector.Close()
		return nil, fmt.Errorf("load face encoder (run `facegift models download`): %w", err)
	}

	files := &face.FileEncoder{Encoder: encoder, Detector: detector}
	known := face.NewDatabase(cfg.KnownFacesDir(), knownCachePath(cfg), files, log)
	if loadKnown {
		if err := known.Load(); err != nil {
			log.Warnf("load known faces: %v", err)
		}
	}
	return &faceModels{detector: detector, encoder: encoder, files: files, known: known}, nil
}

func knownCachePath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "data", "known_encodings.json")
}

func trackerConfig(cfg *config.Config) tracker.Config {
	return tracker.Config{
		DataDir:            cfg.DataDir,
		RegistryPath:       cfg.RegistryPath(),
		DuplicateThreshold: cfg.Tracker.DuplicateThreshold,
		CropPadding:        cfg.Tracker.CropPadding,
		QualityGated:       cfg.Tracker.QualityGated,
		QualityFrames:      cfg.Tracker.QualityFrames,
		PendingTimeout:     cfg.Tracker.PendingTimeout,
		MinSharpness:       cfg.Tracker.SharpnessThreshold,
	}
}

func appConfig(cfg *config.Config) app.Config {
	c := app.DefaultConfig()
	c.IdleFPS, c.ActiveFPS = cfg.Camera.IdleFPS, cfg.Camera.ActiveFPS
	c.IdleTimeout = cfg.Camera.IdleTimeout
	c.MotionThreshold = cfg.Camera.MotionThresh
	c.Gesture = gesture.DefaultConfig()
	c.Gesture.SnapHold, c.Gesture.PeaceHold = cfg.Gesture.SnapHold, cfg.Gesture.PeaceHold
	c.Gesture.SnapCooldown, c.Gesture.PeaceCooldown = cfg.Gesture.SnapCooldown, cfg.Gesture.PeaceCooldown
	c.Gesture.LogInterval = cfg.Gesture.LogInterval
	c.Keyword = cfg.Transcript.Keyword
	c.KeywordWindow, c.KeywordCooldown = cfg.Transcript.KeywordWindow, cfg.Transcript.KeywordCooldown
	c.WorkflowPlugin = cfg.Transcript.WorkflowPlugin
	return c
}

// newRunner returns the Redis broker when one is configured, else the
// in-process queue. start must be called once handlers are registered.
func newRunner(cfg *config.Config, log *zap.SugaredLogger) (tasks.Runner, func() error) {
	if cfg.Tasks.RedisAddr != "" {
		b := tasks.NewBroker(tasks.BrokerConfig{
			Addr:        cfg.Tasks.RedisAddr,
			Password:    cfg.Tasks.RedisPassword,
			Concurrency: cfg.Tasks.Workers,
			JobTimeout:  cfg.Tasks.JobTimeout,
		}, log)
		log.Infof("dispatching jobs through redis at %s", cfg.Tasks.RedisAddr)
		return b, b.Start
	}

	q := tasks.NewQueue(tasks.Config{
		Workers:    cfg.Tasks.Workers,
		QueueSize:  cfg.Tasks.QueueSize,
		JobTimeout: cfg.Tasks.JobTimeout,
	}, log)
	q.OnResult(func(r tasks.Result) {
		if r.Err != nil {
			log.Warnf("job %s failed after %s: %v", r.Job.Key, r.Duration.Round(time.Millisecond), r.Err)
		}
	})
	return q, func() error { return nil }
}

func newAmountParser(cfg *config.Config, log *zap.SugaredLogger) *amount.Parser {
	if cfg.Ollama.URL == "" {
		return amount.NewParser(nil, cfg.Payment.DefaultAmount, log)
	}
	llm := amount.NewOllamaClient(cfg.Ollama.URL, cfg.Ollama.Model, cfg.Ollama.Timeout)
	return amount.NewParser(llm, cfg.Payment.DefaultAmount, log)
}

// newPayments returns nil when no wallet is configured. The returned stop
// func is always safe to call.
func newPayments(cfg *config.Config, st *store.Store, log *zap.SugaredLogger) (*payment.Service, func()) {
	noop := func() {}
	if cfg.Payment.SenderPrivateKey == "" || cfg.Payment.RecipientEmail == "" {
		log.Info("no wallet or recipient configured, snap payments are disabled")
		return nil, noop
	}

	client := payment.NewClient(cfg.Payment.ServerURL, cfg.Payment.Timeout, cfg.Payment.Cooldown, log)
	svc := payment.NewService(client, payment.Sender{
		PrivateKey:     cfg.Payment.SenderPrivateKey,
		Name:           cfg.Payment.SenderName,
		RecipientEmail: cfg.Payment.RecipientEmail,
	}, st.Transactions(), log)

	if cfg.Payment.ServerDir == "" {
		return svc, noop
	}
	proc := payment.NewServerProcess(cfg.Payment.ServerDir, log)
	if err := proc.Start(); err != nil {
		log.Warnf("start payment server: %v", err)
		return svc, noop
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := proc.WaitReady(ctx, client); err != nil {
			log.Warnf("payment server not ready: %v", err)
		}
	}()
	return svc, func() {
		if err := proc.Stop(); err != nil {
			log.Warnf("stop payment server: %v", err)
		}
	}
}

func newTray(a *app.App, cfg *config.Config, quit func(), log *zap.SugaredLogger) *tray.Tray {
	t := tray.New(func() tray.Snapshot {
		s := a.Status()
		snap := tray.Snapshot{Enabled: s.Enabled, Gesture: s.LastGesture, GestureAt: s.GestureAt}
		if s.Focused != nil {
			snap.Person = s.Focused.Name
			if snap.Person == "" {
				snap.Person = s.Focused.ID
			}
		}
		return snap
	}, time.Second, log)

	t.OnToggle(a.SetEnabled)
	t.OnReset(func() {
		if err := a.Reset(); err != nil {
			log.Warnf("reset: %v", err)
		}
	})
	t.OnDashboard(func() {
		url := "http://" + dashboardHost(cfg.Server.Addr)
		if err := exec.Command("open", url).Start(); err != nil {
			log.Warnf("open dashboard: %v", err)
		}
	})
	t.OnQuit(quit)
	return t
}

// dashboardHost turns a listen address like ":8080" into "localhost:8080".
func dashboardHost(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}

// staticDir returns the configured dashboard directory, or the first web
// directory found next to the binary's working directory or in DataDir.
func staticDir(cfg *config.Config) string {
	if cfg.Server.StaticDir != "" {
		return cfg.Server.StaticDir
	}
	for _, p := range []string{"web", "../web", "../../web", filepath.Join(cfg.DataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}
