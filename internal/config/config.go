// Package config loads facegift settings from defaults, an optional YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for all environment overrides (FACEGIFT_SERVER_ADDR, ...).
const EnvPrefix = "FACEGIFT"

// Config holds every tunable of the service.
type Config struct {
	Env     string `yaml:"env" envconfig:"ENV" validate:"oneof=development production"`
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR" validate:"required"`

	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Camera     CameraConfig     `yaml:"camera" envconfig:"CAMERA"`
	Face       FaceConfig       `yaml:"face" envconfig:"FACE"`
	Tracker    TrackerConfig    `yaml:"tracker" envconfig:"TRACKER"`
	Gesture    GestureConfig    `yaml:"gesture" envconfig:"GESTURE"`
	Payment    PaymentConfig    `yaml:"payment" envconfig:"PAYMENT"`
	Messaging  MessagingConfig  `yaml:"messaging" envconfig:"MESSAGING"`
	Transcript TranscriptConfig `yaml:"transcript" envconfig:"TRANSCRIPT"`
	Ollama     OllamaConfig     `yaml:"ollama" envconfig:"OLLAMA"`
	PersonInfo PersonInfoConfig `yaml:"person_info" envconfig:"PERSON_INFO"`
	Tasks      TasksConfig      `yaml:"tasks" envconfig:"TASKS"`
	EventLog   EventLogConfig   `yaml:"event_log" envconfig:"EVENT_LOG"`
}

type ServerConfig struct {
	Addr      string `yaml:"addr" envconfig:"ADDR" validate:"required"`
	StaticDir string `yaml:"static_dir" envconfig:"STATIC_DIR"`
	Tray      bool   `yaml:"tray" envconfig:"TRAY"`
}

type CameraConfig struct {
	// Source is a device index ("0") or a file/stream URL.
	Source       string        `yaml:"source" envconfig:"SOURCE"`
	Width        int           `yaml:"width" envconfig:"WIDTH" validate:"gt=0"`
	Height       int           `yaml:"height" envconfig:"HEIGHT" validate:"gt=0"`
	IdleFPS      int           `yaml:"idle_fps" envconfig:"IDLE_FPS" validate:"gt=0"`
	ActiveFPS    int           `yaml:"active_fps" envconfig:"ACTIVE_FPS" validate:"gt=0"`
	MotionThresh float64       `yaml:"motion_threshold" envconfig:"MOTION_THRESHOLD" validate:"gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
}

type FaceConfig struct {
	CascadeFile          string  `yaml:"cascade_file" envconfig:"CASCADE_FILE"`
	EncoderModel         string  `yaml:"encoder_model" envconfig:"ENCODER_MODEL"`
	DetectionScale       float64 `yaml:"detection_scale" envconfig:"DETECTION_SCALE" validate:"gt=0,lte=1"`
	ProcessEveryN        int     `yaml:"process_every_n" envconfig:"PROCESS_EVERY_N" validate:"gte=1"`
	MaxFaces             int     `yaml:"max_faces" envconfig:"MAX_FACES" validate:"gte=1"`
	RecognitionTolerance float64 `yaml:"recognition_tolerance" envconfig:"RECOGNITION_TOLERANCE" validate:"gt=0"`
	MinSize              int     `yaml:"min_size" envconfig:"MIN_SIZE" validate:"gt=0"`
	MaxSize              int     `yaml:"max_size" envconfig:"MAX_SIZE" validate:"gtfield=MinSize"`
	ModelProxy           string  `yaml:"model_proxy" envconfig:"MODEL_PROXY"`
}

type TrackerConfig struct {
	DuplicateThreshold float64       `yaml:"duplicate_threshold" envconfig:"DUPLICATE_THRESHOLD" validate:"gt=0"`
	CropPadding        int           `yaml:"crop_padding" envconfig:"CROP_PADDING" validate:"gte=0"`
	QualityGated       bool          `yaml:"quality_gated" envconfig:"QUALITY_GATED"`
	QualityFrames      int           `yaml:"quality_frames" envconfig:"QUALITY_FRAMES" validate:"gte=1"`
	PendingTimeout     time.Duration `yaml:"pending_timeout" envconfig:"PENDING_TIMEOUT"`
	SharpnessThreshold float64       `yaml:"sharpness_threshold" envconfig:"SHARPNESS_THRESHOLD" validate:"gte=0"`
}

type GestureConfig struct {
	SnapHold      time.Duration `yaml:"snap_hold" envconfig:"SNAP_HOLD"`
	PeaceHold     time.Duration `yaml:"peace_hold" envconfig:"PEACE_HOLD"`
	SnapCooldown  time.Duration `yaml:"snap_cooldown" envconfig:"SNAP_COOLDOWN"`
	PeaceCooldown time.Duration `yaml:"peace_cooldown" envconfig:"PEACE_COOLDOWN"`
	LogInterval   time.Duration `yaml:"log_interval" envconfig:"LOG_INTERVAL"`
}

type PaymentConfig struct {
	ServerURL        string        `yaml:"server_url" envconfig:"SERVER_URL" validate:"required,url"`
	SenderPrivateKey string        `yaml:"-" envconfig:"SENDER_PRIVATE_KEY"`
	SenderName       string        `yaml:"sender_name" envconfig:"SENDER_NAME"`
	RecipientEmail   string        `yaml:"recipient_email" envconfig:"RECIPIENT_EMAIL" validate:"omitempty,email"`
	DefaultAmount    float64       `yaml:"default_amount" envconfig:"DEFAULT_AMOUNT" validate:"gt=0"`
	Cooldown         time.Duration `yaml:"cooldown" envconfig:"COOLDOWN"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	// ServerDir, when set, is where the Node payment server is started from.
	ServerDir string `yaml:"server_dir" envconfig:"SERVER_DIR"`
}

type MessagingConfig struct {
	Recipient string        `yaml:"recipient" envconfig:"RECIPIENT"`
	Lookback  time.Duration `yaml:"lookback" envconfig:"LOOKBACK"`
	Cooldown  time.Duration `yaml:"cooldown" envconfig:"COOLDOWN"`
	Timeout   time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

type TranscriptConfig struct {
	MaxSegments     int           `yaml:"max_segments" envconfig:"MAX_SEGMENTS" validate:"gte=1"`
	Keyword         string        `yaml:"keyword" envconfig:"KEYWORD" validate:"required"`
	KeywordWindow   time.Duration `yaml:"keyword_window" envconfig:"KEYWORD_WINDOW"`
	KeywordCooldown time.Duration `yaml:"keyword_cooldown" envconfig:"KEYWORD_COOLDOWN"`
	WorkflowPlugin  string        `yaml:"workflow_plugin" envconfig:"WORKFLOW_PLUGIN"`
	PluginDir       string        `yaml:"plugin_dir" envconfig:"PLUGIN_DIR"`
	PluginTimeout   time.Duration `yaml:"plugin_timeout" envconfig:"PLUGIN_TIMEOUT"`
}

type OllamaConfig struct {
	URL     string        `yaml:"url" envconfig:"URL" validate:"omitempty,url"`
	Model   string        `yaml:"model" envconfig:"MODEL"`
	Timeout time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

type PersonInfoConfig struct {
	// BaseURL of the lookup service; empty disables lookups.
	BaseURL      string        `yaml:"base_url" envconfig:"BASE_URL" validate:"omitempty,url"`
	PollInterval time.Duration `yaml:"poll_interval" envconfig:"POLL_INTERVAL"`
	MaxPollTime  time.Duration `yaml:"max_poll_time" envconfig:"MAX_POLL_TIME"`
}

type TasksConfig struct {
	Workers    int           `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`
	QueueSize  int           `yaml:"queue_size" envconfig:"QUEUE_SIZE" validate:"gte=1"`
	JobTimeout time.Duration `yaml:"job_timeout" envconfig:"JOB_TIMEOUT"`
	// RedisAddr switches dispatch to the Redis-backed broker.
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"-" envconfig:"REDIS_PASSWORD"`
}

type EventLogConfig struct {
	Interval time.Duration `yaml:"interval" envconfig:"INTERVAL"`
}

// DefaultConfig returns a Config with the values the service ships with.
func DefaultConfig() *Config {
	dataDir := ".facegift"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".facegift")
	}

	return &Config{
		Env:     "development",
		DataDir: dataDir,
		Server: ServerConfig{
			Addr: ":8080",
			Tray: false,
		},
		Camera: CameraConfig{
			Source:       "0",
			Width:        640,
			Height:       480,
			IdleFPS:      5,
			ActiveFPS:    15,
			MotionThresh: 1.0,
			IdleTimeout:  2 * time.Second,
		},
		Face: FaceConfig{
			DetectionScale:       0.25,
			ProcessEveryN:        2,
			MaxFaces:             10,
			RecognitionTolerance: 0.6,
			MinSize:              20,
			MaxSize:              1000,
		},
		Tracker: TrackerConfig{
			DuplicateThreshold: 0.6,
			CropPadding:        20,
			QualityGated:       false,
			QualityFrames:      5,
			PendingTimeout:     3 * time.Second,
			SharpnessThreshold: 100,
		},
		Gesture: GestureConfig{
			SnapHold:      1500 * time.Millisecond,
			PeaceHold:     time.Second,
			SnapCooldown:  10 * time.Second,
			PeaceCooldown: 5 * time.Second,
			LogInterval:   2 * time.Second,
		},
		Payment: PaymentConfig{
			ServerURL:     "http://localhost:3001",
			SenderName:    "facegift",
			DefaultAmount: 0.01,
			Cooldown:      10 * time.Second,
			Timeout:       30 * time.Second,
		},
		Messaging: MessagingConfig{
			Lookback: 15 * time.Second,
			Cooldown: 5 * time.Second,
			Timeout:  5 * time.Second,
		},
		Transcript: TranscriptConfig{
			MaxSegments:     100,
			Keyword:         "workflow",
			KeywordWindow:   10 * time.Second,
			KeywordCooldown: 5 * time.Second,
			WorkflowPlugin:  "notes",
			PluginTimeout:   30 * time.Second,
		},
		Ollama: OllamaConfig{
			URL:     "http://localhost:11434",
			Model:   "llama3.2",
			Timeout: 10 * time.Second,
		},
		PersonInfo: PersonInfoConfig{
			PollInterval: 3 * time.Second,
			MaxPollTime:  2 * time.Minute,
		},
		Tasks: TasksConfig{
			Workers:    4,
			QueueSize:  32,
			JobTimeout: time.Minute,
		},
		EventLog: EventLogConfig{
			Interval: time.Second,
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and FACEGIFT_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// RegistryPath is the JSON identity registry.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "data", "face_registry.json")
}

// DetectedFacesDir holds one crop per tracked identity.
func (c *Config) DetectedFacesDir() string {
	return filepath.Join(c.DataDir, "detected_faces")
}

// KnownFacesDir holds labelled reference photos, one subdirectory per person.
func (c *Config) KnownFacesDir() string {
	return filepath.Join(c.DataDir, "known_faces")
}

func (c *Config) ModelsDir() string {
	return filepath.Join(c.DataDir, "models")
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "facegift.db")
}

// PluginDir returns the workflow plugin directory.
func (c *Config) PluginDir() string {
	if c.Transcript.PluginDir != "" {
		return c.Transcript.PluginDir
	}
	return filepath.Join(c.DataDir, "plugins")
}

// CascadePath returns the pigo cascade file, defaulting into ModelsDir.
func (c *Config) CascadePath() string {
	if c.Face.CascadeFile != "" {
		return c.Face.CascadeFile
	}
	return filepath.Join(c.ModelsDir(), "facefinder")
}

// EncoderPath returns the face encoder model, defaulting into ModelsDir.
func (c *Config) EncoderPath() string {
	if c.Face.EncoderModel != "" {
		return c.Face.EncoderModel
	}
	return filepath.Join(c.ModelsDir(), "nn4.small2.v1.t7")
}

// EnsureDirs creates the data directory layout.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{
		c.DataDir,
		filepath.Dir(c.RegistryPath()),
		c.DetectedFacesDir(),
		c.KnownFacesDir(),
		c.ModelsDir(),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
