package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

// ErrPluginNotFound is returned when no plugin matches.
var ErrPluginNotFound = errors.New("plugin not found")

// ManifestFile is the manifest name looked for in each plugin directory.
const ManifestFile = "plugin.json"

// Manager holds the plugins found under one directory.
type Manager struct {
	dir      string
	validate *validator.Validate
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

// NewManager returns a manager for dir. Call Discover to load plugins.
func NewManager(dir string, log *zap.SugaredLogger) *Manager {
	return &Manager{
		dir:      dir,
		validate: validator.New(),
		log:      logging.OrNop(log),
		plugins:  make(map[string]*Plugin),
	}
}

// Discover rescans the directory. Each subdirectory with a valid
// plugin.json becomes a plugin; broken manifests are logged and skipped.
// A missing directory yields no plugins.
func (m *Manager) Discover() error {
	found := make(map[string]*Plugin)

	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		m.replace(found)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read plugin dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		p, err := m.load(filepath.Join(m.dir, entry.Name()))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			m.log.Warnf("skipping plugin %s: %v", entry.Name(), err)
			continue
		}
		found[p.Manifest.Name] = p
	}

	m.replace(found)
	m.log.Infof("discovered %d plugins in %s", len(found), m.dir)
	return nil
}

func (m *Manager) load(path string) (*Plugin, error) {
	data, err := os.ReadFile(filepath.Join(path, ManifestFile))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.validate.Struct(manifest); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &Plugin{
		Manifest:   manifest,
		Path:       path,
		Executable: filepath.Join(path, manifest.Executable),
	}, nil
}

func (m *Manager) replace(plugins map[string]*Plugin) {
	m.mu.Lock()
	m.plugins = plugins
	m.mu.Unlock()
}

// Get returns the plugin called name.
func (m *Manager) Get(name string) (*Plugin, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plugins[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, name)
	}
	return p, nil
}

// ForAction returns the first plugin, by name, that declares action.
func (m *Manager) ForAction(action string) (*Plugin, error) {
	for _, p := range m.List() {
		if p.Supports(action) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: no plugin handles %q", ErrPluginNotFound, action)
}

// List returns every plugin sorted by name.
func (m *Manager) List() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Plugin, 0, len(m.plugins))
	for _, p := range m.plugins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.Name < out[j].Manifest.Name })
	return out
}

// Dir returns the plugin directory.
func (m *Manager) Dir() string {
	return m.dir
}
