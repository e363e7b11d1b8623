// Package tracker assigns every distinct face a stable person_NNN identity
// and keeps the registry of those identities on disk.
package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/facegift/internal/face"
	"github.com/ayusman/facegift/internal/logging"
	"github.com/ayusman/facegift/internal/quality"
)

// ErrUnknownPerson is returned for ids that are not in the registry.
var ErrUnknownPerson = errors.New("unknown person")

const (
	idPrefix       = "person_"
	detectedSubdir = "detected_faces"
)

// Record is one tracked identity as persisted in the registry file.
type Record struct {
	ID             string          `json:"id"`
	FirstSeen      time.Time       `json:"first_seen"`
	LastSeen       time.Time       `json:"last_seen"`
	ImagePath      string          `json:"image_path"`
	EncodingHash   string          `json:"encoding_hash"`
	DetectionCount int             `json:"detection_count"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	PersonInfo     json.RawMessage `json:"person_info"`
	APICalled      bool            `json:"api_called"`
}

func (r *Record) clone() *Record {
	c := *r
	c.Metadata = cloneRaw(r.Metadata)
	c.PersonInfo = cloneRaw(r.PersonInfo)
	return &c
}

func cloneRaw(m json.RawMessage) json.RawMessage {
	if m == nil {
		return nil
	}
	return append(json.RawMessage(nil), m...)
}

// Statistics summarises the registry.
type Statistics struct {
	TotalUniqueFaces int `json:"total_unique_faces"`
	TotalDetections  int `json:"total_detections"`
	TrackedEncodings int `json:"tracked_encodings"`
}

// Config controls matching and where the registry lives.
type Config struct {
	// DataDir is the root that image paths in the registry are relative to.
	DataDir            string
	RegistryPath       string
	DuplicateThreshold float64
	CropPadding        int

	QualityGated   bool
	QualityFrames  int
	PendingTimeout time.Duration
	// MinSharpness flags committed crops below this score in the log.
	MinSharpness float64
}

// DefaultConfig returns the tracker defaults rooted at dataDir.
func DefaultConfig(dataDir string) Config {
	return Config{
		DataDir:            dataDir,
		RegistryPath:       filepath.Join(dataDir, "data", "face_registry.json"),
		DuplicateThreshold: 0.6,
		CropPadding:        20,
		QualityFrames:      5,
		PendingTimeout:     3 * time.Second,
	}
}

// Tracker matches encodings against the identities it has seen.
type Tracker struct {
	config    Config
	reencoder face.FileEncoding
	log       *zap.SugaredLogger
	now       func() time.Time

	mu        sync.Mutex
	registry  map[string]*Record
	encodings []face.Encoding
	ids       []string
	nextID    int

	collector *quality.Collector
}

// New loads the registry at config.RegistryPath. Stored crops are
// re-encoded with reencoder to rebuild the match set; a nil reencoder
// starts with an empty match set.
func New(config Config, reencoder face.FileEncoding, log *zap.SugaredLogger) *Tracker {
	t := &Tracker{
		config:    config,
		reencoder: reencoder,
		log:       logging.OrNop(log),
		now:       time.Now,
		registry:  make(map[string]*Record),
		nextID:    1,
	}
	if config.QualityGated {
		t.collector = quality.NewCollector(config.QualityFrames)
	}

	t.load()
	t.log.Infof("face tracker ready: %d tracked, threshold %.2f", len(t.registry), config.DuplicateThreshold)
	return t
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.config.RegistryPath)
	if err != nil {
		if !os.IsNotExist(err) {
			t.log.Warnf("read registry: %v", err)
		}
		return
	}

	reg, dropped, err := decodeRegistry(data)
	if err != nil {
		t.log.Errorf("registry %s is corrupt, starting empty: %v", t.config.RegistryPath, err)
		return
	}
	if dropped > 0 {
		t.log.Warnf("registry %s: dropped %d empty records", t.config.RegistryPath, dropped)
	}
	t.registry = reg

	for _, id := range t.sortedIDs() {
		if n, ok := parseID(id); ok && n >= t.nextID {
			t.nextID = n + 1
		}
		if t.reencoder == nil {
			continue
		}
		path := t.absPath(t.registry[id].ImagePath)
		enc, err := t.reencoder.EncodeFile(path)
		if err != nil {
			t.log.Warnf("could not re-encode %s from %s: %v", id, path, err)
			continue
		}
		t.encodings = append(t.encodings, enc)
		t.ids = append(t.ids, id)
	}
}

// decodeRegistry parses a registry file. Null records are dropped and
// counted; a record without an id takes its key.
func decodeRegistry(data []byte) (map[string]*Record, int, error) {
	var reg map[string]*Record
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, 0, err
	}
	out := make(map[string]*Record, len(reg))
	dropped := 0
	for id, rec := range reg {
		if rec == nil {
			dropped++
			continue
		}
		if rec.ID == "" {
			rec.ID = id
		}
		out[id] = rec
	}
	return out, dropped, nil
}

// Track records one detection. A detection within the duplicate threshold
// of a tracked identity re-observes it; otherwise a new identity is minted
// and its crop saved. The returned error reports persistence failures; the
// in-memory registry is updated regardless.
func (t *Tracker) Track(frame gocv.Mat, enc face.Encoding, loc face.Location) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id, ok := t.match(enc); ok {
		return id, false, t.reobserve(id)
	}

	crop, err := face.Crop(frame, loc, t.config.CropPadding)
	if err != nil {
		return "", false, err
	}
	defer crop.Close()

	id, err := t.commit(crop, enc)
	return id, id != "", err
}

func (t *Tracker) match(enc face.Encoding) (string, bool) {
	idx, d := face.Nearest(enc, t.encodings)
	if idx < 0 || d > t.config.DuplicateThreshold {
		return "", false
	}
	return t.ids[idx], true
}

func (t *Tracker) reobserve(id string) error {
	rec := t.registry[id]
	rec.DetectionCount++
	rec.LastSeen = t.now()
	return t.save()
}

// commit mints a new identity for crop. It returns "" only when the crop
// could not be written.
func (t *Tracker) commit(crop gocv.Mat, enc face.Encoding) (string, error) {
	id := formatID(t.nextID)
	rel := filepath.ToSlash(filepath.Join(detectedSubdir, id+".jpg"))
	if err := face.SaveImage(t.absPath(rel), crop); err != nil {
		return "", fmt.Errorf("save crop for %s: %w", id, err)
	}
	t.nextID++

	now := t.now()
	t.registry[id] = &Record{
		ID:             id,
		FirstSeen:      now,
		LastSeen:       now,
		ImagePath:      rel,
		EncodingHash:   enc.Hash(),
		DetectionCount: 1,
	}
	t.encodings = append(t.encodings, enc.Clone())
	t.ids = append(t.ids, id)

	t.log.Infof("new face saved: %s", id)
	return id, t.save()
}

// Get returns a copy of the record for id.
func (t *Tracker) Get(id string) (*Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.registry[id]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// ImageFile returns the absolute path of id's saved crop.
func (t *Tracker) ImageFile(id string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.registry[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPerson, id)
	}
	return t.absPath(rec.ImagePath), nil
}

// StorePersonInfo attaches looked-up info to id and marks it as looked up.
func (t *Tracker) StorePersonInfo(id string, info any) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode person info: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.registry[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPerson, id)
	}
	rec.PersonInfo = raw
	rec.APICalled = true
	return t.save()
}

// HasPersonInfo reports whether a lookup result was stored for id.
func (t *Tracker) HasPersonInfo(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.registry[id]
	return ok && rec.APICalled
}

// PersonInfo returns the stored lookup result for id, if any.
func (t *Tracker) PersonInfo(id string) (json.RawMessage, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.registry[id]
	if !ok || rec.PersonInfo == nil || string(rec.PersonInfo) == "null" {
		return nil, false
	}
	return cloneRaw(rec.PersonInfo), true
}

// Statistics returns registry totals.
func (t *Tracker) Statistics() Statistics {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Statistics{
		TotalUniqueFaces: len(t.registry),
		TrackedEncodings: len(t.encodings),
	}
	for _, rec := range t.registry {
		s.TotalDetections += rec.DetectionCount
	}
	return s
}

// List returns copies of every record, sorted by id.
func (t *Tracker) List() []*Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*Record, 0, len(t.registry))
	for _, id := range t.sortedIDs() {
		out = append(out, t.registry[id].clone())
	}
	return out
}

// Reset forgets every identity and persists the empty registry. Saved
// crops are left on disk.
func (t *Tracker) Reset() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.registry = make(map[string]*Record)
	t.encodings = nil
	t.ids = nil
	t.nextID = 1
	if t.collector != nil {
		t.collector.Close()
	}
	t.log.Info("face tracker reset")
	return t.save()
}

// Close releases buffered crops.
func (t *Tracker) Close() {
	if t.collector != nil {
		t.collector.Close()
	}
}

func (t *Tracker) save() error {
	data, err := json.MarshalIndent(t.registry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(t.config.RegistryPath), 0755); err != nil {
		t.log.Errorf("save registry: %v", err)
		return fmt.Errorf("create registry directory: %w", err)
	}
	if err := os.WriteFile(t.config.RegistryPath, data, 0644); err != nil {
		t.log.Errorf("save registry: %v", err)
		return fmt.Errorf("write registry: %w", err)
	}
	return nil
}

func (t *Tracker) sortedIDs() []string {
	ids := make([]string, 0, len(t.registry))
	for id := range t.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (t *Tracker) absPath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(t.config.DataDir, filepath.FromSlash(rel))
}

func formatID(n int) string {
	return fmt.Sprintf("%s%03d", idPrefix, n)
}

func parseID(id string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(id, idPrefix))
	if err != nil || !strings.HasPrefix(id, idPrefix) {
		return 0, false
	}
	return n, true
}
