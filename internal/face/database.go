package face

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/facegift/internal/logging"
)

// FileEncoding encodes the first face found in an image file. *FileEncoder implements it.
type FileEncoding interface {
	EncodeFile(path string) (Encoding, error)
}

// Database holds known faces loaded from a directory laid out as
// <dir>/<person name>/<photo>. Encodings are cached in a JSON file.
type Database struct {
	dir       string
	cacheFile string
	encoder   FileEncoding
	log       *zap.SugaredLogger

	mu    sync.RWMutex
	faces []KnownFace
}

type encodingCache struct {
	Names     []string   `json:"names"`
	Encodings []Encoding `json:"encodings"`
}

// NewDatabase creates an empty database. Call Load to populate it.
func NewDatabase(dir, cacheFile string, encoder FileEncoding, log *zap.SugaredLogger) *Database {
	return &Database{
		dir:       dir,
		cacheFile: cacheFile,
		encoder:   encoder,
		log:       logging.OrNop(log),
	}
}

// Load reads the cache, falling back to encoding the photos on disk.
func (d *Database) Load() error {
	if faces, err := d.readCache(); err == nil {
		d.mu.Lock()
		d.faces = faces
		d.mu.Unlock()
		d.log.Infof("loaded %d known faces from cache", len(faces))
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		d.log.Warnf("known face cache unreadable, rebuilding: %v", err)
	}

	_, err := d.Rebuild(nil)
	return err
}

// ImagePaths lists every supported photo under the database directory.
func (d *Database) ImagePaths() ([]string, error) {
	people, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read known faces dir: %w", err)
	}

	var paths []string
	for _, p := range people {
		if !p.IsDir() {
			continue
		}
		personDir := filepath.Join(d.dir, p.Name())
		files, err := os.ReadDir(personDir)
		if err != nil {
			d.log.Warnf("read %s: %v", personDir, err)
			continue
		}
		for _, f := range files {
			if !f.IsDir() && IsSupportedImage(f.Name()) {
				paths = append(paths, filepath.Join(personDir, f.Name()))
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Rebuild re-encodes every photo and rewrites the cache. progress, if set,
// is called once per photo with the encoding error (nil on success).
// It returns the number of faces encoded.
func (d *Database) Rebuild(progress func(path string, err error)) (int, error) {
	paths, err := d.ImagePaths()
	if err != nil {
		return 0, err
	}

	var faces []KnownFace
	for _, path := range paths {
		name := filepath.Base(filepath.Dir(path))
		enc, err := d.encoder.EncodeFile(path)
		if err != nil {
			d.log.Warnf("skip %s: %v", path, err)
		} else {
			faces = append(faces, KnownFace{Name: name, Encoding: enc})
		}
		if progress != nil {
			progress(path, err)
		}
	}

	d.mu.Lock()
	d.faces = faces
	d.mu.Unlock()

	d.log.Infof("encoded %d known faces from %d photos", len(faces), len(paths))

	if len(faces) > 0 {
		if err := d.writeCache(); err != nil {
			return len(faces), err
		}
	}
	return len(faces), nil
}

// Add encodes imagePath as name. With copyImage the photo is copied into
// the person's directory so later rebuilds keep it.
func (d *Database) Add(imagePath, name string, copyImage bool) error {
	if name == "" {
		return errors.New("person name is required")
	}

	enc, err := d.encoder.EncodeFile(imagePath)
	if err != nil {
		return fmt.Errorf("encode %s: %w", imagePath, err)
	}

	if copyImage {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("read %s: %w", imagePath, err)
		}
		personDir := filepath.Join(d.dir, name)
		if err := os.MkdirAll(personDir, 0755); err != nil {
			return fmt.Errorf("create person dir: %w", err)
		}
		if err := os.WriteFile(filepath.Join(personDir, filepath.Base(imagePath)), data, 0644); err != nil {
			return fmt.Errorf("copy photo: %w", err)
		}
	}

	d.mu.Lock()
	d.faces = append(d.faces, KnownFace{Name: name, Encoding: enc})
	d.mu.Unlock()

	return d.writeCache()
}

// Known returns a copy of all known faces.
func (d *Database) Known() []KnownFace {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]KnownFace, len(d.faces))
	for i, f := range d.faces {
		out[i] = KnownFace{Name: f.Name, Encoding: f.Encoding.Clone()}
	}
	return out
}

// Count returns the number of known encodings.
func (d *Database) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.faces)
}

// People returns the distinct names, sorted.
func (d *Database) People() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]bool)
	var names []string
	for _, f := range d.faces {
		if !seen[f.Name] {
			seen[f.Name] = true
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

// ClearCache removes the cache file. In-memory faces are kept.
func (d *Database) ClearCache() error {
	if err := os.Remove(d.cacheFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove encodings cache: %w", err)
	}
	return nil
}

func (d *Database) readCache() ([]KnownFace, error) {
	data, err := os.ReadFile(d.cacheFile)
	if err != nil {
		return nil, err
	}

	var c encodingCache
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse encodings cache: %w", err)
	}
	if len(c.Names) != len(c.Encodings) {
		return nil, fmt.Errorf("encodings cache has %d names for %d encodings", len(c.Names), len(c.Encodings))
	}

	faces := make([]KnownFace, len(c.Names))
	for i := range c.Names {
		faces[i] = KnownFace{Name: c.Names[i], Encoding: c.Encodings[i]}
	}
	return faces, nil
}

func (d *Database) writeCache() error {
	d.mu.RLock()
	c := encodingCache{
		Names:     make([]string, len(d.faces)),
		Encodings: make([]Encoding, len(d.faces)),
	}
	for i, f := range d.faces {
		c.Names[i] = f.Name
		c.Encodings[i] = f.Encoding
	}
	data, err := json.Marshal(c)
	d.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal encodings cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(d.cacheFile), 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(d.cacheFile, data, 0644); err != nil {
		return fmt.Errorf("write encodings cache: %w", err)
	}
	return nil
}
