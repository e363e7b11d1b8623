package face

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// fakeFileEncoder maps file base names to encodings.
type fakeFileEncoder struct {
	encodings map[string]Encoding
	calls     int
}

func (f *fakeFileEncoder) EncodeFile(path string) (Encoding, error) {
	f.calls++
	enc, ok := f.encodings[filepath.Base(path)]
	if !ok {
		return nil, errors.New("no face found")
	}
	return enc, nil
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("img"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestDatabase_RebuildAndCache(t *testing.T) {
	dir := t.TempDir()
	known := filepath.Join(dir, "known_faces")
	cache := filepath.Join(dir, "data", "encodings.json")

	writeFile(t, filepath.Join(known, "alice", "a1.jpg"))
	writeFile(t, filepath.Join(known, "alice", "a2.png"))
	writeFile(t, filepath.Join(known, "bob", "b1.jpeg"))
	writeFile(t, filepath.Join(known, "bob", "notes.txt"))
	writeFile(t, filepath.Join(known, "carol", "blurry.jpg"))
	writeFile(t, filepath.Join(known, "stray.jpg"))

	enc := &fakeFileEncoder{encodings: map[string]Encoding{
		"a1.jpg":  {1, 0},
		"a2.png":  {0.9, 0.1},
		"b1.jpeg": {0, 1},
	}}

	db := NewDatabase(known, cache, enc, nil)

	var seen int
	n, err := db.Rebuild(func(path string, err error) { seen++ })
	if err != nil {
		t.Fatalf("Rebuild() failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Rebuild() encoded %d faces, want 3", n)
	}
	if seen != 4 {
		t.Errorf("progress called %d times, want 4", seen)
	}

	if db.Count() != 3 {
		t.Errorf("Count() = %d, want 3", db.Count())
	}
	people := db.People()
	if len(people) != 2 || people[0] != "alice" || people[1] != "bob" {
		t.Errorf("People() = %v", people)
	}

	// A fresh database loads from the cache without encoding anything.
	enc2 := &fakeFileEncoder{}
	db2 := NewDatabase(known, cache, enc2, nil)
	if err := db2.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if enc2.calls != 0 {
		t.Errorf("Load() should use the cache, encoded %d files", enc2.calls)
	}
	if db2.Count() != 3 {
		t.Errorf("cached Count() = %d, want 3", db2.Count())
	}

	if err := db2.ClearCache(); err != nil {
		t.Fatalf("ClearCache() failed: %v", err)
	}
	if _, err := os.Stat(cache); !os.IsNotExist(err) {
		t.Error("cache file should be removed")
	}
	if err := db2.ClearCache(); err != nil {
		t.Errorf("ClearCache() twice should not fail: %v", err)
	}
}

func TestDatabase_LoadCorruptCacheRebuilds(t *testing.T) {
	dir := t.TempDir()
	known := filepath.Join(dir, "known")
	cache := filepath.Join(dir, "cache.json")

	writeFile(t, filepath.Join(known, "dave", "d.jpg"))
	os.WriteFile(cache, []byte("{not json"), 0644)

	enc := &fakeFileEncoder{encodings: map[string]Encoding{"d.jpg": {1}}}
	db := NewDatabase(known, cache, enc, nil)
	if err := db.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if db.Count() != 1 || enc.calls != 1 {
		t.Errorf("expected rebuild from photos, Count=%d calls=%d", db.Count(), enc.calls)
	}
}

func TestDatabase_Add(t *testing.T) {
	dir := t.TempDir()
	known := filepath.Join(dir, "known")
	src := filepath.Join(dir, "upload", "eve.jpg")
	writeFile(t, src)

	enc := &fakeFileEncoder{encodings: map[string]Encoding{"eve.jpg": {0.5, 0.5}}}
	db := NewDatabase(known, filepath.Join(dir, "cache.json"), enc, nil)

	if err := db.Add(src, "eve", true); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(known, "eve", "eve.jpg")); err != nil {
		t.Errorf("photo should be copied: %v", err)
	}

	faces := db.Known()
	if len(faces) != 1 || faces[0].Name != "eve" {
		t.Fatalf("Known() = %+v", faces)
	}
	faces[0].Encoding[0] = 42
	if db.Known()[0].Encoding[0] == 42 {
		t.Error("Known() should return copies")
	}

	if err := db.Add(src, "", false); err == nil {
		t.Error("Add() without a name should fail")
	}

	missing := filepath.Join(dir, "nobody.jpg")
	if err := db.Add(missing, "x", false); err == nil {
		t.Error("Add() of an unencodable photo should fail")
	}
}

func TestDatabase_MissingDirIsEmpty(t *testing.T) {
	db := NewDatabase(filepath.Join(t.TempDir(), "nope"), filepath.Join(t.TempDir(), "c.json"), &fakeFileEncoder{}, nil)
	if err := db.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if db.Count() != 0 {
		t.Errorf("Count() = %d, want 0", db.Count())
	}
}
