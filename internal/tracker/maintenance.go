package tracker

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const backupLayout = "20060102_150405"

// Backup copies the registry file next to itself as
// face_registry_backup_YYYYMMDD_HHMMSS.json. It returns "" when there is
// no registry to back up.
func Backup(registryPath string, now time.Time) (string, error) {
	src, err := os.Open(registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("open registry: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("face_registry_backup_%s.json", now.Format(backupLayout))
	dst := filepath.Join(filepath.Dir(registryPath), name)

	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create backup: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return "", fmt.Errorf("copy registry: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close backup: %w", err)
	}
	return dst, nil
}

// ResetFile backs up the registry and replaces it with an empty one.
// Saved face images are not touched. It returns the backup path.
func ResetFile(registryPath string, now time.Time) (string, error) {
	backup, err := Backup(registryPath, now)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(registryPath), 0755); err != nil {
		return "", fmt.Errorf("create registry directory: %w", err)
	}
	if err := os.WriteFile(registryPath, []byte("{}\n"), 0644); err != nil {
		return "", fmt.Errorf("write empty registry: %w", err)
	}
	return backup, nil
}

// ListFile reads a registry file and returns its records sorted by id. A
// missing file is an empty registry.
func ListFile(registryPath string) ([]*Record, error) {
	data, err := os.ReadFile(registryPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read registry: %w", err)
	}

	reg, _, err := decodeRegistry(data)
	if err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	out := make([]*Record, 0, len(reg))
	for _, rec := range reg {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
