package face

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestModelDownloader_DownloadModel(t *testing.T) {
	payload := []byte("cascade-bytes")
	sum := md5.Sum(payload)

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if r.URL.Path == "/broken" {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write(payload)
	}))
	defer srv.Close()

	dir := t.TempDir()
	md := NewModelDownloader(dir)

	var lastWritten int64
	md.OnProgress = func(written, total int64) { lastWritten = written }

	model := ModelInfo{
		Name:     "test",
		URLs:     []string{srv.URL + "/broken", srv.URL + "/ok"},
		Filename: "model.bin",
		MD5:      hex.EncodeToString(sum[:]),
	}

	path, err := md.DownloadModel(context.Background(), model)
	if err != nil {
		t.Fatalf("DownloadModel() failed: %v", err)
	}
	if path != filepath.Join(dir, "model.bin") {
		t.Errorf("path = %q", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(payload) {
		t.Errorf("downloaded content = %q", data)
	}
	if lastWritten != int64(len(payload)) {
		t.Errorf("progress reported %d bytes, want %d", lastWritten, len(payload))
	}

	// A verified file is not fetched again.
	before := hits
	if _, err := md.DownloadModel(context.Background(), model); err != nil {
		t.Fatalf("second DownloadModel() failed: %v", err)
	}
	if hits != before {
		t.Error("existing verified file should not be re-downloaded")
	}
}

func TestModelDownloader_ChecksumMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	md := NewModelDownloader(dir)

	_, err := md.DownloadModel(context.Background(), ModelInfo{
		Name:     "bad",
		URLs:     []string{srv.URL},
		Filename: "bad.bin",
		MD5:      "00000000000000000000000000000000",
	})
	if err == nil {
		t.Fatal("expected checksum error")
	}
	if _, err := os.Stat(filepath.Join(dir, "bad.bin")); !os.IsNotExist(err) {
		t.Error("file with bad checksum should be removed")
	}
}

func TestModelDownloader_Proxy(t *testing.T) {
	tests := []struct {
		name    string
		proxy   string
		wantErr bool
	}{
		{"none", "", false},
		{"socks5", "socks5://127.0.0.1:1080", false},
		{"http", "http://127.0.0.1:3128", false},
		{"unsupported", "ftp://127.0.0.1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewModelDownloader(t.TempDir())
			md.ProxyURL = tt.proxy
			client, err := md.httpClient()
			if (err != nil) != tt.wantErr {
				t.Fatalf("httpClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.proxy != "" && client.Transport == nil {
				t.Error("proxy should install a transport")
			}
		})
	}
}

func TestModelDownloader_UnknownKey(t *testing.T) {
	md := NewModelDownloader(t.TempDir())
	if _, err := md.Download(context.Background(), "nope"); err == nil {
		t.Error("expected error for unknown model key")
	}
	if len(ModelKeys()) != len(Models) {
		t.Error("ModelKeys() should list every model")
	}
}
