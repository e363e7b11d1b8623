package face

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/proxy"

	"github.com/ayusman/facegift/internal/logging"
)

// ModelInfo describes a downloadable model file.
type ModelInfo struct {
	Name     string
	URLs     []string // tried in order
	Filename string
	MD5      string // optional
	Size     int64
}

// Models lists the files the face pipeline needs.
var Models = map[string]ModelInfo{
	"pigo-facefinder": {
		Name:     "Pigo face detector cascade",
		URLs:     []string{"https://raw.githubusercontent.com/esimov/pigo/master/cascade/facefinder"},
		Filename: "facefinder",
		Size:     51764,
	},
	"openface": {
		Name: "OpenFace nn4.small2.v1",
		URLs: []string{
			"https://storage.cmusatyalab.org/openface-models/nn4.small2.v1.t7",
			"https://raw.githubusercontent.com/pyannote/pyannote-data/master/openface.nn4.small2.v1.t7",
			"https://files.kde.org/digikam/facesengine/dnnface/openface_nn4.small2.v1.t7",
		},
		Filename: "nn4.small2.v1.t7",
		MD5:      "c95bfd8cc1adf05210e979ff623013b6",
		Size:     31510785,
	},
}

// ModelKeys returns the keys of Models, sorted.
func ModelKeys() []string {
	keys := make([]string, 0, len(Models))
	for k := range Models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ProgressFunc receives the bytes written so far and the expected total
// (-1 when unknown).
type ProgressFunc func(written, total int64)

// ModelDownloader fetches model files, optionally through a proxy.
type ModelDownloader struct {
	OutputDir  string
	ProxyURL   string // socks5://host:port or http(s)://host:port
	Timeout    time.Duration
	OnProgress ProgressFunc
	Log        *zap.SugaredLogger
}

// NewModelDownloader creates a downloader writing into outputDir.
func NewModelDownloader(outputDir string) *ModelDownloader {
	return &ModelDownloader{
		OutputDir: outputDir,
		Timeout:   10 * time.Minute,
	}
}

// Download fetches the model registered under key. An existing file with a
// matching checksum is kept.
func (md *ModelDownloader) Download(ctx context.Context, key string) (string, error) {
	model, ok := Models[key]
	if !ok {
		return "", fmt.Errorf("unknown model %q", key)
	}
	return md.DownloadModel(ctx, model)
}

// DownloadModel fetches model, trying each URL until one succeeds.
func (md *ModelDownloader) DownloadModel(ctx context.Context, model ModelInfo) (string, error) {
	log := logging.OrNop(md.Log)

	if err := os.MkdirAll(md.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(md.OutputDir, model.Filename)
	if _, err := os.Stat(outputPath); err == nil {
		if model.MD5 == "" || verifyMD5(outputPath, model.MD5) {
			log.Infof("%s already present at %s", model.Name, outputPath)
			return outputPath, nil
		}
		log.Warnf("%s failed verification, downloading again", outputPath)
		os.Remove(outputPath)
	}

	client, err := md.httpClient()
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, u := range model.URLs {
		log.Infof("downloading %s from %s", model.Name, u)
		if err := md.fetch(ctx, client, u, outputPath); err != nil {
			log.Warnf("download from %s failed: %v", u, err)
			lastErr = err
			continue
		}
		if model.MD5 != "" && !verifyMD5(outputPath, model.MD5) {
			os.Remove(outputPath)
			lastErr = fmt.Errorf("checksum mismatch for %s", u)
			continue
		}
		return outputPath, nil
	}
	return "", fmt.Errorf("download %s: %w", model.Name, lastErr)
}

func (md *ModelDownloader) fetch(ctx context.Context, client *http.Client, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %s", resp.Status)
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	var src io.Reader = resp.Body
	if md.OnProgress != nil {
		src = &progressReader{r: resp.Body, total: resp.ContentLength, fn: md.OnProgress}
	}

	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func (md *ModelDownloader) httpClient() (*http.Client, error) {
	client := &http.Client{Timeout: md.Timeout}
	if md.ProxyURL == "" {
		return client, nil
	}

	proxyURL, err := url.Parse(md.ProxyURL)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch proxyURL.Scheme {
	case "socks5":
		dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, nil, proxy.Direct)
		if err != nil {
			return nil, fmt.Errorf("create SOCKS5 dialer: %w", err)
		}
		cd, ok := dialer.(proxy.ContextDialer)
		if !ok {
			return nil, fmt.Errorf("SOCKS5 dialer does not support contexts")
		}
		client.Transport = &http.Transport{DialContext: cd.DialContext}
	case "http", "https":
		client.Transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme: %s (supported: socks5, http, https)", proxyURL.Scheme)
	}
	return client, nil
}

type progressReader struct {
	r       io.Reader
	total   int64
	written int64
	fn      ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}

func verifyMD5(path, expected string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == expected
}
