package hands

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestWriteFrame(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0xff, 0xd8, 0x01, 0x02, 0xff, 0xd9}

	if err := writeFrame(&buf, payload); err != nil {
		t.Fatalf("writeFrame() failed: %v", err)
	}

	out := buf.Bytes()
	if got := binary.BigEndian.Uint32(out[:4]); got != uint32(len(payload)) {
		t.Errorf("length prefix = %d, want %d", got, len(payload))
	}
	if !bytes.Equal(out[4:], payload) {
		t.Errorf("payload = %v, want %v", out[4:], payload)
	}
}

func TestReadHands(t *testing.T) {
	t.Run("hands", func(t *testing.T) {
		line := `{"hands":[{"handedness":"Left","score":0.9,"points":[{"x":0.1,"y":0.2,"z":0},{"x":0.3,"y":0.4,"z":0.1}]}]}` + "\n"
		got, err := readHands(bufio.NewReader(strings.NewReader(line)))
		if err != nil {
			t.Fatalf("readHands() failed: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("expected 1 hand, got %d", len(got))
		}
		if got[0].Handedness != "Left" || got[0].Score != 0.9 {
			t.Errorf("unexpected hand: %+v", got[0])
		}
		if got[0].Points[ThumbCMC].Y != 0.4 {
			t.Errorf("point 1 = %+v", got[0].Points[ThumbCMC])
		}
		if got[0].Points[PinkyTip] != (Point3D{}) {
			t.Error("missing points should stay zero")
		}
	})

	t.Run("no hands", func(t *testing.T) {
		got, err := readHands(bufio.NewReader(strings.NewReader("{\"hands\":[]}\n")))
		if err != nil || len(got) != 0 {
			t.Errorf("readHands() = (%v, %v)", got, err)
		}
	})

	t.Run("service error", func(t *testing.T) {
		_, err := readHands(bufio.NewReader(strings.NewReader("{\"error\":\"bad jpeg\"}\n")))
		if err == nil || !strings.Contains(err.Error(), "bad jpeg") {
			t.Errorf("expected service error, got %v", err)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := readHands(bufio.NewReader(strings.NewReader("nope\n"))); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("closed pipe", func(t *testing.T) {
		if _, err := readHands(bufio.NewReader(strings.NewReader(""))); err == nil {
			t.Error("expected read error")
		}
	})
}

func TestNewMediaPipeDetector(t *testing.T) {
	t.Run("explicit script", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.ScriptPath = "/opt/facegift/hand_service.py"
		cfg.PythonPath = "/usr/bin/python3"
		cfg.IdleTimeout = 0

		d, err := NewMediaPipeDetector(cfg, nil)
		if err != nil {
			t.Fatalf("NewMediaPipeDetector() failed: %v", err)
		}
		if d.scriptPath != cfg.ScriptPath || d.pythonPath != cfg.PythonPath {
			t.Errorf("paths = %q %q", d.scriptPath, d.pythonPath)
		}
		if d.config.IdleTimeout != DefaultConfig().IdleTimeout {
			t.Errorf("IdleTimeout = %v, want default", d.config.IdleTimeout)
		}
		if err := d.Close(); err != nil {
			t.Errorf("Close() before start should be a no-op: %v", err)
		}
	})

	t.Run("missing script", func(t *testing.T) {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(t.TempDir()); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chdir(wd) })
		t.Setenv("HOME", t.TempDir())

		if _, err := NewMediaPipeDetector(DefaultConfig(), nil); !errors.Is(err, ErrServiceNotFound) {
			t.Errorf("expected ErrServiceNotFound, got %v", err)
		}
	})
}

func TestMockDetector(t *testing.T) {
	mock := NewMockDetector()
	var _ Detector = mock

	if hands, err := mock.Detect(nil); err != nil || hands != nil {
		t.Errorf("default Detect() = (%v, %v)", hands, err)
	}

	mock.SetHands(SnapLandmarks(), OpenPalmLandmarks())
	hands, err := mock.Detect(nil)
	if err != nil || len(hands) != 2 {
		t.Errorf("Detect() = (%d hands, %v), want 2", len(hands), err)
	}

	boom := errors.New("detection failed")
	mock.SetError(boom)
	if _, err := mock.Detect(nil); err != boom {
		t.Errorf("expected configured error, got %v", err)
	}
}
