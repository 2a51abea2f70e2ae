package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"taifexflow/internal/frame"
	"taifexflow/logger"
)

func captureFile(t *testing.T, chunks ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.bin")
	var all []byte
	for _, c := range chunks {
		all = append(all, c...)
	}
	if err := os.WriteFile(path, all, 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	return path
}

func testFrame(t *testing.T, seq uint64) []byte {
	t.Helper()
	buf, err := frame.Encode('0', '1', "090000000000", 1, seq, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return buf
}

func collect(t *testing.T, path string) [][]byte {
	t.Helper()
	out := make(chan []byte, 64)
	p := NewPlayer(path, 0, out, logger.Logger())
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	close(out)
	var frames [][]byte
	for f := range out {
		frames = append(frames, f)
	}
	return frames
}

func TestPlayerEmitsAllFrames(t *testing.T) {
	path := captureFile(t, testFrame(t, 1), testFrame(t, 2), testFrame(t, 3))
	frames := collect(t, path)
	if len(frames) != 3 {
		t.Fatalf("emitted %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		parsed, err := frame.Validate(f)
		if err != nil {
			t.Fatalf("frame %d invalid: %v", i, err)
		}
		seq, _ := parsed.Header.ChannelSeq()
		if seq != uint64(i+1) {
			t.Fatalf("frame %d seq = %d", i, seq)
		}
	}
}

func TestPlayerSkipsInterstitialNoise(t *testing.T) {
	path := captureFile(t, []byte("noise"), testFrame(t, 1), []byte{0x00, 0x01}, testFrame(t, 2))
	if got := len(collect(t, path)); got != 2 {
		t.Fatalf("emitted %d frames, want 2", got)
	}
}

func TestPlayerTruncatedTail(t *testing.T) {
	full := testFrame(t, 1)
	path := captureFile(t, full, full[:10])
	if got := len(collect(t, path)); got != 1 {
		t.Fatalf("emitted %d frames, want 1", got)
	}
}
