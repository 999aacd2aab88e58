package audio

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, path string, rate, channels, samples int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: rate, NumChannels: channels},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	rec := filepath.Join(dir, "recording-1.wav")
	if err := os.WriteFile(rec, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		tempDir string
		path    string
		want    string
	}{
		{"absolute", dir, rec, rec},
		{"relative_to_temp", dir, "recording-1.wav", rec},
		{"basename_fallback", dir, "/elsewhere/recording-1.wav", rec},
		{"missing", dir, "nope.wav", ""},
		{"empty", dir, "", ""},
		{"directory_is_not_a_file", dir, "sub", ""},
		{"no_temp_dir", "", rec, rec},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveFile(tt.tempDir, tt.path); got != tt.want {
				t.Errorf("ResolveFile(%q, %q) = %q, want %q", tt.tempDir, tt.path, got, tt.want)
			}
		})
	}
}

func TestReadInfo(t *testing.T) {
	dir := t.TempDir()

	t.Run("one_second_mono", func(t *testing.T) {
		path := filepath.Join(dir, "a.wav")
		writeWAV(t, path, 16000, 1, 16000)
		info, err := ReadInfo(path)
		if err != nil {
			t.Fatalf("ReadInfo: %v", err)
		}
		if info.SampleRate != 16000 || info.Channels != 1 || info.BitDepth != 16 {
			t.Errorf("format = %+v", info)
		}
		if info.DurationMs != 1000 {
			t.Errorf("duration = %dms, want 1000", info.DurationMs)
		}
	})

	t.Run("not_wav", func(t *testing.T) {
		path := filepath.Join(dir, "b.wav")
		if err := os.WriteFile(path, []byte("definitely not riff data"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadInfo(path); !errors.Is(err, ErrNotWAV) {
			t.Errorf("err = %v, want ErrNotWAV", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		if _, err := ReadInfo(filepath.Join(dir, "none.wav")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("err = %v, want not exist", err)
		}
	})
}
