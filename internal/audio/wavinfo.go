package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by ReadInfo for files without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// Info describes a WAV container.
type Info struct {
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	BitDepth   int           `json:"bit_depth"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
}

// ReadInfo reads the header of a WAV file and reports its format and length.
func ReadInfo(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Info{}, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}
	if err := d.FwdToPCM(); err != nil {
		return Info{}, fmt.Errorf("find PCM data in %s: %w", path, err)
	}

	var dur time.Duration
	bytesPerSec := int(d.SampleRate) * int(d.NumChans) * int(d.BitDepth) / 8
	if bytesPerSec > 0 {
		dur = time.Duration(float64(d.PCMSize) / float64(bytesPerSec) * float64(time.Second))
	}
	return Info{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
		Duration:   dur,
		DurationMs: dur.Milliseconds(),
	}, nil
}
