package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Pruner evicts old recordings from the temp directory by age and count.
// It only considers files it created (recording-*, upload-*) and never
// removes the file of the session currently being written.
type Pruner struct {
	dir       string
	retention time.Duration
	maxFiles  int
	interval  time.Duration
	active    func() string
	log       zerolog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

// NewPruner creates a pruner. active reports the in-progress recording path
// and may be nil.
func NewPruner(dir string, retention time.Duration, maxFiles int, active func() string, log zerolog.Logger) *Pruner {
	return &Pruner{
		dir:       dir,
		retention: retention,
		maxFiles:  maxFiles,
		interval:  10 * time.Minute,
		active:    active,
		log:       log.With().Str("component", "pruner").Logger(),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (p *Pruner) Start() {
	go p.loop()
}

// Stop ends the loop and waits for an in-flight prune to finish.
func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
	<-p.done
}

func (p *Pruner) loop() {
	defer close(p.done)

	// Run once on startup to clear leftovers from previous runs
	p.Prune()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.Prune()
		case <-p.stop:
			return
		}
	}
}

// Prune runs one eviction pass and returns the number of files removed.
func (p *Pruner) Prune() int {
	if p.retention == 0 && p.maxFiles == 0 {
		return 0
	}

	active := ""
	if p.active != nil {
		active = p.active()
	}

	type fileEntry struct {
		path    string
		modTime time.Time
		size    int64
	}
	var files []fileEntry

	entries, err := os.ReadDir(p.dir)
	if err != nil {
		p.log.Warn().Err(err).Str("dir", p.dir).Msg("read temp dir failed")
		return 0
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, recordingPrefix) || strings.HasPrefix(name, uploadPrefix)) {
			continue
		}
		path := filepath.Join(p.dir, name)
		if path == active {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{path: path, modTime: info.ModTime(), size: info.Size()})
	}

	// Newest first so the count limit keeps the most recent recordings.
	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.After(files[j].modTime)
	})

	cutoff := time.Now().Add(-p.retention)
	var prunedCount int
	var prunedBytes int64
	for i, f := range files {
		expired := p.retention > 0 && f.modTime.Before(cutoff)
		overCount := p.maxFiles > 0 && i >= p.maxFiles
		if !expired && !overCount {
			continue
		}
		if err := os.Remove(f.path); err == nil {
			prunedCount++
			prunedBytes += f.size
		}
	}

	if prunedCount > 0 {
		p.log.Info().
			Int("pruned", prunedCount).
			Str("freed", humanizeBytes(prunedBytes)).
			Msg("temp dir prune complete")
	}
	return prunedCount
}

func humanizeBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case b >= GB:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
