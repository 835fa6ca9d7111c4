package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"wingman/internal/domain"
)

// DefaultRecorderBuffer is the number of frames queued before Write drops.
const DefaultRecorderBuffer = 256

// Recorder captures assistant output audio and exports it as WAV. Write never
// blocks: frames go through a bounded channel and are dropped when it is full.
type Recorder struct {
	dir     string
	bufSize int
	logger  *slog.Logger

	mu     sync.Mutex
	active bool
	codec  domain.Codec
	frames chan []byte
	done   chan struct{}
	pcm    bytes.Buffer

	dropped atomic.Int64
}

// NewRecorder creates a recorder that exports into dir.
func NewRecorder(dir string, bufSize int, logger *slog.Logger) *Recorder {
	if bufSize <= 0 {
		bufSize = DefaultRecorderBuffer
	}
	return &Recorder{dir: dir, bufSize: bufSize, logger: logger}
}

// Start begins a new capture for codec, discarding the previous one.
func (r *Recorder) Start(codec domain.Codec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return
	}
	r.active = true
	r.codec = codec
	r.pcm.Reset()
	r.dropped.Store(0)
	r.frames = make(chan []byte, r.bufSize)
	r.done = make(chan struct{})
	go r.drain(codec, r.frames, r.done)
}

func (r *Recorder) drain(codec domain.Codec, frames <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for frame := range frames {
		pcm := ToPCM16(codec, frame)
		r.mu.Lock()
		r.pcm.Write(pcm)
		r.mu.Unlock()
	}
}

// Write queues frame. It is a no-op while stopped.
func (r *Recorder) Write(frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.active {
		return
	}
	select {
	case r.frames <- frame:
	default:
		r.dropped.Add(1)
	}
}

// Stop ends the capture. Captured audio stays available to Export.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.active {
		r.mu.Unlock()
		return
	}
	r.active = false
	close(r.frames)
	done := r.done
	r.mu.Unlock()

	<-done
	if n := r.dropped.Load(); n > 0 {
		r.logger.Warn("recorder dropped frames", "count", n)
	}
}

// Active reports whether a capture is running.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Dropped returns the number of frames dropped by the current capture.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Export writes the captured audio to <dir>/<name>.wav.
func (r *Recorder) Export(_ context.Context, name string) (string, error) {
	r.mu.Lock()
	if r.pcm.Len() == 0 {
		r.mu.Unlock()
		return "", domain.NewDomainError("Recorder.Export", domain.ErrRecorderInactive, "")
	}
	pcm := append([]byte(nil), r.pcm.Bytes()...)
	rate := r.codec.SampleRate()
	r.mu.Unlock()

	if err := os.MkdirAll(r.dir, 0700); err != nil {
		return "", domain.WrapOp("Recorder.Export", err)
	}
	path := filepath.Join(r.dir, filepath.Base(name)+".wav")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, PCMToWAV(pcm, rate), 0600); err != nil {
		return "", domain.WrapOp("Recorder.Export", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", domain.WrapOp("Recorder.Export", fmt.Errorf("rename: %w", err))
	}
	r.logger.Info("recording exported", "path", path, "bytes", len(pcm))
	return path, nil
}

var _ domain.Recorder = (*Recorder)(nil)
