package audio

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/domain"
	"wingman/internal/usecase/eventbus"
)

var discard = slog.New(slog.DiscardHandler)

func TestDecodeMulaw(t *testing.T) {
	assert.Equal(t, int16(0), decodeMulaw(0xFF))
	assert.Equal(t, int16(-32124), decodeMulaw(0x00))
	assert.Equal(t, int16(32124), decodeMulaw(0x80))
}

func TestDecodeAlaw(t *testing.T) {
	assert.Equal(t, int16(8), decodeAlaw(0xD5))
	assert.Equal(t, int16(-8), decodeAlaw(0x55))
}

func TestToPCM16(t *testing.T) {
	frame := []byte{0x01, 0x02, 0x03, 0x04}
	assert.Equal(t, frame, ToPCM16(domain.CodecOpus, frame))

	pcm := ToPCM16(domain.CodecPCMU, []byte{0xFF, 0x00})
	require.Len(t, pcm, 4)
	assert.Equal(t, int16(0), int16(binary.LittleEndian.Uint16(pcm[0:2])))
	assert.Equal(t, int16(-32124), int16(binary.LittleEndian.Uint16(pcm[2:4])))

	pcm = ToPCM16(domain.CodecPCMA, []byte{0xD5})
	assert.Equal(t, int16(8), int16(binary.LittleEndian.Uint16(pcm)))
}

func TestPCMToWAVHeader(t *testing.T) {
	wav := PCMToWAV(make([]byte, 480), 24000)
	require.Len(t, wav, 44+480)
	assert.Equal(t, "RIFF", string(wav[0:4]))
	assert.Equal(t, uint32(36+480), binary.LittleEndian.Uint32(wav[4:8]))
	assert.Equal(t, "WAVE", string(wav[8:12]))
	assert.Equal(t, uint16(1), binary.LittleEndian.Uint16(wav[22:24]))
	assert.Equal(t, uint32(24000), binary.LittleEndian.Uint32(wav[24:28]))
	assert.Equal(t, uint32(48000), binary.LittleEndian.Uint32(wav[28:32]))
	assert.Equal(t, uint16(16), binary.LittleEndian.Uint16(wav[34:36]))
	assert.Equal(t, uint32(480), binary.LittleEndian.Uint32(wav[40:44]))
}

func TestRecorderExport(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(dir, 8, discard)

	r.Start(domain.CodecPCMU)
	assert.True(t, r.Active())
	r.Write([]byte{0xFF, 0xFF})
	r.Write([]byte{0xFF})
	r.Stop()
	assert.False(t, r.Active())

	path, err := r.Export(context.Background(), "wingman-s1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "wingman-s1.wav"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Len(t, data, 44+6)
	assert.Equal(t, uint32(8000), binary.LittleEndian.Uint32(data[24:28]))
}

func TestRecorderExportEmpty(t *testing.T) {
	r := NewRecorder(t.TempDir(), 8, discard)
	_, err := r.Export(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrRecorderInactive)

	r.Start(domain.CodecOpus)
	r.Stop()
	_, err = r.Export(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrRecorderInactive)
}

func TestRecorderIgnoresWritesWhileStopped(t *testing.T) {
	r := NewRecorder(t.TempDir(), 8, discard)
	r.Write([]byte{1, 2})
	r.Stop()
	_, err := r.Export(context.Background(), "x")
	assert.ErrorIs(t, err, domain.ErrRecorderInactive)
}

func TestRecorderRestartDiscardsPrevious(t *testing.T) {
	r := NewRecorder(t.TempDir(), 8, discard)
	r.Start(domain.CodecOpus)
	r.Write([]byte{1, 2, 3, 4})
	r.Stop()

	r.Start(domain.CodecOpus)
	r.Write([]byte{5, 6})
	r.Stop()

	path, err := r.Export(context.Background(), "x")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6}, data[44:])
}

func TestRecorderWriteNeverBlocks(t *testing.T) {
	r := NewRecorder(t.TempDir(), 1, discard)
	r.Start(domain.CodecOpus)
	defer r.Stop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			r.Write([]byte{0, 0})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Write blocked")
	}
}

func TestBusSink(t *testing.T) {
	bus := eventbus.New(discard)
	defer bus.Close()

	var mu sync.Mutex
	var got []domain.Event
	bus.Subscribe(domain.EventAudioOutput, func(_ context.Context, ev domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(got)
	}

	s := NewBusSink(bus, "alice")
	s.Write([]byte{1, 2, 3})
	require.Eventually(t, func() bool { return count() == 1 }, time.Second, 5*time.Millisecond)

	s.SetMuted(true)
	s.Write([]byte{4})
	s.SetMuted(false)
	s.SetPaused(true)
	s.Write([]byte{5})
	assert.True(t, s.Paused())
	s.SetPaused(false)
	s.Write([]byte{6})
	require.Eventually(t, func() bool { return count() == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "alice", got[0].Owner)
	var p audioPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &p))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{1, 2, 3}), p.Audio)
	require.NoError(t, json.Unmarshal(got[1].Payload, &p))
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{6}), p.Audio)
}
