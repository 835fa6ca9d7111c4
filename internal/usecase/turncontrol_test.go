package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wingman/internal/domain"
)

type turnFixture struct {
	tc       *TurnControl
	ctrl     *ConnectionController
	dialer   *mockDialer
	sink     *mockSink
	recorder *mockRecorder
	kv       *mockKV
}

func newTurnFixture(t *testing.T, connected bool) *turnFixture {
	t.Helper()
	f := &turnFixture{
		dialer:   &mockDialer{},
		sink:     &mockSink{},
		recorder: &mockRecorder{},
		kv:       newMockKV(),
	}
	f.ctrl = NewConnectionController(&mockCredentials{cred: "ek"}, f.dialer, discard, ConnectionControllerOptions{})
	f.tc = NewTurnControl(f.ctrl, f.sink, f.recorder, f.kv, discard)
	if connected {
		require.NoError(t, f.ctrl.Connect(context.Background(), ConnectRequest{}))
	}
	return f
}

func TestTurnPressAndRelease(t *testing.T) {
	f := newTurnFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.tc.PressTalk(ctx))
	assert.True(t, f.tc.Speaking())
	require.NoError(t, f.tc.ReleaseTalk(ctx))
	assert.False(t, f.tc.Speaking())

	conn := f.dialer.last()
	assert.Equal(t, []string{
		domain.ClientInputAudioClear,
		domain.ClientInputAudioCommit,
		domain.ClientResponseCreate,
	}, conn.types())
	assert.Equal(t, 1, conn.interrupted)
}

func TestTurnReleaseWithoutPressIsNoOp(t *testing.T) {
	f := newTurnFixture(t, true)
	require.NoError(t, f.tc.ReleaseTalk(context.Background()))
	assert.Empty(t, f.dialer.last().events())
}

func TestTurnPressIgnoredWhenDisconnected(t *testing.T) {
	f := newTurnFixture(t, false)
	require.NoError(t, f.tc.PressTalk(context.Background()))
	assert.False(t, f.tc.Speaking())
}

func TestTurnSetPushToTalk(t *testing.T) {
	f := newTurnFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.tc.SetPushToTalk(ctx, false))
	require.NoError(t, f.tc.SetPushToTalk(ctx, true))

	events := f.dialer.last().events()
	require.Len(t, events, 2)

	vad, err := json.Marshal(events[0].Session)
	require.NoError(t, err)
	assert.JSONEq(t, `{"turn_detection":{"type":"server_vad","threshold":0.9,"prefix_padding_ms":300,"silence_duration_ms":500,"create_response":true}}`, string(vad))

	ptt, err := json.Marshal(events[1].Session)
	require.NoError(t, err)
	assert.JSONEq(t, `{"turn_detection":null}`, string(ptt))
}

func TestTurnSetPushToTalkDisconnectedOnlyPersists(t *testing.T) {
	f := newTurnFixture(t, false)
	require.NoError(t, f.tc.SetPushToTalk(context.Background(), false))

	var prefs domain.Preferences
	require.NoError(t, json.Unmarshal(f.kv.raw(domain.PreferencesKey(domain.DefaultOwner)), &prefs))
	assert.False(t, prefs.PushToTalk)
	assert.True(t, prefs.Playback)
}

func TestTurnPlayback(t *testing.T) {
	f := newTurnFixture(t, true)

	f.tc.SetPlayback(false)
	assert.True(t, f.sink.muted)
	assert.True(t, f.sink.paused)
	assert.True(t, f.dialer.last().isMuted())

	f.tc.SetPlayback(true)
	assert.False(t, f.sink.muted)
	assert.False(t, f.dialer.last().isMuted())
}

func TestTurnLoadPreferences(t *testing.T) {
	f := newTurnFixture(t, false)
	f.kv.data[domain.PreferencesKey("ae-1")] = []byte(`{"pushToTalkUI":false,"audioPlaybackEnabled":false}`)
	f.kv.data[domain.PreferencesKey("ae-2")] = []byte(`not json`)

	prefs := f.tc.LoadPreferences(context.Background(), "ae-1")
	assert.Equal(t, domain.Preferences{}, prefs)
	assert.True(t, f.sink.muted)

	prefs = f.tc.LoadPreferences(context.Background(), "ae-2")
	assert.Equal(t, domain.DefaultPreferences(), prefs)

	prefs = f.tc.LoadPreferences(context.Background(), "ae-3")
	assert.Equal(t, domain.DefaultPreferences(), prefs)
	assert.False(t, f.sink.muted)
}

func TestTurnDefaultPreferencesApplyWhenUnset(t *testing.T) {
	f := newTurnFixture(t, false)
	f.tc.SetDefaultPreferences(domain.Preferences{PushToTalk: false, Playback: true})
	f.kv.data[domain.PreferencesKey("ae-2")] = []byte(`{"pushToTalkUI":true,"audioPlaybackEnabled":false}`)

	prefs := f.tc.LoadPreferences(context.Background(), "ae-1")
	assert.Equal(t, domain.Preferences{PushToTalk: false, Playback: true}, prefs)

	prefs = f.tc.LoadPreferences(context.Background(), "ae-2")
	assert.Equal(t, domain.Preferences{PushToTalk: true, Playback: false}, prefs)
}

func TestTurnConnectLifecycle(t *testing.T) {
	f := newTurnFixture(t, true)
	f.tc.SetPlayback(false)

	// A fresh connection starts unmuted; OnConnected re-applies the preference.
	f.ctrl.Disconnect()
	f.tc.OnDisconnected()
	require.NoError(t, f.ctrl.Connect(context.Background(), ConnectRequest{}))
	f.tc.OnConnected(domain.CodecPCMU)

	assert.True(t, f.dialer.last().isMuted())
	assert.True(t, f.recorder.Active())
	assert.Equal(t, domain.CodecPCMU, f.recorder.codec)

	f.tc.OnAudio([]byte{1, 2})
	assert.Equal(t, 1, f.sink.frames)
	assert.Equal(t, 1, f.recorder.frames)

	require.NoError(t, f.tc.PressTalk(context.Background()))
	f.tc.OnDisconnected()
	assert.False(t, f.tc.Speaking())
	assert.False(t, f.recorder.Active())
}
