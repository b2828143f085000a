package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, env := range []string{"LISTEN_ADDR", "SIGNALING_URL", "STUN_SERVER", "TURN_SERVER", "CHUNK_SIZE", "READY_DELAY", "OUTPUT_DIR", "TAGGED_CHUNKS"} {
		t.Setenv(env, "")
	}

	cfg, err := Load(Options{})
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultSignalingURL, cfg.SignalingURL)
	assert.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, DefaultReadyDelay, cfg.ReadyDelay)
	assert.Equal(t, []string{DefaultSTUN}, cfg.GetSTUNServers())
	assert.Nil(t, cfg.GetTURNServers())
	assert.False(t, cfg.Tagged)
}

func TestLoadPrecedence(t *testing.T) {
	t.Setenv("SIGNALING_URL", "10.0.0.2:9000")
	t.Setenv("CHUNK_SIZE", "16384")
	t.Setenv("READY_DELAY", "50ms")
	t.Setenv("TAGGED_CHUNKS", "true")
	t.Setenv("OUTPUT_DIR", "/tmp/from-env")

	cfg, err := Load(Options{OutputDir: "/tmp/from-flag"})
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.2:9000/ws", cfg.SignalingURL)
	assert.Equal(t, 16384, cfg.ChunkSize)
	assert.Equal(t, 50*time.Millisecond, cfg.ReadyDelay)
	assert.True(t, cfg.Tagged)
	assert.Equal(t, "/tmp/from-flag", cfg.OutputDir)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("TURN_SERVER", "")

	_, err := Load(Options{ForceRelay: true})
	assert.ErrorIs(t, err, ErrRelayWithoutTURN)

	_, err = Load(Options{ChunkSize: MaxChunkSize + 1})
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	t.Setenv("CHUNK_SIZE", "lots")
	_, err = Load(Options{})
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "localhost:8080", want: "ws://localhost:8080/ws"},
		{in: "ws://192.168.1.5:8080", want: "ws://192.168.1.5:8080/ws"},
		{in: "https://signal.example.com", want: "wss://signal.example.com/ws"},
		{in: "ws://host:8080/custom", want: "ws://host:8080/custom"},
		{in: "ftp://host", wantErr: true},
		{in: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{TURNServer: "turn.example.com", TURNUser: "u", TURNPass: "p"}
	assert.Equal(t, []string{
		"turn:turn.example.com:3478?transport=udp",
		"turn:turn.example.com:3478?transport=tcp",
		"turns:turn.example.com:5349?transport=tcp",
	}, cfg.GetTURNServers())

	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)
}
