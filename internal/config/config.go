package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Default configuration values
const (
	DefaultListenAddr   = ":8080"
	DefaultSignalingURL = "ws://localhost:8080/ws"
	DefaultSTUN         = "stun:stun.l.google.com:19302"
	DefaultChunkSize    = 64 * 1024
	DefaultReadyDelay   = 500 * time.Millisecond
	DefaultOutputDir    = "."

	// MaxChunkSize keeps chunks under the SCTP message size browsers accept.
	MaxChunkSize = 256 * 1024
)

var (
	ErrRelayWithoutTURN = errors.New("cannot force relay mode without TURN server configured")
	ErrInvalidChunkSize = errors.New("invalid chunk size")
)

// Config holds application configuration
type Config struct {
	// ListenAddr is where `serve` binds the signaling server
	ListenAddr string

	// SignalingURL is the WebSocket endpoint peers dial
	SignalingURL string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	// ChunkSize is the binary frame size used by the transfer engine
	ChunkSize int

	// ReadyDelay is how long a receiver waits after joining before announcing itself
	ReadyDelay time.Duration

	// OutputDir is where received files are written
	OutputDir string

	// Tagged enables id-tagged chunk frames on outgoing transfers
	Tagged bool
}

// Options for loading config with CLI flag overrides
type Options struct {
	ListenAddr   string
	SignalingURL string
	STUNServer   string
	TURNServer   string
	TURNUser     string
	TURNPass     string
	ForceRelay   bool
	ChunkSize    int
	OutputDir    string
	Tagged       bool
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	signalingURL, err := NormalizeURL(pick(opts.SignalingURL, "SIGNALING_URL", DefaultSignalingURL))
	if err != nil {
		return nil, err
	}

	chunkSize := opts.ChunkSize
	if chunkSize == 0 {
		if raw := os.Getenv("CHUNK_SIZE"); raw != "" {
			if chunkSize, err = strconv.Atoi(raw); err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidChunkSize, raw)
			}
		} else {
			chunkSize = DefaultChunkSize
		}
	}
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidChunkSize, chunkSize, MaxChunkSize)
	}

	readyDelay := DefaultReadyDelay
	if raw := os.Getenv("READY_DELAY"); raw != "" {
		if readyDelay, err = time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("invalid READY_DELAY %q: %w", raw, err)
		}
	}

	cfg := &Config{
		ListenAddr:   pick(opts.ListenAddr, "LISTEN_ADDR", DefaultListenAddr),
		SignalingURL: signalingURL,
		STUNServer:   pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:   pick(opts.TURNServer, "TURN_SERVER", ""),
		TURNUser:     pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:     pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:   opts.ForceRelay,
		ChunkSize:    chunkSize,
		ReadyDelay:   readyDelay,
		OutputDir:    pick(opts.OutputDir, "OUTPUT_DIR", DefaultOutputDir),
		Tagged:       opts.Tagged || envBool("TAGGED_CHUNKS"),
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, ErrRelayWithoutTURN
	}

	return cfg, nil
}

// pick returns flag if set, else the environment variable, else def.
func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func envBool(env string) bool {
	v, err := strconv.ParseBool(os.Getenv(env))
	return err == nil && v
}

// NormalizeURL turns "host", "host:port", "ws://host:port" or a full URL
// into a WebSocket URL. A missing path defaults to /ws.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty signaling URL")
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid signaling URL: %s", raw)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported signaling URL scheme %q", u.Scheme)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(c.TURNServer, "turn:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.TURNUser, c.TURNPass
}
