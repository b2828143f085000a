package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerdrop/peerdrop/internal/config"
	"github.com/peerdrop/peerdrop/internal/session"
	"github.com/peerdrop/peerdrop/internal/transfer"
	"github.com/peerdrop/peerdrop/internal/webrtc"
)

type countingObserver struct {
	session.NopObserver
	logs []string
}

func (c *countingObserver) OnLog(message string) { c.logs = append(c.logs, message) }

// completeEmptyFile drives a receiver so obs sees one finished zero-byte file.
func completeEmptyFile(t *testing.T, obs transfer.Observer, id, name string) {
	t.Helper()
	meta := `{"type":"meta","id":"` + id + `","name":"` + name + `","size":0,"fileType":"text/plain"}`
	require.NoError(t, transfer.NewReceiver(obs).Handle(webrtc.Message{IsString: true, Data: []byte(meta)}))
}

func failingDialer() session.Dialer {
	return session.DialerFunc(func(context.Context) (session.SignalConn, error) {
		return nil, errors.New("connection refused")
	})
}

func TestTapForwardsToAttachedTarget(t *testing.T) {
	tp := newTap()
	tp.OnLog("before attach")
	assert.Equal(t, "before attach", tp.reason())

	target := &countingObserver{}
	tp.attach(target)
	tp.OnLog("after attach")

	assert.Equal(t, []string{"after attach"}, target.logs)
	assert.Equal(t, "after attach", tp.reason())
}

func TestTapTracksInFlightTransfers(t *testing.T) {
	tp := newTap()
	tp.OnTransferAdded(transfer.Item{ID: "a"})
	tp.OnTransferAdded(transfer.Item{ID: "b"})
	assert.Equal(t, 2, tp.inFlight())

	completeEmptyFile(t, tp, "c", "empty.txt")
	// The receiver announces c before completing it.
	assert.Equal(t, 2, tp.inFlight())

	hs := tp.takeCompleted()
	require.Len(t, hs, 1)
	assert.Equal(t, "empty.txt", hs[0].Name)
	assert.Empty(t, tp.takeCompleted())
}

func TestLoadConfigMergesGlobalFlags(t *testing.T) {
	t.Setenv("SIGNALING_URL", "")
	t.Setenv("TURN_SERVER", "")
	flagServer, flagTURN, flagRelay = "10.0.0.5:9000", "turn.example.com", true
	t.Cleanup(func() { flagServer, flagTURN, flagRelay = "", "", false })

	cfg, err := loadConfig(config.Options{OutputDir: "/tmp/in"})
	require.NoError(t, err)
	assert.Equal(t, "ws://10.0.0.5:9000/ws", cfg.SignalingURL)
	assert.True(t, cfg.ForceRelay)
	assert.Equal(t, "/tmp/in", cfg.OutputDir)
}

func TestLoadConfigRejectsRelayWithoutTURN(t *testing.T) {
	t.Setenv("TURN_SERVER", "")
	flagRelay = true
	t.Cleanup(func() { flagRelay = false })

	_, err := loadConfig(config.Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrRelayWithoutTURN)
}

func TestWaitConnectedReportsFailure(t *testing.T) {
	tp := newTap()
	o := session.New(session.Deps{Dialer: failingDialer(), Observer: tp}, session.Options{})
	defer o.Close()

	_, err := o.Initiate(context.Background())
	require.Error(t, err)

	err = waitConnected(context.Background(), o, tp)
	require.Error(t, err)
	assert.ErrorIs(t, err, errFailed)
}

func TestWaitConnectedTreatsIdleAsCancelled(t *testing.T) {
	tp := newTap()
	o := session.New(session.Deps{Dialer: failingDialer(), Observer: tp}, session.Options{})
	defer o.Close()

	err := waitConnected(context.Background(), o, tp)
	assert.ErrorIs(t, err, errCancelled)
}

func TestCollectSavesCompletedFiles(t *testing.T) {
	dir := t.TempDir()
	tp := newTap()
	o := session.New(session.Deps{Dialer: failingDialer()}, session.Options{})
	defer o.Close()

	completeEmptyFile(t, tp, "a", "notes.txt")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	saved, total, err := collect(ctx, o, tp, dir)
	require.NoError(t, err)
	assert.Zero(t, total)
	require.Len(t, saved, 1)
	assert.Equal(t, filepath.Join(dir, "notes.txt"), saved[0])

	_, statErr := os.Stat(saved[0])
	assert.NoError(t, statErr)
}

func TestCollectFailsWithFilesInFlight(t *testing.T) {
	tp := newTap()
	o := session.New(session.Deps{Dialer: failingDialer()}, session.Options{})
	defer o.Close()

	tp.OnTransferAdded(transfer.Item{ID: "a", Name: "big.bin"})
	tp.OnLog("peer connection: transport failure (failed)")

	_, _, err := collect(context.Background(), o, tp, t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, transfer.ErrTransport)
}

func TestCollectWithoutFilesIsAnError(t *testing.T) {
	tp := newTap()
	o := session.New(session.Deps{Dialer: failingDialer()}, session.Options{})
	defer o.Close()

	_, _, err := collect(context.Background(), o, tp, t.TempDir())
	assert.Error(t, err)
}
