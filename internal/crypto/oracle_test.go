package crypto

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sealGranted(t *testing.T, vault *Vault, value uint64) Handle {
	t.Helper()
	handle, err := vault.Seal(value)
	require.NoError(t, err)
	require.NoError(t, vault.Grant(handle, PrincipalOracle))
	return handle
}

func TestOracleDeliversPlaintextsInOrder(t *testing.T) {
	vault, err := NewVault()
	require.NoError(t, err)
	oracle := NewOracle(vault, 4, WithOracleLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = oracle.Start(ctx) }()

	handles := []Handle{
		sealGranted(t, vault, 100),
		sealGranted(t, vault, 5030),
		sealGranted(t, vault, 50),
	}

	done := make(chan []uint64, 1)
	require.NoError(t, oracle.RequestDecryption(handles, func(_ context.Context, values []uint64) {
		done <- values
	}))

	select {
	case values := <-done:
		assert.Equal(t, []uint64{100, 5030, 50}, values)
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestOracleDropsJobWithoutGrant(t *testing.T) {
	vault, err := NewVault()
	require.NoError(t, err)
	oracle := NewOracle(vault, 4, WithOracleLogger(discardLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = oracle.Start(ctx) }()

	// Sealed but never granted to the oracle.
	handle, err := vault.Seal(9)
	require.NoError(t, err)

	fired := make(chan struct{}, 1)
	require.NoError(t, oracle.RequestDecryption([]Handle{handle}, func(context.Context, []uint64) {
		fired <- struct{}{}
	}))

	select {
	case <-fired:
		t.Fatal("callback fired for an ungranted handle")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequestDecryptionValidation(t *testing.T) {
	vault, err := NewVault()
	require.NoError(t, err)
	oracle := NewOracle(vault, 1)

	require.Error(t, oracle.RequestDecryption(nil, func(context.Context, []uint64) {}))
	require.Error(t, oracle.RequestDecryption([]Handle{"h"}, nil))
}

func TestRequestDecryptionQueueFull(t *testing.T) {
	vault, err := NewVault()
	require.NoError(t, err)
	// Worker never started, so the single slot fills immediately.
	oracle := NewOracle(vault, 1)
	cb := func(context.Context, []uint64) {}

	require.NoError(t, oracle.RequestDecryption([]Handle{"a"}, cb))
	require.Error(t, oracle.RequestDecryption([]Handle{"b"}, cb))
}
