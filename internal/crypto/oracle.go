package crypto

import (
	"context"
	"log/slog"

	dErrors "attestor/pkg/domain-errors"
)

// Callback receives the plaintexts for a decryption request, in the same
// order as the handles were supplied.
type Callback func(ctx context.Context, values []uint64)

// Oracle is the trusted decryption service. It consumes fire-and-forget
// decryption jobs from a buffered queue and invokes the supplied callback
// with the plaintexts. No delivery order is guaranteed relative to other
// jobs; callers must tolerate out-of-order completion.
type Oracle struct {
	vault  *Vault
	jobs   chan decryptionJob
	logger *slog.Logger
}

type decryptionJob struct {
	handles  []Handle
	callback Callback
}

// OracleOption configures the Oracle.
type OracleOption func(*Oracle)

// WithOracleLogger sets a logger for delivery failures.
func WithOracleLogger(logger *slog.Logger) OracleOption {
	return func(o *Oracle) {
		o.logger = logger
	}
}

// NewOracle builds an oracle over the given vault with the given queue
// capacity.
func NewOracle(vault *Vault, buffer int, opts ...OracleOption) *Oracle {
	if buffer <= 0 {
		buffer = 64
	}
	o := &Oracle{
		vault:  vault,
		jobs:   make(chan decryptionJob, buffer),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// RequestDecryption queues a decryption job and returns immediately. The
// callback fires later from the oracle worker. The oracle must hold a grant
// on every handle or the job is dropped at delivery time.
func (o *Oracle) RequestDecryption(handles []Handle, callback Callback) error {
	if len(handles) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "no handles to decrypt")
	}
	if callback == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "missing decryption callback")
	}
	job := decryptionJob{handles: append([]Handle(nil), handles...), callback: callback}
	select {
	case o.jobs <- job:
		return nil
	default:
		return dErrors.New(dErrors.CodeInternal, "decryption queue full")
	}
}

// Start runs the delivery worker until ctx is cancelled.
func (o *Oracle) Start(ctx context.Context) error {
	for {
		select {
		case job := <-o.jobs:
			o.deliver(ctx, job)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// deliver opens every handle as the oracle principal and invokes the
// callback. A job whose handles cannot all be opened is dropped; the
// corresponding request simply never completes, which the ledger model
// tolerates.
func (o *Oracle) deliver(ctx context.Context, job decryptionJob) {
	values := make([]uint64, 0, len(job.handles))
	for _, handle := range job.handles {
		value, err := o.vault.Open(handle, PrincipalOracle)
		if err != nil {
			o.logger.ErrorContext(ctx, "decryption job dropped",
				"error", err,
				"handle", string(handle),
			)
			return
		}
		values = append(values, value)
	}
	job.callback(ctx, values)
}
