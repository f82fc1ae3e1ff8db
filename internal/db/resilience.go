package db

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ErrorKind splits failures into the two classes the retry policy cares
// about: transient availability problems (store suspended, network blip)
// and everything else. Only transient errors are ever retried.
type ErrorKind int

const (
	KindFatal ErrorKind = iota
	KindTransient
)

// Error signatures of a suspended/cold serverless store or a dropped
// connection. Matched case-insensitively against the error text because
// they cross several drivers (pgx, go-sql-driver, sqlite).
var transientSignatures = []string{
	"is not currently available",         // azure sql 40613
	"database is starting",               // pg 57P03
	"the database system is starting up", // pg 57P03
	"the database system is shutting down",
	"is paused",
	"login timeout",
	"too many connections", // mysql 1040
	"server closed the connection",
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"unexpected eof",
	"bad connection",
}

func Classify(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}
	// Constraint/duplicate errors are data-correctness failures; retrying
	// would just repeat them.
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, gorm.ErrForeignKeyViolated) {
		return KindFatal
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTransient
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return KindTransient
		}
	}
	return KindFatal
}

// Runner executes database operations with an awaken-and-retry policy.
// A transient failure triggers a lightweight wake probe (SELECT 1) and a
// bounded exponential backoff retry of the original operation; fatal
// errors propagate immediately.
type Runner struct {
	h           *Handle
	log         zerolog.Logger
	maxAttempts uint64
	baseDelay   time.Duration
}

func NewRunner(h *Handle, log zerolog.Logger, maxAttempts int, baseDelay time.Duration) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = 4
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	return &Runner{h: h, log: log, maxAttempts: uint64(maxAttempts), baseDelay: baseDelay}
}

// DB returns the underlying gorm handle for read paths that manage their
// own error handling.
func (r *Runner) DB() *gorm.DB { return r.h.DB }

// Do runs fn, retrying only transient availability failures.
func (r *Runner) Do(ctx context.Context, name string, fn func(gdb *gorm.DB) error) error {
	attempt := 0
	op := func() error {
		attempt++
		err := fn(r.h.DB.WithContext(ctx))
		if err == nil {
			return nil
		}
		if Classify(err) != KindTransient {
			return backoff.Permanent(err)
		}
		r.log.Warn().Err(err).Str("op", name).Int("attempt", attempt).
			Msg("transient database error, waking store and retrying")
		r.wake(ctx)
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.baseDelay
	bo.MaxInterval = 10 * time.Second

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, r.maxAttempts-1), ctx))
}

// wake issues a trivial query so a suspended serverless instance starts
// resuming before the next attempt. Its own error is irrelevant.
func (r *Runner) wake(ctx context.Context) {
	_ = r.h.DB.WithContext(ctx).Exec("SELECT 1").Error
}
