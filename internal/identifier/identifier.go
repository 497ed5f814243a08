// Package identifier produces the human-readable ids used by catalog and order
// rows: a fixed prefix followed by a counter zero-padded to at least three
// digits (PRD-001, ORD-042, ORDPRD-1000).
package identifier

import (
	"context"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// MinDigits is the minimum width of the numeric suffix
const MinDigits = 3

// DefaultMaxAttempts bounds how many taken ids Assign skips before giving up
const DefaultMaxAttempts = 16

// ErrExhausted is returned when every attempt hit an already used id
var ErrExhausted = errors.New("identifier allocation exhausted")

// Kind describes one family of ids
type Kind struct {
	// Name keys the counter row for this kind
	Name   string
	Prefix string
}

var (
	Product        = Kind{Name: "products", Prefix: "PRD-"}
	Order          = Kind{Name: "orders", Prefix: "ORD-"}
	OrderedProduct = Kind{Name: "ordered_products", Prefix: "ORDPRD-"}
)

// Format renders n with the kind's prefix. Padding widens instead of
// truncating once n needs more than MinDigits digits.
func Format(k Kind, n int64) string {
	digits := strconv.FormatInt(n, 10)
	if pad := MinDigits - len(digits); pad > 0 {
		digits = strings.Repeat("0", pad) + digits
	}
	return k.Prefix + digits
}

// Parse extracts the numeric suffix of id
func Parse(k Kind, id string) (int64, error) {
	if !strings.HasPrefix(id, k.Prefix) {
		return 0, errors.Newf("id %q does not start with %q", id, k.Prefix)
	}
	n, err := strconv.ParseInt(id[len(k.Prefix):], 10, 64)
	if err != nil || n < 1 {
		return 0, errors.Newf("id %q has no valid numeric suffix", id)
	}
	return n, nil
}

// Counter hands out the next value of a named, strictly increasing sequence.
// The first value of a fresh sequence is 1.
type Counter interface {
	Next(ctx context.Context, name string) (int64, error)
}

// Syncer is implemented by counters that can catch up with ids written
// without them, such as imported or restored rows. After Sync the next value
// is above every id of kind k already stored.
type Syncer interface {
	Sync(ctx context.Context, k Kind) error
}

// InsertFunc tries to persist a row under id. It reports false, with a nil
// error, when the id is already taken.
type InsertFunc func(ctx context.Context, id string) (bool, error)

// Generator assigns ids by drawing counter values until an insert succeeds
type Generator struct {
	maxAttempts int
	logger      *zap.Logger
	onConflict  func(kind string)
}

// NewGenerator creates a Generator. maxAttempts <= 0 selects DefaultMaxAttempts.
func NewGenerator(maxAttempts int, logger *zap.Logger) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{maxAttempts: maxAttempts, logger: logger}
}

// OnConflict registers fn to be called with the kind name whenever a drawn
// id turns out to be taken.
func (g *Generator) OnConflict(fn func(kind string)) *Generator {
	g.onConflict = fn
	return g
}

// Assign draws ids of kind k from counter and calls insert with each until one
// is stored. On the first taken id a counter that is also a Syncer is moved
// past the stored ids. Counter and insert errors are returned as is.
func (g *Generator) Assign(ctx context.Context, counter Counter, k Kind, insert InsertFunc) (string, error) {
	synced := false
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		n, err := counter.Next(ctx, k.Name)
		if err != nil {
			return "", err
		}
		id := Format(k, n)

		ok, err := insert(ctx, id)
		if err != nil {
			return "", err
		}
		if ok {
			return id, nil
		}

		if g.onConflict != nil {
			g.onConflict(k.Name)
		}
		g.logger.Warn("Identifier already taken, drawing next",
			zap.String("kind", k.Name),
			zap.String("id", id),
			zap.Int("attempt", attempt),
		)

		if syncer, ok := counter.(Syncer); ok && !synced {
			synced = true
			if err := syncer.Sync(ctx, k); err != nil {
				return "", err
			}
		}
	}
	return "", errors.Wrapf(ErrExhausted, "%s after %d attempts", k.Name, g.maxAttempts)
}
