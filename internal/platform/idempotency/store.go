package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a completed response is replayed.
const DefaultTTL = 24 * time.Hour

// ReservationState describes the outcome of reserving a key.
type ReservationState int

const (
	// ReservationNew means the caller owns the key and must complete or release it.
	ReservationNew ReservationState = iota
	// ReservationCompleted means a stored response exists and should be replayed.
	ReservationCompleted
	// ReservationInFlight means another request holds the key.
	ReservationInFlight
)

// ErrFingerprintMismatch is returned when a key is reused for a different request.
var ErrFingerprintMismatch = errors.New("idempotency: key already used for a different request")

// Response is the HTTP outcome stored for replay.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Record is the persisted state for one scoped key.
type Record struct {
	Key         string
	Fingerprint string
	Completed   bool
	Response    Response
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (r Record) expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}

// Reservation is the result of Store.Reserve.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Store persists reservations and completed responses. Implementations must make Reserve atomic per key.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

func documentID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func newPending(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Record{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
}

// reservationFor decides the reservation for an existing record. ok is false when the record is
// absent or expired and the key may be taken afresh.
func reservationFor(existing Record, found bool, fingerprint string, now time.Time) (Reservation, bool, error) {
	if !found || existing.expired(now) {
		return Reservation{}, false, nil
	}
	if existing.Fingerprint != fingerprint {
		return Reservation{}, true, ErrFingerprintMismatch
	}
	if existing.Completed {
		return Reservation{State: ReservationCompleted, Record: existing}, true, nil
	}
	return Reservation{State: ReservationInFlight, Record: existing}, true, nil
}

func storableHeader(header http.Header) http.Header {
	out := make(http.Header, len(header))
	for name, values := range header {
		switch strings.ToLower(name) {
		case "content-length", "date", "connection", "keep-alive", "transfer-encoding", "upgrade", "trailer":
			continue
		}
		out[http.CanonicalHeaderKey(name)] = append([]string(nil), values...)
	}
	return out
}
