package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/Ngumi22/zami-web-sub001/internal/platform/firestore"
)

const (
	defaultCollection   = "idempotency_keys"
	defaultCleanupLimit = 200
)

// FirestoreStore implements Store on Firestore. Documents carry an expiresAt field so a collection
// TTL policy can reap them even when the cleanup job does not run.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
}

// NewFirestoreStore constructs a store writing to collection, or idempotency_keys when empty.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, collection: collection}
}

type firestoreRecord struct {
	Key            string              `firestore:"key"`
	Fingerprint    string              `firestore:"fingerprint"`
	Completed      bool                `firestore:"completed"`
	ResponseStatus int                 `firestore:"responseStatus"`
	ResponseHeader map[string][]string `firestore:"responseHeader,omitempty"`
	ResponseBody   []byte              `firestore:"responseBody,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func (r firestoreRecord) record() Record {
	return Record{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Response:    Response{Status: r.ResponseStatus, Header: r.ResponseHeader, Body: r.ResponseBody},
		CreatedAt:   r.CreatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func toFirestoreRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:            r.Key,
		Fingerprint:    r.Fingerprint,
		Completed:      r.Completed,
		ResponseStatus: r.Response.Status,
		ResponseHeader: r.Response.Header,
		ResponseBody:   r.Response.Body,
		CreatedAt:      r.CreatedAt,
		ExpiresAt:      r.ExpiresAt,
	}
}

func (s *FirestoreStore) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(s.collection).Doc(documentID(key)), nil
}

func (s *FirestoreStore) load(tx *firestore.Transaction, ref *firestore.DocumentRef) (Record, bool, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var stored firestoreRecord
	if err := snap.DataTo(&stored); err != nil {
		return Record{}, false, err
	}
	return stored.record(), true, nil
}

// Reserve implements Store.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return Reservation{}, err
	}
	now = now.UTC()

	var result Reservation
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, found, err := s.load(tx, ref)
		if err != nil {
			return err
		}
		reservation, ok, err := reservationFor(existing, found, fingerprint, now)
		if err != nil {
			return err
		}
		if ok {
			result = reservation
			return nil
		}
		record := newPending(key, fingerprint, now, ttl)
		result = Reservation{State: ReservationNew, Record: record}
		return tx.Set(ref, toFirestoreRecord(record))
	})
	return result, unwrapMismatch(err)
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record, found, err := s.load(tx, ref)
		if err != nil {
			return err
		}
		if found && record.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			record = newPending(key, fingerprint, now, ttl)
		}
		record.Completed = true
		record.Response = Response{Status: resp.Status, Header: storableHeader(resp.Header), Body: resp.Body}
		record.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, toFirestoreRecord(record))
	})
	return unwrapMismatch(err)
}

// Release implements Store.
func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	ref, err := s.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return pfirestore.WrapError("idempotency.release", err)
	}
	return nil
}

// DeleteExpired implements Store.
func (s *FirestoreStore) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).Where("expiresAt", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError("idempotency.cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	bw := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return 0, pfirestore.WrapError("idempotency.cleanup", err)
		}
	}
	bw.End()
	return len(docs), nil
}

func unwrapMismatch(err error) error {
	if errors.Is(err, ErrFingerprintMismatch) {
		return ErrFingerprintMismatch
	}
	return err
}
