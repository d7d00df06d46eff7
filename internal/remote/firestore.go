package remote

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/Veraticus/tally/internal/common"
	"github.com/Veraticus/tally/internal/service"
	"golang.org/x/oauth2"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ service.RemoteStore = (*FirestoreStore)(nil)

// FirestoreConfig configures the Firestore client.
type FirestoreConfig struct {
	// TokenSource authenticates as the signed-in user when CredentialsFile is empty.
	TokenSource     oauth2.TokenSource
	ProjectID       string
	DatabaseID      string
	CredentialsFile string
	Retry           common.RetryOptions
}

// FirestoreStore implements service.RemoteStore on Cloud Firestore.
type FirestoreStore struct {
	client *firestore.Client
	retry  common.RetryOptions
}

// NewFirestoreStore connects to the configured Firestore database.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("%w: firebase project id", common.ErrMissingConfig)
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	case cfg.TokenSource != nil:
		opts = append(opts, option.WithTokenSource(cfg.TokenSource))
	default:
		return nil, fmt.Errorf("%w: firestore needs a credentials file or a signed-in user", common.ErrMissingConfig)
	}

	databaseID := cfg.DatabaseID
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, cfg.ProjectID, databaseID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = common.DefaultRetryOptions()
	}

	return &FirestoreStore{client: client, retry: retry}, nil
}

// NewDocumentID allocates a Firestore auto-id without writing anything.
func (f *FirestoreStore) NewDocumentID(collection string) string {
	return f.client.Collection(collection).NewDoc().ID
}

// GetDocument reads one document; a missing document yields common.ErrNotFound.
func (f *FirestoreStore) GetDocument(ctx context.Context, collection, id string) (*service.Document, error) {
	var doc *service.Document
	err := common.WithRetry(ctx, func() error {
		snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
		if err != nil {
			return classify(err)
		}
		doc = &service.Document{ID: snap.Ref.ID, Data: snap.Data()}
		return nil
	}, f.retry)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// SetDocument writes one document, merging fields when merge is set.
func (f *FirestoreStore) SetDocument(ctx context.Context, collection, id string, data map[string]any, merge bool) error {
	err := common.WithRetry(ctx, func() error {
		_, err := f.client.Collection(collection).Doc(id).Set(ctx, data, setOptions(merge)...)
		return classify(err)
	}, f.retry)
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// QueryEqual runs an equality query on a single field.
func (f *FirestoreStore) QueryEqual(ctx context.Context, collection, field string, value any) ([]service.Document, error) {
	var docs []service.Document
	err := common.WithRetry(ctx, func() error {
		docs = docs[:0]
		iter := f.client.Collection(collection).Where(field, "==", value).Documents(ctx)
		defer iter.Stop()

		for {
			snap, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return nil
			}
			if err != nil {
				return classify(err)
			}
			docs = append(docs, service.Document{ID: snap.Ref.ID, Data: snap.Data()})
		}
	}, f.retry)
	if err != nil {
		return nil, fmt.Errorf("query %s where %s == %v: %w", collection, field, value, err)
	}
	return docs, nil
}

// NewBatch starts an atomic write batch.
func (f *FirestoreStore) NewBatch() service.WriteBatch {
	return &firestoreBatch{store: f}
}

// Close releases the client connection.
func (f *FirestoreStore) Close() error {
	return f.client.Close()
}

type firestoreWrite struct {
	data       map[string]any
	collection string
	id         string
	merge      bool
}

// firestoreBatch buffers writes so a failed commit can be retried with a
// fresh firestore.WriteBatch; a committed WriteBatch cannot be reused.
type firestoreBatch struct {
	store  *FirestoreStore
	writes []firestoreWrite
}

func (b *firestoreBatch) Set(collection, id string, data map[string]any, merge bool) {
	b.writes = append(b.writes, firestoreWrite{collection: collection, id: id, data: data, merge: merge})
}

func (b *firestoreBatch) Len() int {
	return len(b.writes)
}

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if len(b.writes) == 0 {
		return nil
	}

	client := b.store.client
	err := common.WithRetry(ctx, func() error {
		wb := client.Batch()
		for _, w := range b.writes {
			wb.Set(client.Collection(w.collection).Doc(w.id), w.data, setOptions(w.merge)...)
		}
		_, err := wb.Commit(ctx)
		return classify(err)
	}, b.store.retry)
	if err != nil {
		return fmt.Errorf("commit batch of %d writes: %w", len(b.writes), err)
	}
	return nil
}

func setOptions(merge bool) []firestore.SetOption {
	if merge {
		return []firestore.SetOption{firestore.MergeAll}
	}
	return nil
}

// classify maps gRPC status codes onto application errors.
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", common.ErrNotFound, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %v", common.ErrPermissionDenied, err)
	case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.Internal:
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %v", common.ErrRemoteUnavailable, err),
			Retryable: true,
		}
	case codes.ResourceExhausted:
		return &common.RetryableError{
			Err:       fmt.Errorf("%w: %v", common.ErrRateLimit, err),
			Retryable: true,
		}
	default:
		return err
	}
}
