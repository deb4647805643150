package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"

	"membership-backend/internal/logger"
)

const defaultPollInterval = 2 * time.Second

// FirebaseStore keeps state in a Firebase Realtime Database through the
// Admin SDK. The Admin SDK exposes no streaming listeners, so subscriptions
// poll with ETags and only deliver when the subtree changed.
type FirebaseStore struct {
	client       *db.Client
	pollInterval time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewFirebaseStore(ctx context.Context, app *firebase.App, pollInterval time.Duration) (*FirebaseStore, error) {
	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize realtime database client: %w", err)
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	storeCtx, cancel := context.WithCancel(context.Background())
	return &FirebaseStore{
		client:       client,
		pollInterval: pollInterval,
		ctx:          storeCtx,
		cancel:       cancel,
	}, nil
}

func (s *FirebaseStore) ref(path string) (*db.Ref, error) {
	segs, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	return s.client.NewRef(joinPath(segs)), nil
}

func (s *FirebaseStore) Get(ctx context.Context, path string) (Snapshot, error) {
	ref, err := s.ref(path)
	if err != nil {
		return Snapshot{}, err
	}
	logger.StoreCall("firebase", "get", path)
	var raw json.RawMessage
	err = ref.Get(ctx, &raw)
	logger.StoreResult("firebase", "get", path, err)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return NewSnapshot(path, raw), nil
}

func (s *FirebaseStore) Set(ctx context.Context, path string, value any) error {
	ref, err := s.ref(path)
	if err != nil {
		return err
	}
	logger.StoreCall("firebase", "set", path)
	if value == nil {
		err = ref.Delete(ctx)
	} else {
		err = ref.Set(ctx, value)
	}
	logger.StoreResult("firebase", "set", path, err)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (s *FirebaseStore) Update(ctx context.Context, path string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	ref, err := s.ref(path)
	if err != nil {
		return err
	}
	logger.StoreCall("firebase", "update", path, "fields", len(fields))
	err = ref.Update(ctx, fields)
	logger.StoreResult("firebase", "update", path, err)
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", path, err)
	}
	return nil
}

func (s *FirebaseStore) Delete(ctx context.Context, path string) error {
	ref, err := s.ref(path)
	if err != nil {
		return err
	}
	logger.StoreCall("firebase", "delete", path)
	err = ref.Delete(ctx)
	logger.StoreResult("firebase", "delete", path, err)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", path, err)
	}
	return nil
}

func (s *FirebaseStore) Subscribe(ctx context.Context, path string, fn func(Snapshot)) (Subscription, error) {
	ref, err := s.ref(path)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	etag, err := ref.GetWithETag(ctx, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", path, err)
	}
	fn(NewSnapshot(path, raw))

	pollCtx, cancel := context.WithCancel(s.ctx)
	stop := context.AfterFunc(ctx, cancel)
	go s.poll(pollCtx, ref, path, etag, fn)

	return NewSubscription(func() {
		stop()
		cancel()
	}), nil
}

func (s *FirebaseStore) poll(ctx context.Context, ref *db.Ref, path, etag string, fn func(Snapshot)) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		var raw json.RawMessage
		changed, next, err := ref.GetIfChanged(ctx, etag, &raw)
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("Realtime poll failed", "path", path, "error", err)
			}
			continue
		}
		if !changed {
			continue
		}
		etag = next
		if ctx.Err() != nil {
			return
		}
		fn(NewSnapshot(path, raw))
	}
}

func (s *FirebaseStore) Ping(ctx context.Context) error {
	var keys map[string]bool
	if err := s.client.NewRef("users").GetShallow(ctx, &keys); err != nil {
		return fmt.Errorf("realtime database unreachable: %w", err)
	}
	return nil
}

func (s *FirebaseStore) Close() error {
	s.cancel()
	return nil
}
