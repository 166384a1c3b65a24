package sessions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
)

// storeFactories lets every conformance test run against both
// implementations.
func storeFactories(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			store, err := NewSQLiteStore(":memory:")
			if err != nil {
				t.Fatalf("sqlite: %v", err)
			}
			return store
		},
	}
}

func TestStore_SessionRoundTrip(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			session := &Session{ID: uuid.NewString(), Agent: "coder", Model: "claude"}
			if err := store.CreateSession(ctx, session); err != nil {
				t.Fatalf("create: %v", err)
			}

			got, err := store.GetSession(ctx, session.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Agent != "coder" || got.Model != "claude" {
				t.Fatalf("session = %+v", got)
			}
			if got.CreatedAt.IsZero() {
				t.Error("created_at should be stamped")
			}
		})
	}
}

func TestStore_MissingSession(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()

			if _, err := store.GetSession(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
			err := store.AppendMessage(context.Background(), &TranscriptMessage{
				ID: uuid.NewString(), SessionID: "nope", Role: "user", Content: "hi",
			})
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("append to missing session: %v", err)
			}
		})
	}
}

func TestStore_HistoryOrderAndLimit(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			session := &Session{ID: uuid.NewString()}
			if err := store.CreateSession(ctx, session); err != nil {
				t.Fatal(err)
			}

			base := time.Now().UTC().Truncate(time.Second)
			for i := 0; i < 5; i++ {
				err := store.AppendMessage(ctx, &TranscriptMessage{
					ID:        fmt.Sprintf("m-%d", i),
					SessionID: session.ID,
					Role:      "user",
					Content:   fmt.Sprintf("msg-%d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				})
				if err != nil {
					t.Fatalf("append %d: %v", i, err)
				}
			}

			all, err := store.History(ctx, session.ID, 0)
			if err != nil {
				t.Fatal(err)
			}
			if len(all) != 5 {
				t.Fatalf("history length = %d", len(all))
			}
			for i, msg := range all {
				if msg.Content != fmt.Sprintf("msg-%d", i) {
					t.Fatalf("order broken at %d: %q", i, msg.Content)
				}
			}

			recent, err := store.History(ctx, session.ID, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(recent) != 2 || recent[0].Content != "msg-3" || recent[1].Content != "msg-4" {
				t.Fatalf("limited history = %+v", recent)
			}
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory()
			defer store.Close()
			ctx := context.Background()

			base := time.Now().UTC().Truncate(time.Second)
			for i := 0; i < 3; i++ {
				session := &Session{
					ID:        fmt.Sprintf("s-%d", i),
					CreatedAt: base.Add(time.Duration(i) * time.Second),
				}
				if err := store.CreateSession(ctx, session); err != nil {
					t.Fatal(err)
				}
			}

			sessions, err := store.ListSessions(ctx, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(sessions) != 2 || sessions[0].ID != "s-2" {
				t.Fatalf("sessions = %+v", sessions)
			}
		})
	}
}
