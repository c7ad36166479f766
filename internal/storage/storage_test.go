package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"leaderbot/internal/eventbus"
	logx "leaderbot/pkg/logx"
)

func openTemp(t *testing.T, driver string) Store {
	t.Helper()
	name := "audit.jsonl"
	if driver == "sqlite" {
		name = "audit.db"
	}
	st, err := Open(Config{Driver: driver, Path: filepath.Join(t.TempDir(), "sub", name)}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(%s) error = %v", driver, err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStoreAppendRecent(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"file", "sqlite"} {
		t.Run(driver, func(t *testing.T) {
			t.Parallel()
			st := openTemp(t, driver)
			ctx := context.Background()
			base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
			types := []string{"session.started", "session.ended", "session.removed"}
			for i, typ := range types {
				if err := st.Append(ctx, Record{At: base.Add(time.Duration(i) * time.Minute), Type: typ, SessionID: "s1", ChatID: -1, Reason: "r"}); err != nil {
					t.Fatalf("Append() error = %v", err)
				}
			}
			if err := st.Append(ctx, Record{At: base, Type: "session.started", SessionID: "s2", ChatID: -2}); err != nil {
				t.Fatal(err)
			}

			got, err := st.Recent(ctx, -1, 2)
			if err != nil {
				t.Fatalf("Recent() error = %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("Recent() len = %d, want 2", len(got))
			}
			if got[0].Type != "session.removed" || got[1].Type != "session.ended" {
				t.Fatalf("Recent() order = %s, %s; want newest first", got[0].Type, got[1].Type)
			}
			if !got[0].At.Equal(base.Add(2*time.Minute)) || got[0].Reason != "r" {
				t.Fatalf("record = %+v", got[0])
			}
			if other, _ := st.Recent(ctx, -2, 10); len(other) != 1 {
				t.Fatalf("Recent(-2) len = %d, want 1", len(other))
			}
		})
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("Open(none) = %v, %v; want nil, nil", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatalf("Open(redis) error = nil, want error")
	}
	if _, err := Open(Config{Driver: "file"}, logx.Nop()); err == nil {
		t.Fatalf("Open(file) without path error = nil, want error")
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "a.db")
	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Append(context.Background(), Record{Type: "session.started", SessionID: "x", ChatID: 5}); err != nil {
		t.Fatal(err)
	}
	_ = st.Close()

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer st.Close()
	got, err := st.Recent(context.Background(), 5, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("Recent() = %v, %v; want 1 record", got, err)
	}
}

func TestAuditWritesBusEvents(t *testing.T) {
	t.Parallel()
	st := openTemp(t, "file")
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = Audit(ctx, ch, st, logx.Nop())
		close(done)
	}()

	bus.Publish(eventbus.Event{Type: eventbus.SessionStarted, SessionID: "abc", ChatID: 77, Actor: 3})

	deadline := time.Now().Add(2 * time.Second)
	for {
		got, err := st.Recent(context.Background(), 77, 5)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) == 1 {
			if got[0].Type != string(eventbus.SessionStarted) || got[0].Actor != 3 {
				t.Fatalf("record = %+v", got[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("event not audited")
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
}
