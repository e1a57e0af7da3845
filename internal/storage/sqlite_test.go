package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"gazette_bot/internal/model"
)

var ignoreTimestamps = cmpopts.IgnoreFields(model.Subscriber{}, "CreatedAt", "UpdatedAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSubscriberRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name string
		sub  model.Subscriber
	}{
		{
			name: "default keywords",
			sub: model.Subscriber{
				ChatID:   12345,
				Keywords: model.NormalizeKeywords(model.DefaultKeywords),
				OptedIn:  true,
			},
		},
		{
			name: "empty keyword set, opted out",
			sub: model.Subscriber{
				ChatID:   -100200300,
				Keywords: []string{},
				OptedIn:  false,
			},
		},
		{
			name: "order is preserved",
			sub: model.Subscriber{
				ChatID:   777,
				Keywords: []string{"zeta", "Alpha", "mg gestão ambiental"},
				OptedIn:  true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := tt.sub
			if err := s.SaveSubscriber(ctx, &sub); err != nil {
				t.Fatalf("save: %v", err)
			}
			if sub.CreatedAt.IsZero() || sub.UpdatedAt.IsZero() {
				t.Errorf("timestamps must be populated: %+v", sub)
			}

			got, err := s.GetSubscriber(ctx, sub.ChatID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if diff := cmp.Diff(tt.sub, *got, ignoreTimestamps); diff != "" {
				t.Errorf("GetSubscriber() mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(sub.CreatedAt, got.CreatedAt); diff != "" {
				t.Errorf("created_at (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSaveSubscriberReplacesRecord(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	created := time.Date(2025, 12, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return created }

	sub := model.Subscriber{ChatID: 1, Keywords: []string{"a", "b", "c"}, OptedIn: true}
	if err := s.SaveSubscriber(ctx, &sub); err != nil {
		t.Fatalf("save: %v", err)
	}

	s.now = func() time.Time { return created.Add(time.Hour) }
	sub.Keywords = []string{"c"}
	sub.OptedIn = false
	if err := s.SaveSubscriber(ctx, &sub); err != nil {
		t.Fatalf("save again: %v", err)
	}

	got, err := s.GetSubscriber(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := model.Subscriber{
		ChatID:    1,
		Keywords:  []string{"c"},
		OptedIn:   false,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("GetSubscriber() mismatch (-want +got):\n%s", diff)
	}
}

func TestGetSubscriberNotFound(t *testing.T) {
	s := newTestDB(t)
	if _, err := s.GetSubscriber(context.Background(), 42); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListSubscribers(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for _, sub := range []model.Subscriber{
		{ChatID: 3, Keywords: []string{"Lumig"}, OptedIn: true},
		{ChatID: 1, Keywords: []string{"Convita", "Molla"}, OptedIn: true},
		{ChatID: 2, Keywords: []string{}, OptedIn: false},
	} {
		if err := s.SaveSubscriber(ctx, &sub); err != nil {
			t.Fatalf("save %d: %v", sub.ChatID, err)
		}
	}

	tests := []struct {
		name        string
		optedInOnly bool
		want        []model.Subscriber
	}{
		{
			name: "all",
			want: []model.Subscriber{
				{ChatID: 1, Keywords: []string{"Convita", "Molla"}, OptedIn: true},
				{ChatID: 2, Keywords: []string{}, OptedIn: false},
				{ChatID: 3, Keywords: []string{"Lumig"}, OptedIn: true},
			},
		},
		{
			name:        "opted in only",
			optedInOnly: true,
			want: []model.Subscriber{
				{ChatID: 1, Keywords: []string{"Convita", "Molla"}, OptedIn: true},
				{ChatID: 3, Keywords: []string{"Lumig"}, OptedIn: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListSubscribers(ctx, tt.optedInOnly)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if diff := cmp.Diff(tt.want, got, ignoreTimestamps); diff != "" {
				t.Errorf("ListSubscribers() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBroadcasts(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	sent, err := s.WasBroadcast(ctx, 5470)
	if err != nil {
		t.Fatalf("was broadcast: %v", err)
	}
	if sent {
		t.Fatal("nothing was broadcast yet")
	}

	for range 2 {
		if err := s.MarkBroadcast(ctx, 5470); err != nil {
			t.Fatalf("mark: %v", err)
		}
	}

	for edition, want := range map[int]bool{5470: true, 5471: false} {
		got, err := s.WasBroadcast(ctx, edition)
		if err != nil {
			t.Fatalf("was broadcast %d: %v", edition, err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("edition %d (-want +got):\n%s", edition, diff)
		}
	}
}
