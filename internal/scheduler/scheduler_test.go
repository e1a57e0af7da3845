package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"

	"gazette_bot/internal/notify"
)

type mockBroadcaster struct {
	mu    sync.Mutex
	calls int
	err   error
	done  chan struct{}
}

func (m *mockBroadcaster) Broadcast(_ context.Context, force bool) ([]notify.Outcome, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if force {
		return nil, errors.New("scheduled runs must not force")
	}
	if m.done != nil {
		m.done <- struct{}{}
	}
	return []notify.Outcome{{ChatID: 1}, {ChatID: 2, Err: errors.New("blocked")}}, m.err
}

func (m *mockBroadcaster) getCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestNextRun(t *testing.T) {
	fortaleza := mustLoad(t, "America/Fortaleza")
	saoPaulo := mustLoad(t, "America/Sao_Paulo")

	tests := []struct {
		name         string
		now          time.Time
		hour, minute int
		loc          *time.Location
		want         time.Time
	}{
		{
			name: "later today",
			now:  time.Date(2026, 10, 16, 9, 30, 0, 0, fortaleza),
			hour: 12,
			loc:  fortaleza,
			want: time.Date(2026, 10, 16, 12, 0, 0, 0, fortaleza),
		},
		{
			name: "exactly at the time moves to tomorrow",
			now:  time.Date(2026, 10, 16, 12, 0, 0, 0, fortaleza),
			hour: 12,
			loc:  fortaleza,
			want: time.Date(2026, 10, 17, 12, 0, 0, 0, fortaleza),
		},
		{
			name: "already passed",
			now:  time.Date(2026, 10, 16, 18, 0, 0, 0, fortaleza),
			hour: 12,
			loc:  fortaleza,
			want: time.Date(2026, 10, 17, 12, 0, 0, 0, fortaleza),
		},
		{
			name:   "end of month",
			now:    time.Date(2026, 12, 31, 23, 59, 0, 0, fortaleza),
			hour:   7,
			minute: 45,
			loc:    fortaleza,
			want:   time.Date(2027, 1, 1, 7, 45, 0, 0, fortaleza),
		},
		{
			name: "now given in another zone",
			now:  time.Date(2026, 10, 16, 14, 0, 0, 0, time.UTC), // 11:00 in Fortaleza
			hour: 12,
			loc:  fortaleza,
			want: time.Date(2026, 10, 16, 12, 0, 0, 0, fortaleza),
		},
		{
			name:   "zone with a different offset",
			now:    time.Date(2026, 10, 16, 16, 0, 0, 0, time.UTC), // 13:00 in Sao Paulo
			hour:   12,
			minute: 0,
			loc:    saoPaulo,
			want:   time.Date(2026, 10, 17, 12, 0, 0, 0, saoPaulo),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, tt.hour, tt.minute, tt.loc)
			if !got.Equal(tt.want) {
				t.Errorf("NextRun() = %s, want %s", got, tt.want)
			}
			if !got.After(tt.now) {
				t.Errorf("NextRun() = %s is not after %s", got, tt.now)
			}
		})
	}
}

func newTestScheduler(bc Broadcaster, opts Options, now time.Time) (*Scheduler, chan time.Time, chan time.Duration) {
	fire := make(chan time.Time)
	waits := make(chan time.Duration, 8)
	s := New(bc, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	s.after = func(d time.Duration) <-chan time.Time {
		waits <- d
		return fire
	}
	return s, fire, waits
}

func TestRunWaitsForScheduledTime(t *testing.T) {
	loc := mustLoad(t, "America/Fortaleza")
	bc := &mockBroadcaster{done: make(chan struct{}, 1)}
	now := time.Date(2026, 10, 16, 11, 0, 0, 0, loc)
	s, fire, waits := newTestScheduler(bc, Options{Hour: 12, Location: loc}, now)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	if diff := cmp.Diff(time.Hour, <-waits); diff != "" {
		t.Errorf("first wait (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, bc.getCalls()); diff != "" {
		t.Errorf("broadcast before the scheduled time (-want +got):\n%s", diff)
	}

	fire <- now
	<-bc.done
	<-waits // next day scheduled

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if diff := cmp.Diff(1, bc.getCalls()); diff != "" {
		t.Errorf("broadcast calls (-want +got):\n%s", diff)
	}
}

func TestRunOnStartup(t *testing.T) {
	tests := []struct {
		name         string
		runOnStartup bool
		err          error
		want         int
	}{
		{name: "enabled", runOnStartup: true, want: 1},
		{name: "enabled, already broadcast", runOnStartup: true, err: notify.ErrAlreadyBroadcast, want: 1},
		{name: "enabled, failing", runOnStartup: true, err: errors.New("publisher down"), want: 1},
		{name: "disabled", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc := &mockBroadcaster{err: tt.err}
			now := time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)
			s, _, waits := newTestScheduler(bc, Options{Hour: 12, RunOnStartup: tt.runOnStartup}, now)

			ctx, cancel := context.WithCancel(context.Background())
			stopped := make(chan struct{})
			go func() {
				s.Run(ctx)
				close(stopped)
			}()

			<-waits
			cancel()
			<-stopped

			if diff := cmp.Diff(tt.want, bc.getCalls()); diff != "" {
				t.Errorf("broadcast calls (-want +got):\n%s", diff)
			}
		})
	}
}
