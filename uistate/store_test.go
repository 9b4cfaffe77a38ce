package uistate_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-api-dashboard/transport"
	"github.com/jrsteele09/go-api-dashboard/uistate"
)

type fakeTimer struct {
	duration time.Duration
	fire     func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type testFixture struct {
	mu     sync.Mutex
	timers []*fakeTimer
	store  *uistate.Store
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{}
	f.store = uistate.New(uistate.WithAfterFunc(func(d time.Duration, fn func()) uistate.Timer {
		f.mu.Lock()
		defer f.mu.Unlock()
		timer := &fakeTimer{duration: d, fire: fn}
		f.timers = append(f.timers, timer)
		return timer
	}))
	return f
}

func (f *testFixture) timer(i int) *fakeTimer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timers[i]
}

// TestShowNotification_ReplacesNotStacks tests that a superseded timer firing late cannot clear the newer banner
func TestShowNotification_ReplacesNotStacks(t *testing.T) {
	f := setupTestFixture(t)

	f.store.ShowNotification("A", uistate.KindInfo, 5*time.Second)
	idB := f.store.ShowNotification("B", uistate.KindError, 5*time.Second)

	n, ok := f.store.Notification()
	require.True(t, ok)
	require.Equal(t, "B", n.Message)
	require.Equal(t, uistate.KindError, n.Kind)
	require.True(t, f.timer(0).stopped)

	// A's timer fires anyway, as a real timer may after Stop has lost the race
	f.timer(0).fire()
	n, ok = f.store.Notification()
	require.True(t, ok)
	require.Equal(t, idB, n.ID)

	f.timer(1).fire()
	_, ok = f.store.Notification()
	require.False(t, ok)
}

func TestShowNotification_ZeroDurationPersists(t *testing.T) {
	f := setupTestFixture(t)

	id := f.store.ShowNotification("saved", uistate.KindSuccess, 0)
	require.Empty(t, f.timers)

	_, ok := f.store.Notification()
	require.True(t, ok)

	require.False(t, f.store.DismissNotification("other"))
	require.True(t, f.store.DismissNotification(id))
	require.False(t, f.store.DismissNotification(id))
}

// TestNotifyError tests that errors surface their display message as a timed error banner
func TestNotifyError(t *testing.T) {
	f := setupTestFixture(t)

	require.Empty(t, f.store.NotifyError(nil))

	f.store.NotifyError(transport.Normalize(500, []byte(`{"detail":"database unavailable"}`), nil))
	n, ok := f.store.Notification()
	require.True(t, ok)
	require.Equal(t, "database unavailable", n.Message)
	require.Equal(t, uistate.KindError, n.Kind)
	require.Equal(t, uistate.ErrorBannerDuration, f.timer(0).duration)
}

func TestSidebarAndSubscribe(t *testing.T) {
	f := setupTestFixture(t)

	var states []uistate.State
	unsubscribe := f.store.Subscribe(func(s uistate.State) {
		states = append(states, s)
	})

	require.True(t, f.store.ToggleSidebar())
	f.store.SetSidebarOpen(true) // unchanged, no notification
	f.store.SetSidebarOpen(false)
	f.store.ShowNotification("hi", uistate.KindInfo, 0)

	require.Len(t, states, 3)
	require.True(t, states[0].SidebarOpen)
	require.False(t, states[1].SidebarOpen)
	require.Equal(t, "hi", states[2].Notification.Message)

	unsubscribe()
	f.store.ToggleSidebar()
	require.Len(t, states, 3)
	require.True(t, f.store.SidebarOpen())
}

func TestNew_DefaultTimer(t *testing.T) {
	store := uistate.New()
	store.ShowNotification("gone soon", uistate.KindInfo, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := store.Notification()
		return !ok
	}, time.Second, 5*time.Millisecond)
}
