package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/remote"
	"github.com/hyperengineering/canvass/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "rep@example.com"
	testPassword = "hunter22"
	timeout      = 5 * time.Second
	tick         = 10 * time.Millisecond
)

func testConfig(dir string) canvass.Config {
	return canvass.Config{
		LocalPath:          filepath.Join(dir, "canvass.db"),
		CacheDir:           filepath.Join(dir, "cache"),
		JWTSecret:          "test-secret",
		SignOutSyncTimeout: 200 * time.Millisecond,
		GuestSyncTimeout:   200 * time.Millisecond,
		PollInterval:       10 * time.Millisecond,
	}
}

func newTestApp(t *testing.T, mem *remote.MemoryStore) *App {
	t.Helper()
	return newTestAppIn(t, t.TempDir(), mem)
}

func newTestAppIn(t *testing.T, dir string, mem *remote.MemoryStore) *App {
	t.Helper()
	a, err := New(testConfig(dir), WithRemote(mem))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// blockWrites makes every remote Set wait until the returned release is
// called. Release is registered as a cleanup so the app can close.
func blockWrites(t *testing.T, mem *remote.MemoryStore) (release func()) {
	t.Helper()
	ch := make(chan struct{})
	var once gosync.Once
	release = func() { once.Do(func() { close(ch) }) }
	mem.SetHook(func(ctx context.Context, op, path string) error {
		if op == "set" {
			<-ch
		}
		return nil
	})
	t.Cleanup(release)
	return release
}

func addLead(t *testing.T, a *App, name string, n int) canvass.Lead {
	t.Helper()
	l, existing, err := a.Leads.Add(context.Background(), canvass.Lead{
		Name:  name,
		Phone: fmt.Sprintf("555-010%d", n),
	})
	require.NoError(t, err)
	require.False(t, existing)
	return l
}

func scheduleAppointment(t *testing.T, a *App, title string) canvass.Appointment {
	t.Helper()
	start := time.Now().Add(24 * time.Hour).Truncate(time.Second)
	appt, err := a.Appointments.Schedule(context.Background(), canvass.Appointment{
		Title:     title,
		StartDate: start,
	})
	require.NoError(t, err)
	return appt
}

// waitIdle waits for the post-sign-in sync to finish and the listener to attach.
func waitIdle(t *testing.T, a *App) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap := a.Engine().Snapshot()
		return snap.LastRun != nil && !a.Engine().IsSyncing() && a.Engine().ListenerState() == sync.Listening
	}, timeout, tick)
}

func syncNow(t *testing.T, a *App) *sync.PushReport {
	t.Helper()
	var report *sync.PushReport
	require.Eventually(t, func() bool {
		r, err := a.SyncNow(context.Background())
		if errors.Is(err, canvass.ErrSyncInProgress) {
			return false
		}
		require.NoError(t, err)
		report = r
		return true
	}, timeout, tick)
	return report
}

func uidOf(t *testing.T, a *App) string {
	t.Helper()
	u := a.CurrentUser()
	require.NotNil(t, u)
	return u.UID
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.RemoteURL = "http://localhost:8080"

	_, err := New(cfg)

	var verr *canvass.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "APIKey", verr.Field)
}

func TestNew_FileRemoteFromConfig(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.RemoteDir = filepath.Join(t.TempDir(), "remote")

	a, err := New(cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &remote.FileStore{}, a.Remote())
	assert.False(t, a.cfg.IsOffline())
}

func TestSignUp_AttachesListenerAndPushesExistingLeads(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	addLead(t, a, "Dana Whitfield", 1)

	user, err := a.SignUp(context.Background(), testEmail, testPassword, "Dana")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mem.Count(remote.CollectionPath(user.UID, canvass.CollectionLeads)) == 1
	}, timeout, tick)
	waitIdle(t, a)
	assert.Equal(t, AuthIdle, a.AuthState())
}

func TestSignIn_ValidatesBeforeAnyRemoteCall(t *testing.T) {
	mem := remote.NewMemoryStore()
	var calls int
	mem.SetHook(func(ctx context.Context, op, path string) error {
		calls++
		return nil
	})
	a := newTestApp(t, mem)

	_, err := a.SignIn(context.Background(), "not-an-email", testPassword)

	assert.Equal(t, canvass.KindValidation, canvass.KindOf(err))
	assert.Zero(t, calls)
	assert.Nil(t, a.CurrentUser())
}

func TestSignIn_WrongPassword(t *testing.T) {
	a := newTestApp(t, remote.NewMemoryStore())
	_, err := a.SignUp(context.Background(), testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)
	_, err = a.SignOut(context.Background())
	require.NoError(t, err)

	_, err = a.SignIn(context.Background(), testEmail, "wrong-password")

	assert.Equal(t, canvass.KindAuthentication, canvass.KindOf(err))
	assert.ErrorIs(t, err, canvass.ErrInvalidCredentials)
	assert.Equal(t, "Please sign in again.", canvass.UserMessage(err))
}

func TestSignOut_PreservesRemoteAppointments(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	ctx := context.Background()

	user, err := a.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)

	addLead(t, a, "Dana Whitfield", 1)
	scheduleAppointment(t, a, "Roof estimate")
	scheduleAppointment(t, a, "Gutter follow-up")
	syncNow(t, a)

	apptColl := remote.CollectionPath(user.UID, canvass.CollectionAppointments)
	require.Equal(t, 2, mem.Count(apptColl))
	require.NoError(t, a.Store().SetPreference(canvass.PrefLocale, "en_CA"))
	require.NoError(t, a.Store().SetPreference(canvass.PrefGuestMode, "true"))

	report, err := a.SignOut(ctx)
	require.NoError(t, err)

	assert.Equal(t, "done", report.WaitResult)
	assert.False(t, report.SyncTimedOut)
	assert.Empty(t, report.Errors)

	appts, err := a.Store().ListAppointments(canvass.AppointmentFilter{})
	require.NoError(t, err)
	assert.Empty(t, appts)
	assert.Equal(t, 2, mem.Count(apptColl), "remote appointments survive sign-out")

	leads, err := a.Store().ListLeads(canvass.LeadFilter{})
	require.NoError(t, err)
	assert.Empty(t, leads)
	assert.Equal(t, 1, mem.Count(remote.CollectionPath(user.UID, canvass.CollectionLeads)))

	locale, err := a.Store().GetPreference(canvass.PrefLocale)
	require.NoError(t, err)
	assert.Equal(t, "en_CA", locale)
	assert.False(t, a.IsGuest())
	cleared, err := a.Store().GetBoolPreference(canvass.PrefCleared)
	require.NoError(t, err)
	assert.True(t, cleared)

	assert.Nil(t, a.CurrentUser())
	assert.Equal(t, sync.Detached, a.Engine().ListenerState())
	assert.Equal(t, AuthIdle, a.AuthState())
}

func TestSignOut_PushesPendingLeadsBeforeClearing(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	ctx := context.Background()

	user, err := a.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)

	lead := addLead(t, a, "Dana Whitfield", 1)
	_, err = a.Leads.RecordCheckIn(ctx, lead.ID, canvass.ChannelInPerson, canvass.OutcomeSpoke, "")
	require.NoError(t, err)

	report, err := a.SignOut(ctx)
	require.NoError(t, err)

	require.NotNil(t, report.Push)
	assert.Equal(t, 2, report.Push.Pushed)
	assert.Equal(t, 1, mem.Count(remote.CollectionPath(user.UID, canvass.CollectionLeads)))
	assert.Equal(t, 1, mem.Count(remote.CollectionPath(user.UID, canvass.CollectionCheckIns)))
}

func TestSignOut_TimeoutPausesEngineAndStillSignsOut(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	ctx := context.Background()

	_, err := a.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)
	addLead(t, a, "Dana Whitfield", 1)

	blockWrites(t, mem)

	start := time.Now()
	report, err := a.SignOut(ctx)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.True(t, report.SyncTimedOut)
	assert.Nil(t, report.Push)
	assert.True(t, a.Engine().IsPaused())
	assert.Nil(t, a.CurrentUser())
	assert.Equal(t, AuthIdle, a.AuthState())

	leads, err := a.Store().ListLeads(canvass.LeadFilter{})
	require.NoError(t, err)
	assert.Empty(t, leads)
}

func TestSignOut_InFlightSyncOutlastsWaitPausesEngine(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	ctx := context.Background()

	_, err := a.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)
	addLead(t, a, "Dana Whitfield", 1)

	blockWrites(t, mem)
	a.Engine().TriggerSync(ctx, sync.SyncOptions{})
	require.Eventually(t, a.Engine().IsSyncing, timeout, tick)

	report, err := a.SignOut(ctx)
	require.NoError(t, err)

	assert.Equal(t, "timed_out", report.WaitResult)
	assert.True(t, report.SyncTimedOut)
	assert.Nil(t, report.Push, "no final sync after a timed-out wait")
	assert.True(t, a.Engine().IsPaused())
	assert.Nil(t, a.CurrentUser())
}

func TestSignOut_SkipsFinalSyncWhenSessionEndsWhileWaiting(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	ctx := context.Background()

	_, err := a.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)

	// Sign out at the identity layer only; the choreography sees no session.
	require.NoError(t, a.auth.SignOut(ctx))

	report, err := a.SignOut(ctx)
	require.NoError(t, err)
	assert.Equal(t, "aborted", report.WaitResult)
	assert.Nil(t, report.Push)
}

func TestSignIn_AfterTimedOutSignOutUnpauses(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	ctx := context.Background()

	_, err := a.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)
	addLead(t, a, "Dana Whitfield", 1)

	release := blockWrites(t, mem)
	_, err = a.SignOut(ctx)
	require.NoError(t, err)
	require.True(t, a.Engine().IsPaused())
	release()
	mem.SetHook(nil)

	_, err = a.SignIn(ctx, testEmail, testPassword)
	require.NoError(t, err)
	assert.False(t, a.Engine().IsPaused())
	waitIdle(t, a)
}

func TestStart_RestoresSession(t *testing.T) {
	mem := remote.NewMemoryStore()
	dir := t.TempDir()
	ctx := context.Background()

	first, err := New(testConfig(dir), WithRemote(mem))
	require.NoError(t, err)
	user, err := first.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, first)
	require.NoError(t, first.Close())

	// A remote appointment added while the app was closed arrives on start.
	appt := canvass.Appointment{
		ID:        uuid.MustParse("0b6f1d6e-4a53-4a43-9a0e-5d1c2f7e8a10"),
		Title:     "Siding quote",
		StartDate: time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2026, 11, 2, 16, 0, 0, 0, time.UTC),
		Type:      canvass.AppointmentEstimate,
		Status:    canvass.AppointmentScheduled,
	}
	require.NoError(t, mem.Set(ctx,
		remote.DocumentPath(user.UID, canvass.CollectionAppointments, appt.ID.String()),
		sync.EncodeAppointment(appt)))

	second := newTestAppIn(t, dir, mem)
	require.NoError(t, second.Start(ctx))

	require.NotNil(t, second.CurrentUser())
	assert.Equal(t, user.UID, second.CurrentUser().UID)
	assert.Equal(t, sync.Listening, second.Engine().ListenerState())
	got, err := second.Store().GetAppointment(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "Siding quote", got.Title)
}

func TestStart_WithoutSessionStaysDetached(t *testing.T) {
	a := newTestApp(t, remote.NewMemoryStore())
	require.NoError(t, a.Start(context.Background()))

	assert.Nil(t, a.CurrentUser())
	assert.Equal(t, sync.Detached, a.Engine().ListenerState())
}

func TestSyncNow_RequiresSession(t *testing.T) {
	a := newTestApp(t, remote.NewMemoryStore())

	_, err := a.SyncNow(context.Background())

	assert.ErrorIs(t, err, canvass.ErrNoSession)
	assert.Equal(t, canvass.KindAuthentication, canvass.KindOf(err))
}

func TestDeleteAllData(t *testing.T) {
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)
	ctx := context.Background()

	user, err := a.SignUp(ctx, testEmail, testPassword, "")
	require.NoError(t, err)
	waitIdle(t, a)
	addLead(t, a, "Dana Whitfield", 1)
	scheduleAppointment(t, a, "Roof estimate")
	syncNow(t, a)

	require.NoError(t, a.DeleteAllData(ctx))

	has, err := mem.HasUserData(ctx, user.UID)
	require.NoError(t, err)
	assert.False(t, has)
	assert.Nil(t, a.CurrentUser())

	leads, err := a.Store().ListLeads(canvass.LeadFilter{})
	require.NoError(t, err)
	assert.Empty(t, leads)

	_, err = a.SignIn(ctx, testEmail, testPassword)
	assert.Equal(t, canvass.KindAuthentication, canvass.KindOf(err))
}

func TestStatus(t *testing.T) {
	a := newTestApp(t, remote.NewMemoryStore())
	require.NoError(t, a.ContinueAsGuest())
	addLead(t, a, "Dana Whitfield", 1)

	st, err := a.Status()
	require.NoError(t, err)

	assert.True(t, st.Guest)
	assert.True(t, st.Offline)
	assert.Nil(t, st.User)
	assert.Equal(t, "idle", st.AuthState)
	assert.Equal(t, 1, st.Stats.LeadCount)
	assert.Equal(t, sync.Detached.String(), st.Sync.Listener)
}

func TestScenario_OfflineCancelThenSync(t *testing.T) {
	ctx := context.Background()
	mem := remote.NewMemoryStore()
	a := newTestApp(t, mem)

	_, err := a.SignUp(ctx, testEmail, testPassword, "Dana")
	require.NoError(t, err)
	waitIdle(t, a)
	appt := scheduleAppointment(t, a, "Roof estimate")
	syncNow(t, a)

	path := remote.DocumentPath(uidOf(t, a), canvass.CollectionAppointments, appt.ID.String())
	doc, err := mem.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "Scheduled", doc["status"])

	// Go offline and cancel locally.
	mem.SetHook(func(ctx context.Context, op, path string) error {
		if op == "set" {
			return canvass.E(canvass.KindNetwork, "set", errors.New("offline"))
		}
		return nil
	})
	_, err = a.Appointments.Cancel(ctx, appt.ID)
	require.NoError(t, err)

	var report *sync.PushReport
	require.Eventually(t, func() bool {
		report, err = a.SyncNow(ctx)
		return !errors.Is(err, canvass.ErrSyncInProgress)
	}, timeout, tick)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Positive(t, report.Failed())
	local, err := a.Appointments.Get(appt.ID)
	require.NoError(t, err)
	assert.Equal(t, canvass.AppointmentCancelled, local.Status, "failed push must not roll back")

	// Back online: the next batched sync carries the cancellation.
	mem.SetHook(nil)
	syncNow(t, a)

	doc, err = mem.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "Cancelled", doc["status"])
}
