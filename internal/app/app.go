// Package app wires the local store, remote store, identity provider, sync
// engine and managers into one container and runs the account lifecycle:
// sign-in, sign-out, guest mode and guest conversion.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/identity"
	"github.com/hyperengineering/canvass/internal/manager"
	"github.com/hyperengineering/canvass/internal/remote"
	"github.com/hyperengineering/canvass/internal/sync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rohanthewiz/logger"
)

// AuthState is where the account lifecycle currently is.
type AuthState int

const (
	AuthIdle AuthState = iota
	AuthSigningIn
	AuthSigningOut
	AuthConverting
)

func (s AuthState) String() string {
	switch s {
	case AuthIdle:
		return "idle"
	case AuthSigningIn:
		return "signing_in"
	case AuthSigningOut:
		return "signing_out"
	case AuthConverting:
		return "converting"
	default:
		return "unknown"
	}
}

// Auth is the identity provider plus session restore.
type Auth interface {
	identity.Provider
	Restore(ctx context.Context) (*identity.User, error)
}

// App is the dependency container. Construct with New and release with Close.
type App struct {
	cfg    canvass.Config
	store  *canvass.Store
	remote remote.DocumentStore
	auth   Auth
	engine *sync.Engine
	debug  *canvass.DebugLogger

	Leads        *manager.LeadManager
	Appointments *manager.AppointmentManager

	// lifecycle serializes sign-in, sign-out and conversion.
	lifecycle gosync.Mutex

	mu        gosync.RWMutex
	authState AuthState

	bg     gosync.WaitGroup
	closed bool
}

type options struct {
	remote     remote.DocumentStore
	auth       Auth
	calendar   manager.Calendar
	notifier   manager.Notifier
	registerer prometheus.Registerer
}

// Option configures New.
type Option func(*options)

// WithRemote overrides the remote store chosen from the config.
func WithRemote(rs remote.DocumentStore) Option {
	return func(o *options) { o.remote = rs }
}

// WithAuth overrides the local identity provider.
func WithAuth(a Auth) Option {
	return func(o *options) { o.auth = a }
}

// WithCalendar sets the calendar collaborator.
func WithCalendar(c manager.Calendar) Option {
	return func(o *options) { o.calendar = c }
}

// WithNotifier sets the reminder collaborator.
func WithNotifier(n manager.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithRegisterer registers sync metrics.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// New opens the local store and builds every component. The remote store is
// an HTTPStore when RemoteURL is set, a FileStore when RemoteDir is set, and
// an in-memory store otherwise.
func New(cfg canvass.Config, opts ...Option) (*App, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	debug, err := canvass.NewDebugLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LocalPath), 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	store, err := canvass.NewStore(cfg.LocalPath)
	if err != nil {
		return nil, err
	}

	rs := o.remote
	if rs == nil {
		rs, err = remoteFromConfig(cfg, debug)
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	auth := o.auth
	if auth == nil {
		lp, err := identity.NewLocalProvider(store, identity.WithSecret(cfg.JWTSecret))
		if err != nil {
			store.Close()
			return nil, err
		}
		auth = lp
	}

	a := &App{
		cfg:    cfg,
		store:  store,
		remote: rs,
		auth:   auth,
		debug:  debug,
	}

	interval := cfg.SyncInterval
	if !cfg.AutoSync {
		interval = 0
	}
	a.engine = sync.NewEngine(store, rs, a.sessionUID, sync.Options{
		Interval:   interval,
		Registerer: o.registerer,
		Debug:      debug,
	})
	a.Leads = manager.NewLeadManager(store, o.notifier, a.engine)
	a.Appointments = manager.NewAppointmentManager(store, o.calendar, a.engine)
	return a, nil
}

func remoteFromConfig(cfg canvass.Config, debug *canvass.DebugLogger) (remote.DocumentStore, error) {
	switch {
	case cfg.RemoteURL != "":
		return remote.NewHTTPStore(cfg.RemoteURL, cfg.APIKey).WithDebug(debug), nil
	case cfg.RemoteDir != "":
		return remote.NewFileStore(cfg.RemoteDir, remote.WithFileDebug(debug))
	default:
		logger.Debug("no remote configured, documents stay in memory")
		return remote.NewMemoryStore(), nil
	}
}

func (a *App) sessionUID() string {
	if u := a.auth.CurrentUser(); u != nil {
		return u.UID
	}
	return ""
}

// Store returns the local store.
func (a *App) Store() *canvass.Store { return a.store }

// Remote returns the remote store.
func (a *App) Remote() remote.DocumentStore { return a.remote }

// Engine returns the sync engine.
func (a *App) Engine() *sync.Engine { return a.engine }

// Config returns the effective configuration.
func (a *App) Config() canvass.Config { return a.cfg }

// Events returns the sync event bus.
func (a *App) Events() *sync.Bus { return a.engine.Events() }

// CurrentUser returns the signed-in user or nil.
func (a *App) CurrentUser() *identity.User { return a.auth.CurrentUser() }

// Start restores a saved session, runs one-time maintenance and starts the
// periodic sync timer. With a restored session the listener is attached.
func (a *App) Start(ctx context.Context) error {
	if _, err := a.Leads.BackfillCheckInOutcomes(); err != nil {
		logger.LogErr(err, "check-in outcome backfill failed")
	}

	user, err := a.auth.Restore(ctx)
	if err != nil {
		return err
	}
	if user != nil {
		logger.Info("session restored", "uid", user.UID)
		cleared, _ := a.store.GetBoolPreference(canvass.PrefCleared)
		if !cleared {
			if err := a.engine.StartListening(ctx); err != nil {
				logger.LogErr(err, "listener start failed")
			}
		}
	}
	a.engine.Start(ctx)
	return nil
}

// Close stops background work and closes the store.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.bg.Wait()
	a.engine.Close()
	err := a.store.Close()
	_ = a.debug.Close()
	return err
}

// AuthState returns the lifecycle state.
func (a *App) AuthState() AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.authState
}

func (a *App) setAuthState(s AuthState) {
	a.mu.Lock()
	a.authState = s
	a.mu.Unlock()
}

// IsGuest reports whether the rep is using the app without an account.
func (a *App) IsGuest() bool {
	guest, err := a.store.GetBoolPreference(canvass.PrefGuestMode)
	return err == nil && guest
}

// SignUp creates an account and signs in. In guest mode it fails with
// ErrGuestMode; ConvertGuestToAccount is the path that uploads guest data.
func (a *App) SignUp(ctx context.Context, email, password, displayName string) (*identity.User, error) {
	if err := identity.ValidateCredentials(email, password); err != nil {
		return nil, err
	}
	if a.IsGuest() {
		return nil, canvass.E(canvass.KindValidation, "sign_up", canvass.ErrGuestMode)
	}
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.setAuthState(AuthSigningIn)
	defer a.setAuthState(AuthIdle)

	user, err := a.auth.SignUp(ctx, email, password, displayName)
	if err != nil {
		return nil, err
	}
	a.postSignIn(ctx)
	return user, nil
}

// SignIn signs in to an existing account.
func (a *App) SignIn(ctx context.Context, email, password string) (*identity.User, error) {
	if err := identity.ValidateEmail(email); err != nil {
		return nil, err
	}
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.setAuthState(AuthSigningIn)
	defer a.setAuthState(AuthIdle)

	user, err := a.auth.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	a.postSignIn(ctx)
	return user, nil
}

// postSignIn attaches the appointment listener and starts a batched sync of
// the other entity types. Both run in the background.
func (a *App) postSignIn(ctx context.Context) {
	if err := a.store.SetBoolPreference(canvass.PrefCleared, false); err != nil {
		logger.LogErr(err, "reset cleared flag failed")
	}
	a.engine.Unpause()

	bg := context.WithoutCancel(ctx)
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		if err := a.engine.StartListening(bg); err != nil {
			logger.LogErr(err, "listener start after sign-in failed")
		}
	}()
	a.engine.TriggerSync(bg, sync.SyncOptions{ExcludeAppointments: true})
}

// ContinueAsGuest enables guest mode. Guest data stays local until converted.
func (a *App) ContinueAsGuest() error {
	if a.auth.IsAuthenticated() {
		return canvass.E(canvass.KindValidation, "continue_as_guest", errors.New("already signed in"))
	}
	return a.store.SetBoolPreference(canvass.PrefGuestMode, true)
}

// SyncNow runs a batched sync of everything.
func (a *App) SyncNow(ctx context.Context) (*sync.PushReport, error) {
	if !a.auth.IsAuthenticated() {
		return nil, canvass.E(canvass.KindAuthentication, "sync", canvass.ErrNoSession)
	}
	return a.engine.SyncAll(ctx, sync.SyncOptions{})
}

// ResetPassword starts a password reset.
func (a *App) ResetPassword(ctx context.Context, email string) error {
	if err := identity.ValidateEmail(email); err != nil {
		return err
	}
	return a.auth.ResetPassword(ctx, email)
}

// Status summarizes the app for display.
type Status struct {
	User      *identity.User      `json:"user,omitempty"`
	Guest     bool                `json:"guest"`
	Offline   bool                `json:"offline"`
	AuthState string              `json:"auth_state"`
	Sync      sync.StatusSnapshot `json:"sync"`
	Stats     *canvass.StoreStats `json:"stats,omitempty"`
	Profile   string              `json:"profile"`
	LastSync  string              `json:"last_sync,omitempty"`
}

// Status returns the current app status.
func (a *App) Status() (*Status, error) {
	stats, err := a.store.Stats()
	if err != nil {
		return nil, err
	}
	lastSync, _ := a.store.GetPreference(canvass.PrefLastSync)
	return &Status{
		User:      a.auth.CurrentUser(),
		Guest:     a.IsGuest(),
		Offline:   a.cfg.IsOffline(),
		AuthState: a.AuthState().String(),
		Sync:      a.engine.Snapshot(),
		Stats:     stats,
		Profile:   a.cfg.Profile,
		LastSync:  lastSync,
	}, nil
}

// DeleteAllData removes the rep's remote subtree, local data and account.
func (a *App) DeleteAllData(ctx context.Context) error {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	uid := a.sessionUID()
	if uid == "" {
		return canvass.E(canvass.KindAuthentication, "delete_all_data", canvass.ErrNoSession)
	}

	a.engine.StopListening()
	if err := a.remote.DeleteUserData(ctx, uid); err != nil {
		return fmt.Errorf("delete remote data: %w", err)
	}
	if err := a.engine.ClearLocalAppointments(); err != nil {
		return err
	}
	if err := a.store.ClearAll(); err != nil {
		return err
	}
	if err := a.store.ClearPreferences(a.preserved()); err != nil {
		return err
	}
	if err := a.auth.DeleteAccount(ctx); err != nil {
		return err
	}
	a.engine.Reset()
	a.setAuthState(AuthIdle)
	return nil
}

func (a *App) preserved() []string {
	return append(canvass.PreservedPreferences(), identity.PrefJWTSecret)
}
