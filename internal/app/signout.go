package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/sync"
	"github.com/rohanthewiz/logger"
)

// SignOutReport records what each sign-out phase did.
type SignOutReport struct {
	// WaitResult is how the wait for an in-flight sync ended.
	WaitResult string `json:"wait_result"`
	// Push is the final batched sync, nil when it was skipped or timed out.
	Push *sync.PushReport `json:"push,omitempty"`
	// SyncTimedOut means the wait for an in-flight sync or the final sync ran
	// past SignOutSyncTimeout and the engine was paused.
	SyncTimedOut bool `json:"sync_timed_out"`
	// Errors from phases that are logged and skipped.
	Errors []string `json:"errors,omitempty"`
}

func (r *SignOutReport) note(phase string, err error) {
	if err == nil {
		return
	}
	logger.LogErr(err, "sign-out phase failed", "phase", phase)
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", phase, err))
}

// SignOut tears the session down in a fixed order:
//
//  1. detach the appointment listener
//  2. clear local appointments
//  3. wait for an in-flight sync, bounded by SignOutSyncTimeout
//  4. push leads and check-ins, bounded by SignOutSyncTimeout; pause the engine on timeout
//  5. clear local data, preferences outside the allow-list and the cache directory
//  6. sign out of the identity provider
//  7. reset the auth state to idle
//
// Failures in phases 1 to 5 are logged and do not stop the sequence. Phases 6
// and 7 always run. Remote appointment documents are never deleted.
func (a *App) SignOut(ctx context.Context) (*SignOutReport, error) {
	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.setAuthState(AuthSigningOut)
	defer a.setAuthState(AuthIdle)

	report := &SignOutReport{}

	a.engine.StopListening()

	report.note("clear_appointments", a.engine.ClearLocalAppointments())

	wait := waitFor(ctx, a.cfg.SignOutSyncTimeout, a.cfg.PollInterval, func() (bool, bool) {
		if !a.auth.IsAuthenticated() {
			return false, true
		}
		return !a.engine.IsSyncing(), false
	})
	report.WaitResult = wait.String()

	switch wait {
	case waitDone:
		push, timedOut, err := a.finalSync(ctx)
		report.Push = push
		report.SyncTimedOut = timedOut
		report.note("final_sync", err)
	case waitTimedOut:
		// The in-flight sync may still write; no later sync may start.
		a.engine.Pause()
		report.SyncTimedOut = true
		logger.Info("in-flight sync outlasted the wait, engine paused")
	default:
		logger.Info("skipping final sync", "wait", wait.String())
	}

	report.note("clear_local", a.clearLocal())

	var signOutErr error
	if err := a.auth.SignOut(ctx); err != nil {
		signOutErr = canvass.E(canvass.KindAuthentication, "sign_out", err)
		logger.LogErr(err, "identity sign-out failed")
	}

	logger.Info("signed out", "pushed", pushedCount(report.Push), "timed_out", report.SyncTimedOut)
	return report, signOutErr
}

// finalSync pushes everything except appointments. The push keeps running
// past the timeout; only later syncs are stopped by pausing the engine.
func (a *App) finalSync(ctx context.Context) (*sync.PushReport, bool, error) {
	type result struct {
		report *sync.PushReport
		err    error
	}
	done := make(chan result, 1)
	bg := context.WithoutCancel(ctx)

	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		r, err := a.engine.SyncAll(bg, sync.SyncOptions{ExcludeAppointments: true})
		done <- result{r, err}
	}()

	timer := time.NewTimer(a.cfg.SignOutSyncTimeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.report, false, res.err
	case <-timer.C:
		a.engine.Pause()
		return nil, true, canvass.E(canvass.KindNetwork, "sign_out_sync", canvass.ErrSyncTimeout)
	}
}

func (a *App) clearLocal() error {
	var errs []error
	if err := a.store.ClearAll(); err != nil {
		errs = append(errs, err)
	}
	if err := a.store.ClearPreferences(a.preserved()); err != nil {
		errs = append(errs, err)
	}
	if a.cfg.CacheDir != "" {
		if err := os.RemoveAll(a.cfg.CacheDir); err != nil {
			errs = append(errs, fmt.Errorf("remove cache: %w", err))
		}
	}
	if err := a.store.SetBoolPreference(canvass.PrefCleared, true); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func pushedCount(r *sync.PushReport) int {
	if r == nil {
		return 0
	}
	return r.Pushed
}
