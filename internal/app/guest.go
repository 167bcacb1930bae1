package app

import (
	"context"
	"errors"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/identity"
	"github.com/hyperengineering/canvass/internal/sync"
	"github.com/rohanthewiz/logger"
)

// prefConversionUID marks an account whose guest upload started but did not
// finish, so a retry is not rejected by its own partial upload.
const prefConversionUID = "guest_conversion_uid"

// ConvertGuestToAccount creates an account for a guest and uploads the
// guest's local data to it. The guest flag is cleared only after the upload
// finishes within GuestSyncTimeout. The new account must not already own
// remote data.
func (a *App) ConvertGuestToAccount(ctx context.Context, email, password, displayName string) (*identity.User, error) {
	const op = "convert_guest"
	if !a.IsGuest() {
		return nil, canvass.E(canvass.KindValidation, op, canvass.ErrNotGuest)
	}
	if err := identity.ValidateCredentials(email, password); err != nil {
		return nil, err
	}

	a.lifecycle.Lock()
	defer a.lifecycle.Unlock()

	a.setAuthState(AuthConverting)
	defer a.setAuthState(AuthIdle)

	user, err := a.auth.SignUp(ctx, email, password, displayName)
	if errors.Is(err, canvass.ErrAccountExists) {
		user, err = a.auth.SignIn(ctx, email, password)
	}
	if err != nil {
		return nil, err
	}

	fail := func(err error) (*identity.User, error) {
		if serr := a.auth.SignOut(ctx); serr != nil {
			logger.LogErr(serr, "sign-out after failed conversion")
		}
		return nil, err
	}

	retrying, _ := a.store.GetPreference(prefConversionUID)
	if retrying != user.UID {
		exists, err := a.remote.HasUserData(ctx, user.UID)
		if err != nil {
			return fail(err)
		}
		if exists {
			return fail(canvass.E(canvass.KindValidation, op, canvass.ErrRemoteSubtreeExists))
		}
		if err := a.store.SetPreference(prefConversionUID, user.UID); err != nil {
			return fail(err)
		}
	}

	a.engine.Unpause()
	if err := a.store.SetBoolPreference(canvass.PrefCleared, false); err != nil {
		logger.LogErr(err, "reset cleared flag failed")
	}

	var (
		report  *sync.PushReport
		syncErr error
		done    = make(chan struct{})
	)
	bg := context.WithoutCancel(ctx)
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		defer close(done)
		report, syncErr = a.engine.SyncAll(bg, sync.SyncOptions{})
	}()

	wait := waitFor(ctx, a.cfg.GuestSyncTimeout, a.cfg.PollInterval, func() (bool, bool) {
		select {
		case <-done:
			return true, false
		default:
			return false, false
		}
	})
	switch wait {
	case waitTimedOut:
		return fail(canvass.E(canvass.KindNetwork, op, canvass.ErrSyncTimeout))
	case waitAborted:
		return fail(canvass.E(canvass.KindNetwork, op, ctx.Err()))
	}
	if syncErr == nil && report != nil && report.Failed() > 0 {
		syncErr = canvass.E(canvass.KindNetwork, op, errors.New("some records were not uploaded"))
	}
	if syncErr != nil {
		return fail(syncErr)
	}

	if err := a.store.SetBoolPreference(canvass.PrefGuestMode, false); err != nil {
		return fail(err)
	}
	if err := a.store.DeletePreference(prefConversionUID); err != nil {
		logger.LogErr(err, "clear conversion marker failed")
	}
	logger.Info("guest converted", "uid", user.UID, "pushed", report.Pushed)

	a.postSignIn(ctx)
	return user, nil
}
