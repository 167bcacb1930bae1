package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperengineering/canvass"
	"github.com/hyperengineering/canvass/internal/remote"
	"github.com/rohanthewiz/logger"
)

// SessionFunc returns the signed-in user's ID, or "" with no session.
type SessionFunc func() string

// Entity is one local record in its remote form.
type Entity struct {
	Collection string
	ID         string
	Doc        remote.Document
}

// AppointmentEntity wraps an appointment for pushing.
func AppointmentEntity(a canvass.Appointment) Entity {
	return Entity{Collection: canvass.CollectionAppointments, ID: a.ID.String(), Doc: EncodeAppointment(a)}
}

// LeadEntity wraps a lead for pushing.
func LeadEntity(l canvass.Lead) Entity {
	return Entity{Collection: canvass.CollectionLeads, ID: l.ID.String(), Doc: EncodeLead(l)}
}

// CheckInEntity wraps a check-in for pushing.
func CheckInEntity(c canvass.FollowUpCheckIn) Entity {
	return Entity{Collection: canvass.CollectionCheckIns, ID: c.ID.String(), Doc: EncodeCheckIn(c)}
}

// PushFailure records one entity that could not be pushed.
type PushFailure struct {
	Collection string `json:"collection"`
	ID         string `json:"id"`
	Error      string `json:"error"`
}

// PushReport summarizes a PushAll run.
type PushReport struct {
	RunID     string        `json:"run_id,omitempty"`
	Attempted int           `json:"attempted"`
	Pushed    int           `json:"pushed"`
	Deleted   int           `json:"deleted"`
	Failures  []PushFailure `json:"failures,omitempty"`
	// NoSession is set when nothing was attempted because nobody is signed in.
	NoSession bool `json:"no_session,omitempty"`
}

// Failed returns the number of failed entities.
func (r *PushReport) Failed() int {
	return len(r.Failures)
}

// Pusher writes full documents to the remote store. It never touches local state.
type Pusher struct {
	remote  remote.DocumentStore
	session SessionFunc
	debug   *canvass.DebugLogger
	metrics *Metrics
	onError func(error)
}

// NewPusher creates a pusher. onError receives every push failure and may be nil.
func NewPusher(store remote.DocumentStore, session SessionFunc, metrics *Metrics, debug *canvass.DebugLogger, onError func(error)) *Pusher {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pusher{remote: store, session: session, debug: debug, metrics: metrics, onError: onError}
}

// PushEntity upserts one document. With no session it does nothing and
// returns nil. A failure is logged, reported to onError and returned; local
// state is never rolled back.
func (p *Pusher) PushEntity(ctx context.Context, e Entity) error {
	uid := p.session()
	if uid == "" {
		return nil
	}
	return p.push(ctx, uid, e)
}

func (p *Pusher) push(ctx context.Context, uid string, e Entity) error {
	path := remote.DocumentPath(uid, e.Collection, e.ID)
	err := p.remote.Set(ctx, path, e.Doc)
	p.metrics.pushes.WithLabelValues(e.Collection, resultLabel(err)).Inc()
	if err != nil {
		logger.LogErr(err, "push failed", "collection", e.Collection, "id", e.ID)
		p.debug.LogError("push "+path, err)
		if p.onError != nil {
			p.onError(err)
		}
		return fmt.Errorf("push %s/%s: %w", e.Collection, e.ID, err)
	}
	return nil
}

// PushAll pushes entities one at a time. A failure does not stop the run;
// every failure is recorded in the report and joined into the returned error.
func (p *Pusher) PushAll(ctx context.Context, entities []Entity) (*PushReport, error) {
	report := &PushReport{}
	uid := p.session()
	if uid == "" {
		report.NoSession = true
		return report, nil
	}

	var errs []error
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, canvass.E(canvass.KindNetwork, "push_all", err))
			break
		}
		report.Attempted++
		if err := p.push(ctx, uid, e); err != nil {
			report.Failures = append(report.Failures, PushFailure{
				Collection: e.Collection,
				ID:         e.ID,
				Error:      err.Error(),
			})
			errs = append(errs, err)
			continue
		}
		report.Pushed++
	}
	return report, errors.Join(errs...)
}

// Delete removes the remote mirror of one entity. With no session it does
// nothing.
func (p *Pusher) Delete(ctx context.Context, collection, id string) error {
	uid := p.session()
	if uid == "" {
		return nil
	}
	path := remote.DocumentPath(uid, collection, id)
	err := p.remote.Delete(ctx, path)
	p.metrics.deletes.WithLabelValues(collection, resultLabel(err)).Inc()
	if err != nil {
		p.debug.LogError("delete "+path, err)
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}
