package manager

import (
	"time"

	"github.com/google/uuid"
	"github.com/hyperengineering/canvass"
)

// Query builds a canvass.LeadFilter.
type Query struct {
	filter canvass.LeadFilter
}

// NewQuery matches every lead.
func NewQuery() *Query {
	return &Query{}
}

// Status restricts to the given statuses. Invalid statuses are ignored.
func (q *Query) Status(statuses ...canvass.LeadStatus) *Query {
	for _, s := range statuses {
		if s.IsValid() {
			q.filter.Statuses = append(q.filter.Statuses, s)
		}
	}
	return q
}

// Open restricts to leads still being worked.
func (q *Query) Open() *Query {
	return q.Status(canvass.LeadNotContacted, canvass.LeadNotHome, canvass.LeadInterested)
}

// Matching does a substring match on name, address, phone and email.
func (q *Query) Matching(text string) *Query {
	q.filter.Query = text
	return q
}

// DueBefore restricts to leads with a follow-up date before t.
func (q *Query) DueBefore(t time.Time) *Query {
	t = t.UTC()
	q.filter.FollowUpDueBefore = &t
	return q
}

// InArea restricts to one area.
func (q *Query) InArea(id uuid.UUID) *Query {
	q.filter.AreaID = &id
	return q
}

// InCategory restricts to one service category.
func (q *Query) InCategory(id uuid.UUID) *Query {
	q.filter.ServiceCategoryID = &id
	return q
}

// Limit caps the result count.
func (q *Query) Limit(n int) *Query {
	q.filter.Limit = n
	return q
}

// Filter returns the built filter.
func (q *Query) Filter() canvass.LeadFilter {
	return q.filter
}
