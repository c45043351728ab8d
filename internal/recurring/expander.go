// Package recurring materializes the dated instances of recurring templates.
package recurring

import (
	"time"

	"edwinliby/xpense-sync/internal/dateutils"
	"edwinliby/xpense-sync/internal/models"

	"github.com/google/uuid"
)

// DefaultHorizonMonths bounds how far ahead instances are generated.
const DefaultHorizonMonths = 12

// Expander generates instances up to a horizon measured from now.
type Expander struct {
	HorizonMonths int
	NewID         func() string
	Now           func() time.Time
}

// New returns an Expander with the default horizon, uuid ids and wall clock.
func New(horizonMonths int) *Expander {
	if horizonMonths <= 0 {
		horizonMonths = DefaultHorizonMonths
	}
	return &Expander{
		HorizonMonths: horizonMonths,
		NewID:         uuid.NewString,
		Now:           time.Now,
	}
}

// FirstOccurrence is the initial nextOccurrence of a new template: one
// interval after its own date.
func FirstOccurrence(template models.Transaction) time.Time {
	return dateutils.Advance(template.Date, template.Interval())
}

// Expand materializes every instance of template due on or before the
// horizon and returns the template with nextOccurrence advanced past it.
// changed is false when the template needed no update.
func (e *Expander) Expand(template models.Transaction) (updated models.Transaction, instances []models.Transaction, changed bool) {
	updated = template.Clone()
	if !template.IsTemplate() || template.IsTrashed() {
		return updated, nil, false
	}

	next := FirstOccurrence(template)
	if template.NextOccurrence != nil {
		next = *template.NextOccurrence
	} else {
		changed = true
	}

	horizon := dateutils.AddMonths(e.Now(), e.HorizonMonths)
	interval := template.Interval()
	for !next.After(horizon) {
		instances = append(instances, e.instance(template, next))
		next = dateutils.Advance(next, interval)
	}
	if len(instances) > 0 {
		changed = true
	}
	updated.NextOccurrence = models.TimePtr(next)
	return updated, instances, changed
}

func (e *Expander) instance(template models.Transaction, date time.Time) models.Transaction {
	inst := template.Clone()
	inst.ID = e.NewID()
	inst.Date = date
	inst.IsRecurring = false
	inst.RecurrenceInterval = ""
	inst.NextOccurrence = nil
	inst.ParentID = template.ID
	inst.DeletedAt = nil
	return inst
}

// Result is the outcome of expanding a whole transaction set.
type Result struct {
	// Templates holds every template whose nextOccurrence changed.
	Templates []models.Transaction
	// Instances holds the newly generated instances, grouped by template in
	// input order and dated ascending within a group.
	Instances []models.Transaction
}

// Empty reports whether nothing changed.
func (r Result) Empty() bool {
	return len(r.Templates) == 0 && len(r.Instances) == 0
}

// ExpandAll runs Expand over every template in txs.
func (e *Expander) ExpandAll(txs []models.Transaction) Result {
	var res Result
	for _, tx := range txs {
		updated, instances, changed := e.Expand(tx)
		if !changed {
			continue
		}
		res.Templates = append(res.Templates, updated)
		res.Instances = append(res.Instances, instances...)
	}
	return res
}
