package ledger

import (
	"sort"

	"comer/internal/domain"
	"comer/internal/models"
)

// Redefinition describes how an existing slot set moves to a newly expanded one.
type Redefinition struct {
	Update []models.Slot // surviving dates, existing ids, recomputed remaining
	Insert []models.Slot
	Delete []string
}

// PlanRedefinition matches next against current by calendar date.
// A surviving date keeps its slot id and gets remaining = capacity - booked.
// It fails with Conflict:ActiveBookings when a booked date would disappear
// or a slot would shrink below its bookings.
func PlanRedefinition(current *models.Ledger, next []models.Slot) (*Redefinition, error) {
	plan := &Redefinition{}
	kept := make(map[string]struct{}, len(current.Slots))

	for _, n := range next {
		existing, ok := current.SlotByDate(n.Date)
		if !ok {
			n.Remaining = n.Capacity
			plan.Insert = append(plan.Insert, n)
			continue
		}
		booked := current.BookedCount(existing.ID)
		if booked > n.Capacity {
			return nil, domain.ActiveBookings(existing.Date.String())
		}
		n.ID = existing.ID
		n.Remaining = n.Capacity - booked
		plan.Update = append(plan.Update, n)
		kept[existing.ID] = struct{}{}
	}

	for _, s := range current.Slots {
		if _, ok := kept[s.ID]; ok {
			continue
		}
		if current.BookedCount(s.ID) > 0 {
			return nil, domain.ActiveBookings(s.Date.String())
		}
		plan.Delete = append(plan.Delete, s.ID)
	}

	return plan, nil
}

// Slots returns the resulting slot sequence in ascending date order.
func (r *Redefinition) Slots() []models.Slot {
	out := make([]models.Slot, 0, len(r.Update)+len(r.Insert))
	out = append(out, r.Update...)
	out = append(out, r.Insert...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
