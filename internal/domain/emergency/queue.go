package emergency

import (
	"sort"

	"github.com/google/uuid"
)

// QueueScope selects whose pending requests are listed. All is only honoured
// when the server runs with the debug show-all switch.
type QueueScope struct {
	FacilityID uuid.UUID
	All        bool
}

// SortQueue orders requests most critical first, then oldest first. Requests
// with equal keys keep their input order.
func SortQueue(reqs []*Request) {
	sort.SliceStable(reqs, func(i, j int) bool {
		ri, rj := reqs[i].Criticality.Rank(), reqs[j].Criticality.Rank()
		if ri != rj {
			return ri > rj
		}
		return reqs[i].CreatedAt.Before(reqs[j].CreatedAt)
	})
}
