// Package availability aggregates reservations into per-slot occupancy.
package availability

import (
	"strings"

	"reservo/internal/schedule"
	"reservo/internal/slots"
)

// Reservation is an existing booking as read from the backend.
type Reservation struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Zone   string `json:"zone,omitempty"`
	Units  int    `json:"units"`
	Status string `json:"status"`
}

// Excluded reports whether the reservation is ignored by occupancy math.
func (r Reservation) Excluded() bool {
	switch strings.ToLower(strings.TrimSpace(r.Status)) {
	case "cancelled", "canceled", "rejected":
		return true
	}
	return false
}

// units returns the capacity consumed; missing or negative values count as one.
func (r Reservation) units() int {
	if r.Units <= 0 {
		return 1
	}
	return r.Units
}

// ZoneCapacity is the declared capacity of one zone.
type ZoneCapacity struct {
	Name     string
	Capacity int
}

// Capacity describes what a slot can hold. When Zones is non-empty the slot is
// zoned and Total is ignored.
type Capacity struct {
	Total int
	Zones []ZoneCapacity
}

// Zoned reports whether capacity is partitioned by zone.
func (c Capacity) Zoned() bool {
	return len(c.Zones) > 0
}

// Tier is a display-only traffic light for a slot.
type Tier string

const (
	TierOpen      Tier = "open"
	TierNear      Tier = "near_capacity"
	TierExhausted Tier = "exhausted"
)

// NearCapacityPercent is the threshold for TierNear.
const NearCapacityPercent = 75

// Stats is the occupancy of one slot or zone.
type Stats struct {
	Total     int `json:"total_capacity"`
	Occupied  int `json:"occupied_capacity"`
	Available int `json:"available_capacity"`
	Percent   int `json:"percentage_full"`
}

// NewStats derives available capacity and percentage from total and occupied.
func NewStats(total, occupied int) Stats {
	if total < 0 {
		total = 0
	}
	if occupied < 0 {
		occupied = 0
	}
	available := total - occupied
	if available < 0 {
		available = 0
	}
	return Stats{
		Total:     total,
		Occupied:  occupied,
		Available: available,
		Percent:   percent(occupied, total),
	}
}

// percent rounds half up using integer arithmetic and clamps to [0,100].
func percent(occupied, total int) int {
	if total <= 0 {
		return 0
	}
	p := (occupied*200 + total) / (2 * total)
	if p > 100 {
		return 100
	}
	if p < 0 {
		return 0
	}
	return p
}

// Full reports whether no capacity is left. Zero capacity is full even though
// its Percent is 0, so a slot with no seats is never offered.
func (s Stats) Full() bool {
	return s.Percent >= 100 || s.Available <= 0
}

// Tier classifies the percentage for display.
func (s Stats) Tier() Tier {
	switch {
	case s.Full():
		return TierExhausted
	case s.Percent >= NearCapacityPercent:
		return TierNear
	default:
		return TierOpen
	}
}

// ZoneStats is the occupancy of one zone within a slot.
type ZoneStats struct {
	Name string `json:"zone"`
	Stats
}

// SlotOccupancy is the occupancy of one slot. Zones is empty for unzoned capacity.
type SlotOccupancy struct {
	Stats
	Zones []ZoneStats `json:"zones,omitempty"`
}

// Zone returns the stats of the named zone.
func (o SlotOccupancy) Zone(name string) (ZoneStats, bool) {
	key := normalizeZone(name)
	for _, z := range o.Zones {
		if normalizeZone(z.Name) == key {
			return z, true
		}
	}
	return ZoneStats{}, false
}

// AllZonesFull reports whether every zone is exhausted.
func (o SlotOccupancy) AllZonesFull() bool {
	for _, z := range o.Zones {
		if !z.Full() {
			return false
		}
	}
	return true
}

// FullFor reports whether the slot can no longer be selected.
// Unzoned: the aggregate is full. Zone selected: that zone is full (an unknown
// zone cannot be booked). No zone selected: every zone is full.
func (o SlotOccupancy) FullFor(zoned bool, zone string) bool {
	if !zoned {
		return o.Full()
	}
	if strings.TrimSpace(zone) != "" {
		z, ok := o.Zone(zone)
		return !ok || z.Full()
	}
	return o.AllZonesFull()
}

// Occupancy maps slot keys to their occupancy.
type Occupancy struct {
	Zoned bool
	Slots map[string]SlotOccupancy
}

// Lookup returns the occupancy of a slot.
func (o Occupancy) Lookup(s slots.Slot) (SlotOccupancy, bool) {
	v, ok := o.Slots[s.Key()]
	return v, ok
}

// Full reports whether the slot is full for the zone selection. Slots without
// an entry are reported full.
func (o Occupancy) Full(s slots.Slot, zone string) bool {
	v, ok := o.Lookup(s)
	if !ok {
		return true
	}
	return v.FullFor(o.Zoned, zone)
}

// AllFull reports whether every slot is full for the zone selection. An empty
// slot list is full: nothing can be booked.
func (o Occupancy) AllFull(list []slots.Slot, zone string) bool {
	for _, s := range list {
		if !o.Full(s, zone) {
			return false
		}
	}
	return true
}

// Aggregate computes occupancy for every slot. It is a pure function of its inputs.
func Aggregate(list []slots.Slot, reservations []Reservation, capacity Capacity) Occupancy {
	type bucket struct {
		total  int
		byZone map[string]int
	}

	buckets := make(map[string]*bucket, len(list))
	for _, s := range list {
		buckets[s.Key()] = &bucket{byZone: map[string]int{}}
	}

	for _, r := range reservations {
		if r.Excluded() {
			continue
		}
		at, err := schedule.ParseClock(r.Time)
		if err != nil {
			continue
		}
		b, ok := buckets[slots.Key(strings.TrimSpace(r.Date), at)]
		if !ok {
			continue
		}
		b.total += r.units()
		if zone := normalizeZone(r.Zone); zone != "" {
			b.byZone[zone] += r.units()
		}
	}

	out := Occupancy{Zoned: capacity.Zoned(), Slots: make(map[string]SlotOccupancy, len(list))}
	for key, b := range buckets {
		if !capacity.Zoned() {
			out.Slots[key] = SlotOccupancy{Stats: NewStats(capacity.Total, b.total)}
			continue
		}

		zones := make([]ZoneStats, 0, len(capacity.Zones))
		total := 0
		for _, z := range capacity.Zones {
			zones = append(zones, ZoneStats{Name: z.Name, Stats: NewStats(z.Capacity, b.byZone[normalizeZone(z.Name)])})
			if z.Capacity > 0 {
				total += z.Capacity
			}
		}
		out.Slots[key] = SlotOccupancy{Stats: NewStats(total, b.total), Zones: zones}
	}
	return out
}

func normalizeZone(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
