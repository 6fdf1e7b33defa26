package cache

import "github.com/tscache/cachetool/pkg/units"

// Volume is a live volume: the aggregate of every stripe across every
// loaded span that was assigned to the same volume index (spec §3/§4.5).
type Volume struct {
	Idx     int
	Size    units.StoreBlocks
	Stripes []*Stripe
}

// TotalBytes sums the byte length of every stripe owned by the volume.
func (v *Volume) TotalBytes() units.Bytes {
	return v.Size.Bytes()
}
