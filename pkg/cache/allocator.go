package cache

import (
	"fmt"
	"io"
	"sort"

	"github.com/tscache/cachetool/pkg/errata"
	"github.com/tscache/cachetool/pkg/units"
)

// allocatorScale is the fixed-point scale used for deficit weighting: a
// deficit of 1000 means "100% short of target" (spec §4.6).
const allocatorScale = 1000

// volShare tracks one configured volume's running allocation state across
// the fill pass (spec §4.6, the original's private VolumeAllocator::V).
type volShare struct {
	config  *VolumeConfigEntry
	size    units.StripeBlocks
	deficit int64
	shares  int64
}

// VolumeAllocator distributes the free space of every empty span across
// the volumes named in a volume configuration, weighted by how far short
// of its target each volume currently is (spec §4.6).
type VolumeAllocator struct {
	Store  *Store
	Config *VolumeConfig

	shares []*volShare
}

// NewVolumeAllocator loads both the span list and the volume config, then
// seeds each configured volume's starting size from whatever the spans
// already have allocated to it.
func NewVolumeAllocator(spanPath, volumePath string, write bool) (*VolumeAllocator, errata.Chain) {
	var ec errata.Chain

	if volumePath == "" {
		ec = ec.Push(errata.Error, errata.CodeConfigParse, "volume config file not set")
	}
	if spanPath == "" {
		ec = ec.Push(errata.Error, errata.CodeConfigParse, "span file not set")
	}
	if !ec.OK() {
		return nil, ec
	}

	cfg, cfgErr := LoadVolumeConfig(volumePath)
	ec = ec.Append(cfgErr)
	if !ec.OK() {
		return nil, ec
	}

	ec = ec.Append(cfg.ValidatePercentAllocation())
	if !ec.OK() {
		return nil, ec
	}

	store := NewStore(write)
	ec = ec.Append(store.LoadSpan(spanPath))
	if !ec.OK() {
		return nil, ec
	}

	total := store.CalcTotalSpanConfiguredSize()
	cfg.ConvertToAbsolute(total)

	va := &VolumeAllocator{Store: store, Config: cfg}
	for i := range cfg.Volumes {
		entry := &cfg.Volumes[i]
		var size units.StripeBlocks
		if vol, ok := store.Volumes[entry.Idx]; ok {
			size = vol.Size.Bytes().RoundDownStripeBlocks()
		}
		va.shares = append(va.shares, &volShare{config: entry, size: size})
	}

	return va, ec
}

// FillEmptySpans allocates every still-empty span's free space to the
// configured volumes, weighted by deficit, then writes the span's updated
// header back out (spec §4.6). A span carrying a forced VolIdx (from a
// span-list `volume=` hint) is skipped, per spec §9: forced spans are
// excluded from the deficit allocator entirely.
func (va *VolumeAllocator) FillEmptySpans(w io.Writer) errata.Chain {
	var ec errata.Chain

	for _, span := range va.Store.Spans {
		if !span.IsEmpty() || span.VolIdx != 0 {
			continue
		}

		fmt.Fprintf(w, "Allocating %s from span %s\n", span.Len.Bytes().RoundDownStripeBlocks(), span.Path)

		var totalShares int64
		for _, v := range va.shares {
			delta := int64(v.config.Alloc) - int64(v.size)
			if delta > 0 && v.config.Alloc > 0 {
				v.deficit = (delta * allocatorScale) / int64(v.config.Alloc)
				v.shares = delta * v.deficit
				totalShares += v.shares
			} else {
				v.shares = 0
			}
		}

		spanBlocks := span.FreeSpace.Bytes().RoundUpStripeBlocks()
		var spanUsed units.StripeBlocks

		sort.SliceStable(va.shares, func(i, j int) bool {
			return va.shares[i].deficit > va.shares[j].deficit
		})

		for _, v := range va.shares {
			if v.shares == 0 {
				continue
			}
			n := units.StripeBlocks((((int64(spanBlocks) - int64(spanUsed)) * v.shares) + totalShares - 1) / totalShares)
			delta := units.StripeBlocks(int64(v.config.Alloc) - int64(v.size))
			// A large, empty volume can otherwise dominate the shares
			// enough to be handed more than its remaining deficit.
			if n > delta {
				n = delta
			}
			if n == 0 {
				continue
			}

			v.size += n
			spanUsed += n
			totalShares -= v.shares

			newStripe, err := span.AllocStripe(v.config.Idx, n.RoundUpStoreBlocks())
			if err != nil {
				ec = ec.Push(errata.Error, errata.CodeNoSpace, "%s", err.Error())
				continue
			}
			ec = ec.Append(newStripe.InitializeMeta())
			fmt.Fprintf(w, "           %s to volume %d\n", n, v.config.Idx)
		}
		fmt.Fprintf(w, "     Total %s\n", spanUsed)

		fmt.Fprintf(w, " Updating Header ... ")
		hdrErr := span.UpdateHeader()
		ec = ec.Append(hdrErr)
		if hdrErr.OK() {
			fmt.Fprintln(w, "Done")
		} else {
			fmt.Fprintln(w, "Error")
			hdrErr.Fprint(w)
		}
	}

	return ec
}
