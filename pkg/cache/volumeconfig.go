package cache

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tscache/cachetool/pkg/blockio"
	"github.com/tscache/cachetool/pkg/errata"
	"github.com/tscache/cachetool/pkg/units"
)

// VolumeConfigEntry is one line of a volume configuration file: a volume
// index paired with either an absolute size or a percentage share (spec
// §4.5/§4.6). Alloc holds the value converted to absolute stripe-blocks
// once ConvertToAbsolute has run.
type VolumeConfigEntry struct {
	Idx     int
	Percent int
	Size    units.Megabytes
	Alloc   units.StripeBlocks
}

// HasSize reports whether the entry carries a size, absolute or percent.
func (d VolumeConfigEntry) HasSize() bool { return d.Percent > 0 || d.Size > 0 }

// HasIndex reports whether the entry carries a volume index.
func (d VolumeConfigEntry) HasIndex() bool { return d.Idx > 0 }

// VolumeConfig is the parsed contents of a volume configuration file.
type VolumeConfig struct {
	Volumes []VolumeConfigEntry
}

// LoadVolumeConfig parses path's lines of `volume=<n> size=<megabytes|N%>`
// pairs, one volume per line (spec §4.5, lexical details deferred to the
// original and treated as settled, out-of-core format parsing).
func LoadVolumeConfig(path string) (*VolumeConfig, errata.Chain) {
	var ec errata.Chain

	lines, err := blockio.SlurpText(path)
	if err != nil {
		return nil, ec.PushErr(errata.Error, errata.CodeOpen, err, "unable to load %s", path)
	}

	cfg := &VolumeConfig{}
	for ln, line := range lines {
		entry := VolumeConfigEntry{}
		fields := strings.Fields(line)
		for _, field := range fields {
			tag, value, ok := strings.Cut(field, "=")
			if !ok {
				ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d is invalid", ln+1)
				continue
			}
			switch strings.ToLower(tag) {
			case "size":
				if entry.HasSize() {
					ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d has field size more than once", ln+1)
					continue
				}
				if strings.HasSuffix(value, "%") {
					n, perr := strconv.Atoi(strings.TrimSuffix(value, "%"))
					if perr != nil {
						ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d has invalid value %q for size field", ln+1, value)
						continue
					}
					entry.Percent = n
				} else {
					n, perr := strconv.Atoi(value)
					if perr != nil {
						ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d has invalid value %q for size field", ln+1, value)
						continue
					}
					entry.Size = units.Megabytes(n)
				}
			case "volume":
				if entry.HasIndex() {
					ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d has field volume more than once", ln+1)
					continue
				}
				n, perr := strconv.Atoi(value)
				if perr != nil || n <= 0 {
					ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d has invalid value %q for volume field", ln+1, value)
					continue
				}
				entry.Idx = n
			}
		}

		if entry.HasSize() && entry.HasIndex() {
			cfg.Volumes = append(cfg.Volumes, entry)
		} else {
			if !entry.HasSize() {
				ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d does not have the required field size", ln+1)
			}
			if !entry.HasIndex() {
				ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d does not have the required field volume", ln+1)
			}
		}
	}

	return cfg, ec
}

// ValidatePercentAllocation reports an error if the percentages across all
// volumes sum to more than 100 (spec §4.6 edge case).
func (c *VolumeConfig) ValidatePercentAllocation() errata.Chain {
	var ec errata.Chain
	total := 0
	for _, v := range c.Volumes {
		total += v.Percent
	}
	if total > 100 {
		ec = ec.Push(errata.Error, errata.CodePercentExceeds100, "volume percent allocation %d is more than 100%%", total)
	}
	return ec
}

// ConvertToAbsolute resolves every entry's Alloc field to an absolute
// stripe-block count: percent-based entries take their share of total,
// size-based entries round their megabyte figure up to whole stripe
// blocks (spec §4.6).
func (c *VolumeConfig) ConvertToAbsolute(total units.StripeBlocks) {
	for i := range c.Volumes {
		v := &c.Volumes[i]
		if v.Percent > 0 {
			v.Alloc = units.StripeBlocks((int64(total)*int64(v.Percent) + 99) / 100)
		} else {
			v.Alloc = v.Size.RoundUpStripeBlocks()
		}
	}
}

// String renders the parsed config for debug/dump output.
func (c *VolumeConfig) String() string {
	var b strings.Builder
	for _, v := range c.Volumes {
		fmt.Fprintf(&b, "volume=%d alloc=%s\n", v.Idx, v.Alloc)
	}
	return b.String()
}
