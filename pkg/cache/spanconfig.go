package cache

import (
	"strconv"
	"strings"

	"github.com/tscache/cachetool/pkg/blockio"
	"github.com/tscache/cachetool/pkg/errata"
)

// SpanConfigEntry names one span to load, plus whatever hints followed its
// path on the same line (spec §9 supplemented feature: the original's
// `id=` and `volume=` line tags). A nonzero VolIdx is recorded on the
// loaded Span and excludes that span from the deficit allocator (spec §4.6
// edge case); Span.AllocStripe still uses whatever index its caller passes.
type SpanConfigEntry struct {
	Path   string
	ID     string
	VolIdx int
}

// LoadSpanConfigFile parses a regular file naming one span per line, in
// the form `<path> [id=<string>] [volume=<n>]`. This is the "config
// loader" spec §4.2 describes as dispatched to when Store.LoadSpan is
// handed a regular file rather than a device: the path argument is not
// itself a span, it is a list of spans.
func LoadSpanConfigFile(path string) ([]SpanConfigEntry, errata.Chain) {
	var ec errata.Chain

	lines, err := blockio.SlurpText(path)
	if err != nil {
		return nil, ec.PushErr(errata.Error, errata.CodeOpen, err, "unable to load %s", path)
	}

	var entries []SpanConfigEntry
	for ln, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		e := SpanConfigEntry{Path: fields[0]}
		for _, field := range fields[1:] {
			tag, value, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			switch strings.ToLower(tag) {
			case "id":
				e.ID = value
			case "volume":
				n, perr := strconv.Atoi(value)
				if perr != nil || n <= 0 || n >= 256 {
					ec = ec.Push(errata.Warn, errata.CodeConfigParse, "line %d has invalid volume index %q", ln+1, value)
					continue
				}
				e.VolIdx = n
			}
		}
		entries = append(entries, e)
	}

	return entries, ec
}
