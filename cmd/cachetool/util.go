package main

import (
	"errors"
	"os"

	"github.com/cloudfoundry/bytefmt"
	"github.com/sisatech/tablewriter"
)

// PlainTable prints data in a grid, handling alignment automatically.
func PlainTable(vals [][]string) {
	if len(vals) == 0 {
		panic(errors.New("no rows provided"))
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeader(vals[0])
	for i := 1; i < len(vals); i++ {
		table.Append(vals[i])
	}

	table.Render()
}

// PrintableSize renders a byte count the way a human operator reads span
// and stripe sizes: "128M" rather than "134217728".
type PrintableSize int64

func (c PrintableSize) String() string {
	return bytefmt.ByteSize(uint64(c))
}
