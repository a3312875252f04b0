package cmd

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/matroska"
)

type LacingOptions struct {
	Track uint16
}

func NewLacingCommand() *cobra.Command {
	opts := &LacingOptions{}

	cmd := &cobra.Command{
		Use:   "lacing SIZE...",
		Short: "Compare lace table sizes for a list of frame sizes",
		Long:  "Print the lace table size of every lacing method for the given frame sizes and mark the one a block would pick.",
		Example: `  mkvblock lacing 100 100 250
  mkvblock lacing --track 130 400 400 400 400`,
		Args: cobra.RangeArgs(1, matroska.MaxLacedFrames),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizes, err := parseFrameSizes(args)
			if err != nil {
				return err
			}
			return printLacing(cmd.OutOrStdout(), opts.Track, sizes)
		},
	}

	cmd.Flags().Uint16Var(&opts.Track, "track", 1, "Track number, used for the block head size")
	return cmd
}

func parseFrameSizes(args []string) ([]int32, error) {
	sizes := make([]int32, len(args))
	for i, a := range args {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "frame size %q", a)
		}
		if n <= 0 || n > math.MaxInt32 {
			return nil, errors.Errorf("frame size %d out of range", n)
		}
		sizes[i] = int32(n)
	}
	return sizes, nil
}

// lacingRow is one line of the lacing report.
type lacingRow struct {
	lacing matroska.Lacing
	table  uint64
	usable bool
}

func lacingRows(sizes []int32) []lacingRow {
	equal := true
	for _, s := range sizes[1:] {
		if s != sizes[0] {
			equal = false
		}
	}
	rows := []lacingRow{
		{lacing: matroska.LacingNone, usable: len(sizes) == 1},
		{lacing: matroska.LacingXiph, usable: len(sizes) > 1},
		{lacing: matroska.LacingFixed, usable: len(sizes) > 1 && equal},
		{lacing: matroska.LacingEBML, usable: len(sizes) > 1},
	}
	for i := range rows {
		rows[i].table = matroska.LacingSize(rows[i].lacing, sizes)
	}
	return rows
}

func printLacing(w io.Writer, track uint16, sizes []int32) error {
	var payload uint64
	for _, s := range sizes {
		payload += uint64(s)
	}
	head := uint64(ebmlio.VintSize(uint64(track))) + 3

	best := matroska.BestLacing(sizes)
	mark := color.New(color.FgGreen, color.Bold)
	faint := color.New(color.Faint)

	fmt.Fprintf(w, "%d frame(s), %d payload bytes, %d head bytes\n\n", len(sizes), payload, head)
	fmt.Fprintf(w, "%-8s %8s %10s\n", "LACING", "TABLE", "BLOCK")
	for _, row := range lacingRows(sizes) {
		line := fmt.Sprintf("%-8s %8d %10d", row.lacing, row.table, head+row.table+payload)
		switch {
		case row.lacing == best:
			fmt.Fprintln(w, mark.Sprint(line+"  *"))
		case !row.usable:
			fmt.Fprintln(w, faint.Sprint(line+"  n/a"))
		default:
			fmt.Fprintln(w, line)
		}
	}
	return nil
}
