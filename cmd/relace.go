package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/mkvblock/config"
	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/internal/mux"
	"github.com/babelcloud/mkvblock/matroska"
)

type RelaceOptions struct {
	Lacing    string
	Policy    string
	MaxFrames int
	Output    string
}

func NewRelaceCommand() *cobra.Command {
	opts := &RelaceOptions{}

	cmd := &cobra.Command{
		Use:   "relace FILE",
		Short: "Rewrite the clusters of a file with a different lacing and block policy",
		Long: `Read every cluster of FILE and write its frames out again as bare clusters.
Lacing, block policy and frame limit default to the configuration (MKVBLOCK_LACING,
MKVBLOCK_POLICY, MKVBLOCK_MAX_FRAMES). Track timestamp scales come from MKVBLOCK_TIMESTAMP_SCALE.`,
		Example: `  mkvblock relace --lacing xiph -o out.mkv in.mkv
  mkvblock relace --policy no-simple in.webm > clusters.bin`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelace(cmd, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Lacing, "lacing", "", "Lacing for keyframe runs (none, xiph, fixed, ebml, auto)")
	flags.StringVar(&opts.Policy, "policy", "", "Block policy (no-simple, always-simple, simple-auto)")
	flags.IntVar(&opts.MaxFrames, "max-frames", 0, "Frames per laced block")
	flags.StringVarP(&opts.Output, "output", "o", "", "Output file (default stdout)")

	cmd.RegisterFlagCompletionFunc("lacing", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return matroska.LacingNames(), cobra.ShellCompDirectiveNoFileComp
	})
	cmd.RegisterFlagCompletionFunc("policy", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return matroska.PolicyNames(), cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func (o *RelaceOptions) muxOptions() (mux.Options, error) {
	var opts mux.Options
	var err error
	if o.Lacing != "" {
		opts.Lacing, err = matroska.ParseLacing(o.Lacing)
	} else {
		opts.Lacing, err = config.GetLacing()
	}
	if err != nil {
		return opts, err
	}
	if o.Policy != "" {
		opts.Policy, err = matroska.ParsePolicy(o.Policy)
	} else {
		opts.Policy, err = config.GetPolicy()
	}
	if err != nil {
		return opts, err
	}
	opts.MaxFrames = o.MaxFrames
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = config.GetMaxFrames()
	}
	if opts.MaxFrames > matroska.MaxLacedFrames {
		return opts, errors.Errorf("--max-frames above %d", matroska.MaxLacedFrames)
	}
	return opts, nil
}

func runRelace(cmd *cobra.Command, input string, o *RelaceOptions) error {
	opts, err := o.muxOptions()
	if err != nil {
		return err
	}
	scale, err := config.GetTimestampScale()
	if err != nil {
		return err
	}

	in, err := os.Open(input)
	if err != nil {
		return errors.Wrap(err, "open input")
	}
	defer in.Close()

	var out io.Writer = cmd.OutOrStdout()
	if o.Output != "" {
		f, err := os.Create(o.Output)
		if err != nil {
			return errors.Wrap(err, "create output")
		}
		defer f.Close()
		out = f
	}
	bw := bufio.NewWriter(out)

	n, err := relace(bufio.NewReader(in), bw, scale, opts)
	if err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush output")
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "relaced %d frame(s)\n", n)
	return nil
}

// relace copies every frame of r into a ClusterMuxer writing to w. Track
// numbers are kept; each frame takes the cluster tick of its block.
func relace(r io.Reader, w io.Writer, scale uint64, opts mux.Options) (int, error) {
	src := matroska.NewTable()
	dst := matroska.NewTable()
	m := mux.NewClusterMuxer(w, dst, opts)

	clusters, err := mux.ReadClusters(ebmlio.NewReader(r), src, ebmlio.ScopeAllData, matroska.PolicySimpleAuto)
	if err != nil {
		return 0, errors.Wrap(err, "read clusters")
	}

	frames := 0
	for _, pc := range clusters {
		for _, h := range pc.Handles {
			b := h.Internal()
			track, ok := dst.TrackByNumber(b.TrackNumber())
			if !ok {
				track = dst.AddTrack(b.TrackNumber(), scale)
			}
			rel := int64(pc.Timestamp) + int64(b.RelativeTimestamp())
			if rel < 0 {
				return frames, errors.Wrapf(matroska.ErrTimestampRange, "block of track %d before zero", b.TrackNumber())
			}
			ts := uint64(rel)
			key := h.IsSimpleBlock() && h.Simple().IsKeyframe() ||
				!h.IsSimpleBlock() && h.Group().ReferenceCount() == 0
			for i := 0; i < b.NumFrames(); i++ {
				if err := m.WriteFrame(track, ts, b.Frame(i).Bytes(), key); err != nil {
					return frames, errors.Wrapf(err, "frame %d of track %d", i, b.TrackNumber())
				}
				frames++
			}
			h.ReleaseFrames()
		}
	}
	return frames, m.Close()
}
