package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/babelcloud/mkvblock/config"
	"github.com/babelcloud/mkvblock/internal/ebmlio"
	"github.com/babelcloud/mkvblock/internal/interop"
	"github.com/babelcloud/mkvblock/internal/mux"
	"github.com/babelcloud/mkvblock/matroska"
)

type InspectOptions struct {
	Decoder string
	Data    bool
}

func NewInspectCommand() *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "List the blocks of a Matroska or WebM file",
		Example: `  mkvblock inspect movie.webm
  mkvblock inspect --decoder ebml-go movie.mkv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "open input")
			}
			defer f.Close()

			switch opts.Decoder {
			case "native":
				return inspectNative(cmd.OutOrStdout(), bufio.NewReader(f), opts.Data)
			case "ebml-go":
				return inspectEBMLGo(cmd.OutOrStdout(), bufio.NewReader(f))
			default:
				return errors.Errorf("unknown decoder %q", opts.Decoder)
			}
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Decoder, "decoder", "native", "Block decoder (native or ebml-go)")
	flags.BoolVar(&opts.Data, "data", false, "Load frame payloads instead of skipping them (native decoder only)")

	cmd.RegisterFlagCompletionFunc("decoder", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"native", "ebml-go"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func inspectNative(w io.Writer, r io.Reader, data bool) error {
	scope := ebmlio.ScopeNoData
	if data {
		scope = ebmlio.ScopeAllData
	}
	policy, err := config.GetPolicy()
	if err != nil {
		return err
	}
	table := matroska.NewTable()
	clusters, err := mux.ReadClusters(ebmlio.NewReader(r), table, scope, policy)
	for i, pc := range clusters {
		fmt.Fprintf(w, "%s #%d at %d, timestamp %d, %d frame(s)\n",
			color.CyanString("cluster"), i, pc.Position, pc.Timestamp, pc.NumFrames())
		for _, h := range pc.Handles {
			fmt.Fprintln(w, "  "+describeHandle(pc, h))
		}
	}
	return err
}

// describeHandle prints timestamps in cluster ticks since the file's track
// scales are not read.
func describeHandle(pc *mux.ParsedCluster, h *matroska.Handle) string {
	b := h.Internal()
	var sb strings.Builder
	ts := int64(pc.Timestamp) + int64(b.RelativeTimestamp())
	fmt.Fprintf(&sb, "%-11s track %d ts %d", h.Kind(), b.TrackNumber(), ts)
	fmt.Fprintf(&sb, " lacing %s frames %s", b.Lacing(), frameSizes(b))

	if h.IsSimpleBlock() {
		s := h.Simple()
		if s.IsKeyframe() {
			sb.WriteString(" " + color.GreenString("key"))
		}
		if s.IsDiscardable() {
			sb.WriteString(" discardable")
		}
	} else {
		g := h.Group()
		if d, ok := g.BlockDuration(); ok {
			fmt.Fprintf(&sb, " duration %d", d)
		}
		if g.ReferenceCount() == 0 {
			sb.WriteString(" " + color.GreenString("key"))
		}
		for i := 0; i < g.ReferenceCount(); i++ {
			fmt.Fprintf(&sb, " ref %+d", g.Reference(i).Delta)
		}
	}
	if b.Invisible() {
		sb.WriteString(" invisible")
	}
	return sb.String()
}

func frameSizes(b *matroska.Block) string {
	parts := make([]string, b.NumFrames())
	for i := range parts {
		parts[i] = fmt.Sprint(b.GetFrameSize(i))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func inspectEBMLGo(w io.Writer, r io.Reader) error {
	doc, err := interop.DecodeDocument(r)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "doctype %s, timecode scale %d ns, %d track(s)\n",
		doc.Header.EBMLDocType, doc.Segment.Info.TimecodeScale, len(doc.Segment.Tracks.TrackEntry))
	for _, te := range doc.Segment.Tracks.TrackEntry {
		fmt.Fprintf(w, "  track %d %s %s\n", te.TrackNumber, te.CodecID, te.Name)
	}

	cluster := -1
	for _, info := range interop.Summarize(doc) {
		if info.Cluster != cluster {
			cluster = info.Cluster
			fmt.Fprintf(w, "%s #%d, timestamp %d\n", color.CyanString("cluster"), cluster, doc.Segment.Cluster[cluster].Timecode)
		}
		kind := matroska.KindCompact
		if info.Group {
			kind = matroska.KindFull
		}
		line := fmt.Sprintf("  %-11s track %d ts %d lacing %s frames %v", kind, info.Track, info.Timestamp, info.Lacing, info.Frames)
		if info.Duration != nil {
			line += fmt.Sprintf(" duration %d", *info.Duration)
		}
		if info.Keyframe {
			line += " " + color.GreenString("key")
		}
		for _, ref := range info.References {
			line += fmt.Sprintf(" ref %+d", ref)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
