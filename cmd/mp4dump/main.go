// Command mp4dump prints the box tree of an ISO BMFF container.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	mf "github.com/tetsuo/bmff"
)

var (
	decode  bool
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "mp4dump <file>",
		Short: "Print the box tree of an ISO BMFF container",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().BoolVar(&decode, "decode", true, "attach structured decodings to leaf boxes")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "log warnings (truncation, invariant violations) to stderr")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if verbose {
		mf.SetLogger(mf.NewConsoleLogger(zerolog.WarnLevel))
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	report, err := mf.AnalyzeReport(f, decode)
	if err != nil {
		return fmt.Errorf("analyzing: %w", err)
	}

	for _, box := range report.Boxes {
		printNode(f, box, 0)
	}

	for _, w := range report.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}

	return nil
}

func printNode(f *os.File, n mf.ReportNode, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Printf("%s[%s] offset=%d size=%d kind=%s (%s)", indent, n.Type, n.Offset, n.Size, n.Kind, n.FullName)
	if n.Version != nil {
		fmt.Printf(" v=%d flags=0x%06x", *n.Version, *n.Flags)
	}
	if n.UUID != "" {
		fmt.Printf(" uuid=%s", n.UUID)
	}
	if n.Decoded != nil {
		fmt.Printf(" decoded=%v", n.Decoded)
	}
	fmt.Println()

	if stsd, ok := n.Decoded.(mf.StsdData); ok {
		for _, e := range stsd.Entries {
			if codec := sampleEntryCodec(f, e); codec != "" {
				fmt.Printf("%s  [%s] codec=%s\n", indent, e.Type, codec)
			}
		}
	}

	for _, c := range n.Children {
		printNode(f, c, depth+1)
	}
}

// sampleEntryCodec reads a stsd sample entry's raw bytes and extracts its
// codec string from the avcC or esds child box, the way a codec-aware
// consumer is expected to per decodeStsd's offset/length-only decoding.
func sampleEntryCodec(f *os.File, e mf.StsdSampleEntry) string {
	buf := make([]byte, e.Length)
	if _, err := f.ReadAt(buf, e.Offset); err != nil {
		return ""
	}
	if len(buf) < 8 {
		return ""
	}
	body := buf[8:] // past the sample entry's own size+type header

	switch e.Type {
	case mf.TypeAvc1:
		if len(body) < 78 {
			return ""
		}
		entry := mf.ReadVisualSampleEntry(body)
		return findChildCodec(body[entry.ChildOffset:], mf.TypeAvcC)
	case mf.TypeMp4a:
		if len(body) < 28 {
			return ""
		}
		entry := mf.ReadAudioSampleEntry(body)
		return findChildCodec(body[entry.ChildOffset:], mf.TypeEsds)
	default:
		return ""
	}
}

func findChildCodec(data []byte, want mf.BoxType) string {
	r := mf.NewReader(data)
	for r.Next() {
		if r.Type() != want {
			continue
		}
		switch want {
		case mf.TypeAvcC:
			return mf.ReadAvcC(r.Data())
		case mf.TypeEsds:
			return mf.ReadEsdsCodec(r.Data())
		}
	}
	return ""
}
