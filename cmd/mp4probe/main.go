// Command mp4probe reports per-track sample and keyframe statistics for an
// ISO BMFF container.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mf "github.com/tetsuo/bmff"
)

var showAllKeyframes bool

func main() {
	root := &cobra.Command{
		Use:   "mp4probe <file>",
		Short: "Report per-track sample and keyframe statistics",
		Args:  cobra.ExactArgs(1),
		RunE:  run,
	}
	root.Flags().BoolVar(&showAllKeyframes, "all-keyframes", false, "list every keyframe instead of truncating at 20")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	tracks, err := mf.TrackSamplesFromReader(f)
	if err != nil {
		return fmt.Errorf("extracting track samples: %w", err)
	}

	for _, track := range tracks {
		printTrack(track)
	}
	return nil
}

func printTrack(track mf.TrackSamples) {
	fmt.Printf("Track %d: handler=%s\n", track.TrackID, track.HandlerType)
	fmt.Printf("  Total samples: %d\n", len(track.Samples))
	fmt.Printf("  Duration: %.2fs\n", float64(track.Duration)/float64(track.Timescale))
	fmt.Printf("  TimeScale: %d\n\n", track.Timescale)

	keyframes := 0
	var prevKfTime float64
	var intervals []float64

	fmt.Println("  Keyframes:")
	for j, s := range track.Samples {
		if !s.IsSync {
			continue
		}
		fmt.Printf("    [%5d] %.3fs", j, s.StartTime)
		if keyframes > 0 {
			interval := s.StartTime - prevKfTime
			intervals = append(intervals, interval)
			fmt.Printf(" (%.3fs since last)", interval)
		}
		fmt.Println()

		prevKfTime = s.StartTime
		keyframes++

		if !showAllKeyframes && keyframes >= 20 {
			fmt.Printf("    ... (%d more keyframes)\n", countKeyframes(track.Samples[j+1:]))
			break
		}
	}

	fmt.Printf("\n  Total keyframes: %d\n", countKeyframes(track.Samples))
	if len(intervals) > 0 {
		fmt.Printf("  Keyframe interval: avg=%.3fs min=%.3fs max=%.3fs\n", average(intervals), minimum(intervals), maximum(intervals))
	}
	fmt.Println()
}

func countKeyframes(samples []mf.SampleInfo) int {
	count := 0
	for _, s := range samples {
		if s.IsSync {
			count++
		}
	}
	return count
}

func average(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func minimum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}

func maximum(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals {
		if v > m {
			m = v
		}
	}
	return m
}
