// Command derive analyses a recorded physician demonstration and writes a
// repetition definition fitted to it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/banshee-data/rehab.report/internal/capture"
	"github.com/banshee-data/rehab.report/internal/config"
	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/monitoring"
	"github.com/banshee-data/rehab.report/internal/recorder"
	"github.com/banshee-data/rehab.report/internal/report"
	"github.com/banshee-data/rehab.report/internal/security"
	"github.com/banshee-data/rehab.report/internal/version"
)

type options struct {
	logPath      string
	exerciseID   string
	newID        string
	exercisesDir string
	configPath   string
	outPath      string
	plotPath     string
	save         bool
	showVersion  bool
	debug        bool
	trace        bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("derive", flag.ContinueOnError)
	fs.StringVar(&o.logPath, "log", "", "demonstration frame log")
	fs.StringVar(&o.exerciseID, "exercise", "", "base exercise id supplying angles and rules (defaults to the log header)")
	fs.StringVar(&o.newID, "id", "", "id of the derived definition (defaults to the base id)")
	fs.StringVar(&o.exercisesDir, "exercises", "exercises", "directory of exercise definitions")
	fs.StringVar(&o.configPath, "config", "", "tuning config JSON (defaults to built-in values)")
	fs.StringVar(&o.outPath, "out", "", "write the derived definition JSON here")
	fs.StringVar(&o.plotPath, "plot", "", "write a PNG plot of the demonstration here")
	fs.BoolVar(&o.save, "save", false, "save the derived definition into the exercises directory")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	fs.BoolVar(&o.debug, "debug", false, "enable diagnostic logging")
	fs.BoolVar(&o.trace, "trace", false, "enable trace logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.logPath == "" && !o.showVersion {
		return o, fmt.Errorf("-log is required")
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("derive: %v", err)
	}
	if o.showVersion {
		fmt.Println(version.String("derive"))
		return
	}
	monitoring.Configure(monitoring.StreamsFor(os.Stderr, o.debug, o.trace))

	if err := run(context.Background(), o, os.Stdout); err != nil {
		if errors.Is(err, capture.ErrCaptureRetry) {
			log.Fatalf("derive: record the demonstration again: %v", err)
		}
		log.Fatalf("derive: %v", err)
	}
}

// result is the JSON document printed for a derivation.
type result struct {
	Definition     *exercise.Definition          `json:"definition"`
	Window         capture.RepWindow             `json:"window"`
	Frames         int                           `json:"frames"`
	Dropped        int                           `json:"dropped"`
	RepDuration    float64                       `json:"repDuration"`
	AngleRanges    map[string]capture.AngleRange `json:"angleRanges"`
	Stability      capture.StabilityReport       `json:"stability"`
	ReferenceIndex int                           `json:"referenceIndex"`
}

func run(ctx context.Context, o options, out io.Writer) error {
	tuning := config.DefaultTuningConfig()
	if o.configPath != "" {
		var err error
		if tuning, err = config.LoadTuningConfig(o.configPath); err != nil {
			return err
		}
	}

	header, frames, err := recorder.ReadAll(o.logPath)
	if err != nil {
		return err
	}
	baseID := o.exerciseID
	if baseID == "" {
		baseID = header.ExerciseID
	}
	if baseID == "" {
		return fmt.Errorf("no exercise id given and none recorded in %s", o.logPath)
	}

	src := exercise.FallbackSource{Source: exercise.NewDirSource(o.exercisesDir)}
	base, err := src.Definition(ctx, baseID)
	if err != nil {
		return err
	}

	d, err := capture.Derive(frames, capture.Options{
		Angles:              base.Rep.Angles,
		CriticalJoints:      base.CriticalJoints,
		VisibilityThreshold: tuning.GetCaptureVisibilityThreshold(),
		MinFrames:           tuning.GetMinCaptureFrames(),
		Detector: capture.Detector{
			MinSamples: tuning.GetMinDetectSamples(),
			Tolerance:  tuning.GetReturnTolerance(),
		},
	})
	if err != nil {
		return err
	}
	monitoring.Logf("derived %s from %d frames (%d dropped), rep %.2fs", baseID, d.Frames, d.Dropped, d.RepDuration)

	def := *base
	def.Rep = d.Suggested
	def.Rep.SmoothingAlpha = base.Rep.SmoothingAlpha
	if o.newID != "" {
		def.ID = o.newID
	}
	if err := def.Validate(); err != nil {
		return fmt.Errorf("derived definition: %w", err)
	}

	if o.plotPath != "" {
		if err := report.PlotDerivation(d, def.Name+" demonstration", o.plotPath); err != nil {
			return err
		}
	}
	if o.outPath != "" {
		if err := writeDefinition(&def, o.outPath); err != nil {
			return err
		}
	}
	if o.save {
		def.ID = security.SanitizeID(def.ID)
		path, err := security.FileFor(o.exercisesDir, def.ID, ".json")
		if err != nil {
			return err
		}
		if err := writeDefinition(&def, path); err != nil {
			return err
		}
		monitoring.Logf("saved %s", path)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result{
		Definition:     &def,
		Window:         d.Window,
		Frames:         d.Frames,
		Dropped:        d.Dropped,
		RepDuration:    d.RepDuration,
		AngleRanges:    d.AngleRanges,
		Stability:      d.Stability,
		ReferenceIndex: d.ReferenceIndex,
	})
}

func writeDefinition(def *exercise.Definition, path string) error {
	if filepath.Ext(path) != ".json" {
		return fmt.Errorf("definition output must have .json extension, got %q", filepath.Ext(path))
	}
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create definition dir: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
