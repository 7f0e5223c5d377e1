// Command replay feeds a recorded frame log through an exercise session,
// prints the summary and stores it in the sqlite database.
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
	"time"

	"github.com/banshee-data/rehab.report/internal/config"
	"github.com/banshee-data/rehab.report/internal/exercise"
	"github.com/banshee-data/rehab.report/internal/monitoring"
	"github.com/banshee-data/rehab.report/internal/recorder"
	"github.com/banshee-data/rehab.report/internal/report"
	"github.com/banshee-data/rehab.report/internal/session"
	"github.com/banshee-data/rehab.report/internal/storage/sqlite"
	"github.com/banshee-data/rehab.report/internal/timeutil"
	"github.com/banshee-data/rehab.report/internal/version"
)

type options struct {
	logPath      string
	exerciseID   string
	exercisesDir string
	configPath   string
	dbPath       string
	htmlPath     string
	targetReps   int
	maxDuration  time.Duration
	showVersion  bool
	debug        bool
	trace        bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.StringVar(&o.logPath, "log", "", "frame log to replay (.jsonl or "+recorder.FileExtension+")")
	fs.StringVar(&o.exerciseID, "exercise", "", "exercise id (defaults to the id in the log header)")
	fs.StringVar(&o.exercisesDir, "exercises", "exercises", "directory of exercise definitions")
	fs.StringVar(&o.configPath, "config", "", "tuning config JSON (defaults to built-in values)")
	fs.StringVar(&o.dbPath, "db", "rehab.db", "sqlite database for summaries; empty disables storage")
	fs.StringVar(&o.htmlPath, "html", "", "write an HTML timeline to this path")
	fs.IntVar(&o.targetReps, "reps", 10, "target repetitions")
	fs.DurationVar(&o.maxDuration, "max-duration", 0, "session time limit; 0 disables it")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	fs.BoolVar(&o.debug, "debug", false, "enable diagnostic logging")
	fs.BoolVar(&o.trace, "trace", false, "enable per-frame trace logging")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.showVersion {
		return o, nil
	}
	if o.logPath == "" {
		return o, fmt.Errorf("-log is required")
	}
	if o.targetReps < 1 {
		return o, fmt.Errorf("-reps must be at least 1, got %d", o.targetReps)
	}
	return o, nil
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("replay: %v", err)
	}
	if o.showVersion {
		fmt.Println(version.String("replay"))
		return
	}
	monitoring.Configure(monitoring.StreamsFor(os.Stderr, o.debug, o.trace))

	if err := run(context.Background(), o, os.Stdout); err != nil {
		log.Fatalf("replay: %v", err)
	}
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func run(ctx context.Context, o options, out io.Writer) error {
	tuning, err := loadTuning(o.configPath)
	if err != nil {
		return err
	}
	sessionCfg := session.ConfigFromTuning(tuning)

	rp, err := recorder.NewReplayer(o.logPath)
	if err != nil {
		return err
	}
	defer rp.Close()

	exerciseID := o.exerciseID
	if exerciseID == "" {
		exerciseID = rp.Header().ExerciseID
	}
	if exerciseID == "" {
		return fmt.Errorf("no exercise id given and none recorded in %s", o.logPath)
	}

	first, err := rp.ReadFrame()
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%s contains no frames", o.logPath)
	}
	if err != nil {
		return err
	}

	cfg := session.ManagerConfig{
		Definitions: exercise.FallbackSource{Source: exercise.NewDirSource(o.exercisesDir)},
		Clock:       timeutil.NewMockClock(first.Timestamp),
		Session:     &sessionCfg,
		IdleTimeout: tuning.GetIdleTimeout(),
	}
	if o.dbPath != "" {
		db, err := sqlite.Open(o.dbPath)
		if err != nil {
			return err
		}
		defer db.Close()
		cfg.Sink = sqlite.NewSummaryStore(db)
	}
	mgr := session.NewManager(cfg)

	id, err := mgr.Start(ctx, exerciseID, o.targetReps, o.maxDuration)
	if err != nil {
		return err
	}
	monitoring.Logf("replaying %s as %s (session %s)", o.logPath, exerciseID, id)

	var tl report.Timeline
	last := first.Timestamp
	frame := first
	for {
		res, err := mgr.ProcessFrame(ctx, id, frame, frame.Timestamp)
		if err != nil {
			return fmt.Errorf("frame %d: %w", rp.FramesRead(), err)
		}
		tl.Add(frame.Timestamp, res)
		last = frame.Timestamp
		if res.Counted {
			monitoring.Logf("rep %d at %.2fs", res.RepCount, frame.Timestamp.Sub(first.Timestamp).Seconds())
		}
		if res.Status.IsTerminal() {
			break
		}

		frame, err = rp.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
	}

	summary, err := mgr.End(ctx, id, last)
	if err != nil {
		return fmt.Errorf("store summary: %w", err)
	}

	if o.htmlPath != "" {
		f, err := os.Create(o.htmlPath)
		if err != nil {
			return fmt.Errorf("create timeline: %w", err)
		}
		title := fmt.Sprintf("%s replay", summary.ExerciseName)
		if err := tl.Render(f, &summary, report.RenderOptions{Title: title}); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
