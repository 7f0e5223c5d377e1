// Command gen-framelog generates synthetic shoulder abduction frame logs
// for testing replay and demonstration capture.
package main

import (
	"flag"
	"log"
	"math/rand"
	"time"

	"github.com/banshee-data/rehab.report/internal/pose"
	"github.com/banshee-data/rehab.report/internal/recorder"
	"github.com/banshee-data/rehab.report/internal/testutil"
)

func main() {
	output := flag.String("o", "sample"+recorder.FileExtension, "output path")
	exerciseID := flag.String("exercise", "shoulder_abduction", "exercise id written to the log header")
	reps := flag.Int("reps", 10, "number of repetitions")
	fps := flag.Float64("fps", 30, "frames per second")
	low := flag.Float64("low", testutil.DefaultCycle.Low, "rest angle (degrees)")
	high := flag.Float64("high", testutil.DefaultCycle.High, "peak angle (degrees)")
	hold := flag.Duration("hold", testutil.DefaultCycle.Hold, "time held at the peak")
	shrug := flag.Float64("shrug", 0, "raise the right shoulder by this much at the peak (normalised units)")
	dropout := flag.Float64("dropout", 0, "fraction of frames with no pose detected")
	noise := flag.Float64("noise", 0.002, "coordinate jitter (normalised units)")
	seed := flag.Int64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	cycle := testutil.DefaultCycle
	cycle.Low, cycle.High, cycle.Hold = *low, *high, *hold

	poser := func(ts time.Time, deg float64) pose.Frame {
		if *dropout > 0 && rng.Float64() < *dropout {
			return testutil.Empty(ts)
		}
		b := testutil.Standing(ts).Arms(deg)
		if *shrug > 0 && deg >= cycle.High {
			b.Lift(pose.RightShoulder, *shrug)
		}
		f := b.Build()
		for name, o := range f.Joints {
			o.X += (rng.Float64()*2 - 1) * *noise
			o.Y += (rng.Float64()*2 - 1) * *noise
			f.Joints[name] = o
		}
		return f
	}

	start := time.Now().UTC().Truncate(time.Millisecond)
	frames := testutil.CycleFrames(start, cycle, *reps, *fps, poser)

	rec, err := recorder.NewRecorder(*output, *exerciseID, "gen-framelog")
	if err != nil {
		log.Fatalf("create log: %v", err)
	}
	for i, f := range frames {
		if err := rec.Record(f); err != nil {
			log.Fatalf("record frame %d: %v", i, err)
		}
		if (i+1)%300 == 0 {
			log.Printf("%d/%d frames", i+1, len(frames))
		}
	}
	if err := rec.Close(); err != nil {
		log.Fatalf("close log: %v", err)
	}
	log.Printf("✓ Created: %s (%d frames)", rec.Path(), rec.FrameCount())
}
