package capture

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// minJitterSamples is the shortest series with a meaningful jitter.
const minJitterSamples = 4

// StabilityReport summarises how steady a demonstration was.
type StabilityReport struct {
	// Jitter is the mean absolute frame-to-frame change per angle, in
	// degrees. Series of three samples or fewer are omitted.
	Jitter map[string]float64 `json:"jitter"`
	// Overall is the mean of the per-angle jitters, zero when none.
	Overall float64 `json:"overall"`
}

// AssessStability measures the jitter of each angle series.
func AssessStability(series map[string][]float64) StabilityReport {
	report := StabilityReport{Jitter: make(map[string]float64)}

	names := make([]string, 0, len(series))
	for name := range series {
		names = append(names, name)
	}
	sort.Strings(names)

	var jitters []float64
	for _, name := range names {
		values := series[name]
		if len(values) < minJitterSamples {
			continue
		}
		diffs := make([]float64, len(values)-1)
		for i := 1; i < len(values); i++ {
			diffs[i-1] = math.Abs(values[i] - values[i-1])
		}
		j := stat.Mean(diffs, nil)
		report.Jitter[name] = j
		jitters = append(jitters, j)
	}
	if len(jitters) > 0 {
		report.Overall = stat.Mean(jitters, nil)
	}
	return report
}

// errNoSamples is returned by SelectReference for empty input.
var errNoSamples = errors.New("no angle samples")

// SelectReference returns the index of the sample whose angles have the
// smallest population standard deviation. Ties keep the earliest sample.
func SelectReference(samples []map[string]float64) (int, error) {
	best, bestDev := -1, math.Inf(1)
	for i, angles := range samples {
		if len(angles) == 0 {
			continue
		}
		names := make([]string, 0, len(angles))
		for name := range angles {
			names = append(names, name)
		}
		sort.Strings(names)
		values := make([]float64, len(names))
		for k, name := range names {
			values[k] = angles[name]
		}

		dev := 0.0
		if len(values) > 1 {
			dev = stat.PopStdDev(values, nil)
		}
		if dev < bestDev {
			best, bestDev = i, dev
		}
	}
	if best < 0 {
		return 0, errNoSamples
	}
	return best, nil
}
