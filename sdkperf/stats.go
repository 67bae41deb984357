package sdkperf

import (
	"math"

	"github.com/montanaflynn/stats"
)

const decileCount = 9

func getF64Stats(series []float64) *Stats {
	ret := &Stats{
		NSamples: len(series),
		Min:      math.NaN(),
		Max:      math.NaN(),
		Mean:     math.NaN(),
		StdDev:   math.NaN(),
		StdErr:   math.NaN(),
		Deciles:  []float64{},
	}
	if len(series) == 0 {
		return ret
	}

	data := stats.Float64Data(series)
	ret.Mean, _ = data.Mean()
	ret.Min, _ = data.Min()
	ret.Max, _ = data.Max()
	ret.StdDev, _ = data.StandardDeviationPopulation()
	ret.StdErr = ret.StdDev / math.Sqrt(float64(len(series)))

	for iter := 1; iter <= decileCount; iter++ {
		decile, err := stats.PercentileNearestRank(data, float64(iter*10))
		if err != nil {
			break
		}
		ret.Deciles = append(ret.Deciles, decile)
	}

	return ret
}

// SummarizeSamples describes the spread of raw values per metric, before any
// grouping by dimension.
func SummarizeSamples(samples []MeasurementSample) map[Metric]*Stats {
	series := map[Metric][]float64{}

	for _, sample := range samples {
		series[sample.Metric] = append(series[sample.Metric], sample.Value)
	}

	ret := map[Metric]*Stats{}
	for metric, values := range series {
		ret[metric] = getF64Stats(values)
	}

	return ret
}

func networkMeasurements(samples []NetworkLatencySample) []MeasurementSample {
	ret := make([]MeasurementSample, 0, len(samples))
	for _, s := range samples {
		ret = append(ret, s.MeasurementSample)
	}
	return ret
}

func executionMeasurements(samples []ExecutionLatencySample) []MeasurementSample {
	ret := make([]MeasurementSample, 0, len(samples))
	for _, s := range samples {
		ret = append(ret, s.MeasurementSample)
	}
	return ret
}

func sizeMeasurements(samples []BinarySizeSample) []MeasurementSample {
	ret := make([]MeasurementSample, 0, len(samples))
	for _, s := range samples {
		ret = append(ret, s.MeasurementSample)
	}
	return ret
}
