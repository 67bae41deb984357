package sdkperf

import (
	"fmt"
	"log"
)

func formatDeciles(deciles []float64) string {
	numStrs := []string{}

	for _, decile := range deciles {
		numStrs = append(numStrs, fmt.Sprintf("%.3f", decile))
	}

	return fmt.Sprintf("%v", numStrs)
}

func unitOf(metric Metric) string {
	if metric == Size {
		return "byte"
	}
	return "ms"
}

func printSampleStats(printer *log.Logger, label string, samples []MeasurementSample) {
	summary := SummarizeSamples(samples)

	for _, metric := range Metrics {
		measurement, ok := summary[metric]
		if !ok {
			continue
		}
		unit := unitOf(metric)
		printer.Printf("%s-%s-mean: %.3f %s\n", label, metric, measurement.Mean, unit)
		printer.Printf("%s-%s-stderr: %.3f %s\n", label, metric, measurement.StdErr, unit)
		printer.Printf("%s-%s-min: %.3f %s\n", label, metric, measurement.Min, unit)
		printer.Printf("%s-%s-max: %.3f %s\n", label, metric, measurement.Max, unit)
		printer.Printf("%s-%s-deciles: %s %s\n", label, metric, formatDeciles(measurement.Deciles), unit)
		printer.Printf("%s-%s-n: %d\n", label, metric, measurement.NSamples)
	}
}

func printNetworkLatencies(printer *log.Logger, records []NetworkLatencyRecord) {
	for _, r := range records {
		printer.Printf("%s %s %s %s: ttfb %.3f ms, download %.3f ms (%s)\n",
			r.Subject, r.Device, r.Cdn, r.Connectivity, r.TTFBMs, r.DownloadMs, r.BrowserVersion)
	}
}

func printExecutionLatencies(printer *log.Logger, records []ExecutionLatencyRecord) {
	for _, r := range records {
		printer.Printf("%s %s: parse %.3f ms, exec %.3f ms (%s)\n",
			r.Subject, r.Device, r.ParseMs, r.ExecMs, r.BrowserVersion)
	}
}

func printBinarySizes(printer *log.Logger, records []BinarySizeRecord) {
	for _, r := range records {
		printer.Printf("%s: %d byte\n", r.Subject, r.SizeByte)
	}
}

// PrintMeasurements writes the spread of raw samples followed by the
// aggregated records of one test run.
func PrintMeasurements(printer *log.Logger, m *Measurements) {
	printer.Printf("TestRun: %d\n", m.TestRun)
	printer.Printf("Version: %s\n", m.Version)
	printer.Println()

	printSampleStats(printer, "Network", networkMeasurements(m.NetworkSamples))
	printer.Println()
	printSampleStats(printer, "Execution", executionMeasurements(m.ExecutionSamples))
	printer.Println()
	printSampleStats(printer, "Binary", sizeMeasurements(m.SizeSamples))
	printer.Println()

	printNetworkLatencies(printer, m.NetworkLatencies)
	printer.Println()
	printExecutionLatencies(printer, m.ExecutionLatencies)
	printer.Println()
	printBinarySizes(printer, m.BinarySizes)
}
