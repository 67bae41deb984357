package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/makotom/sdkperf/sdkperf"
)

var (
	BuildName       = "\b"
	BuildAnnotation = "git"
)

type CmdOpts struct {
	configPath         string
	sdkVersion         string
	trial              bool
	dryRun             bool
	reaggregatePath    string
	logLevel           string
	testIP4            bool
	testIP6            bool
	showVersionAndExit bool
}

func configureLogging(level string) error {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(parsed)
	return nil
}

func transportProtocol(cmdOpts *CmdOpts) string {
	// both or neither: let the resolver pick
	switch {
	case cmdOpts.testIP4 && !cmdOpts.testIP6:
		return "tcp4"
	case cmdOpts.testIP6 && !cmdOpts.testIP4:
		return "tcp6"
	}
	return "tcp"
}

func run(cmdOpts *CmdOpts) error {
	if err := configureLogging(cmdOpts.logLevel); err != nil {
		return err
	}
	if err := sdkperf.SetTransportProtocol(transportProtocol(cmdOpts)); err != nil {
		return err
	}

	config, err := sdkperf.LoadConfig(cmdOpts.configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	start := time.Now()
	testRun := start.Unix()
	defer func() {
		logrus.Infof("Test finished in %.3fs.", time.Since(start).Seconds())
	}()

	printer := log.New(os.Stdout, "", 0)
	pipeline := sdkperf.NewPipeline(config, afero.NewOsFs(), printer)
	options := sdkperf.RunOptions{
		TestRun: testRun,
		Version: cmdOpts.sdkVersion,
		Trial:   cmdOpts.trial,
		DryRun:  cmdOpts.dryRun,
	}
	if cmdOpts.reaggregatePath != "" {
		return pipeline.Reaggregate(ctx, cmdOpts.reaggregatePath, options)
	}
	return pipeline.Run(ctx, options)
}

func newRootCommand() *cobra.Command {
	cmdOpts := &CmdOpts{}

	cmd := &cobra.Command{
		Use:           "sdkperf",
		Short:         "Measure startup latency and binary size of the JavaScript SDKs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("sdkperf %s (%s)\n", BuildName, BuildAnnotation)
			if cmdOpts.showVersionAndExit {
				return nil
			}
			return run(cmdOpts)
		},
	}

	var flags *pflag.FlagSet = cmd.Flags()
	flags.StringVar(&cmdOpts.configPath, "config", "", "Path to a config file")
	flags.StringVar(&cmdOpts.sdkVersion, "sdk-version", "", "Version to test, the latest release if empty")
	flags.BoolVar(&cmdOpts.trial, "trial", false, "Sweep the trial matrix, store into the trial database and print every measurement")
	flags.BoolVar(&cmdOpts.dryRun, "dry-run", false, "Print the records instead of storing them")
	flags.StringVar(&cmdOpts.reaggregatePath, "reaggregate", "", "Rebuild and store the records of an archived samples.json instead of testing")
	flags.StringVar(&cmdOpts.logLevel, "log-level", "info", "Log level")
	flags.BoolVarP(&cmdOpts.testIP4, "ip4", "4", false, "Ensure requests over IPv4")
	flags.BoolVarP(&cmdOpts.testIP6, "ip6", "6", false, "Ensure requests over IPv6")
	flags.BoolVar(&cmdOpts.showVersionAndExit, "version", false, "Show version information and exit")

	return cmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("Test failed")
		os.Exit(1)
	}
}
