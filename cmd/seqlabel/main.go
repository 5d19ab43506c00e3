// seqlabel trains sequence labeling models and uses them to tag text.
//
// Usage:
//
//	seqlabel vocab --input train.conll --output tokens.json
//	seqlabel train --config seqlabel.yaml --input train.conll --output model/
//	seqlabel predict --model model/ --text "我爱北京天安门"
//	seqlabel evaluate --model model/ --input test.conll
//
// Datasets are CoNLL files (a token and its label per line, blank lines between sentences), or
// parquet files with "tokens" and "labels" list columns.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

func newApp() *cli.App {
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	return &cli.App{
		Name:  "seqlabel",
		Usage: "train and run sequence labeling (NER) models",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML configuration file, defaults to ./seqlabel.yaml if present",
				EnvVars: []string{"SEQLABEL_CONFIG"},
			},
			&cli.IntFlag{
				Name:    "verbosity",
				Aliases: []string{"v"},
				Value:   0,
				Usage:   "log verbosity level",
			},
		},
		Before: func(c *cli.Context) error {
			if err := klogFlags.Set("v", strconv.Itoa(c.Int("verbosity"))); err != nil {
				return cli.Exit(fmt.Sprintf("invalid verbosity: %v", err), 1)
			}
			return nil
		},
		Commands: []*cli.Command{
			vocabCommand(),
			trainCommand(),
			predictCommand(),
			evaluateCommand(),
		},
	}
}

func main() {
	defer klog.Flush()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		klog.Errorf("%+v", err)
		klog.Flush()
		os.Exit(1)
	}
}
