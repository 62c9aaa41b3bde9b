package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli"
	"go.uber.org/zap"

	"github.com/chaos-io/whitebg/config"
	"github.com/chaos-io/whitebg/processor"
	"github.com/chaos-io/whitebg/rembg"
	"github.com/chaos-io/whitebg/util"
	"github.com/chaos-io/whitebg/util/log"
)

const appName = "whitebg"

// result is the single JSON line written to stdout.
type result struct {
	Success   bool   `json:"success"`
	Original  string `json:"original,omitempty"`
	Processed string `json:"processed,omitempty"`
	Error     string `json:"error,omitempty"`
}

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	// A bad environment is reported only after the argument and file checks.
	conf, confErr := config.New()
	if confErr != nil {
		conf = &config.Config{}
	}

	code := 0
	app := cli.NewApp()
	app.Name = appName
	app.Usage = "replace the background of an image with white"
	app.UsageText = appName + " [options] <image_path>"
	app.HideVersion = true
	app.HideHelp = true
	app.Writer = stdout
	app.ErrWriter = stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:        "backend",
			Usage:       "background remover: rembg or comfyui",
			Value:       conf.Backend,
			Destination: &conf.Backend,
		},
		cli.StringFlag{
			Name:        "endpoint",
			Usage:       "base URL of the background removal server",
			Value:       conf.Endpoint,
			Destination: &conf.Endpoint,
		},
		cli.StringFlag{
			Name:        "model",
			Usage:       "model name passed to the rembg server",
			Value:       conf.Model,
			Destination: &conf.Model,
		},
		cli.DurationFlag{
			Name:        "timeout",
			Usage:       "upper bound for the background removal call",
			Value:       conf.Timeout,
			Destination: &conf.Timeout,
		},
		cli.StringFlag{
			Name:        "log-level",
			Usage:       "stderr log level",
			Value:       conf.LogLevel,
			Destination: &conf.LogLevel,
		},
	}

	app.Action = func(c *cli.Context) error {
		code = handle(c, conf, confErr, stdout, stderr)
		return nil
	}

	if err := app.Run(args); err != nil {
		return 1
	}
	return code
}

func handle(c *cli.Context, conf *config.Config, confErr error, stdout, stderr io.Writer) int {
	if c.NArg() != 1 {
		_, _ = fmt.Fprintf(stdout, "Usage: %s [options] <image_path>\n", appName)
		return 1
	}

	path := c.Args().First()
	if !util.FileExists(path) {
		_, _ = fmt.Fprintf(stdout, "File not found: %s\n", path)
		return 1
	}

	if confErr != nil {
		_, _ = fmt.Fprintln(stdout, confErr)
		return 1
	}

	logger, err := log.New(stderr, conf.LogLevel)
	if err != nil {
		return fail(stdout, err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	undo := zap.ReplaceGlobals(logger)
	defer undo()

	data, err := util.ReadImageFile(path)
	if err != nil {
		return fail(stdout, fmt.Errorf("read image: %w", err))
	}

	remover, err := rembg.New(conf, logger)
	if err != nil {
		return fail(stdout, err)
	}

	logger.Info("processing image", zap.String("path", path), zap.String("backend", conf.Backend), zap.Int("bytes", len(data)))
	res, err := processor.NewProcessor(remover, logger).Process(context.Background(), data)
	if err != nil {
		logger.Error("processing failed", zap.Error(err))
		return fail(stdout, err)
	}

	if err := write(stdout, result{Success: true, Original: res.Original, Processed: res.Processed}); err != nil {
		logger.Error("write result", zap.Error(err))
		return 1
	}
	return 0
}

func fail(w io.Writer, err error) int {
	_ = write(w, result{Success: false, Error: err.Error()})
	return 1
}

func write(w io.Writer, r result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(r)
}
