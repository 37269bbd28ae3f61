// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command tt2tool composes, reads, writes and emulates NFC Forum Type 2
// (MIFARE Ultralight) tags through a PN532 or a PC/SC reader.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tt2 "github.com/ZaparooProject/go-tt2"
	"github.com/ZaparooProject/go-tt2/internal/config"
	"github.com/ZaparooProject/go-tt2/polling"
)

const usage = `usage: tt2tool [flags] <command> [argument]

commands:
  compose <text>   print the memory image for a text record (no reader needed)
  read             read and decode the tag on the reader
  watch            read every tag presented until interrupted
  write <text>     write a text record to the tag
  uri <uri>        write a URI record to the tag
  emulate <text>   present a text record to a phone or reader
  detect           identify the tag on the reader

flags:
`

var (
	errUsage = errors.New("invalid usage")
	errNoTag = errors.New("no tag found")
)

// options carries everything a command needs.
type options struct {
	out     io.Writer
	cfg     *config.Config
	command string
	arg     string
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:], os.Stdout, os.Stderr))
}

func mainWithExitCode(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	opts.out = stdout

	if opts.cfg.Debug {
		tt2.SetDebugEnabled(true)
	}
	if opts.cfg.SessionLog != "" {
		path, logErr := tt2.InitSessionLog(opts.cfg.SessionLog)
		if logErr != nil {
			_, _ = fmt.Fprintf(stderr, "Warning: session log disabled: %v\n", logErr)
		} else {
			tt2.Debugf("session log: %s", path)
			defer func() { _ = tt2.CloseSessionLog() }()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			_, _ = fmt.Fprint(stderr, "\nShutting down gracefully...\n")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := run(ctx, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// parseArgs reads the optional config file and lets explicitly set flags
// override it.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("tt2tool", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	def := config.Default()
	configPath := fs.String("config", "", "YAML config file")
	transport := fs.String("transport", def.Device.Transport, "reader transport: uart, i2c, spi or pcsc")
	device := fs.String("device", "", "serial port, I2C bus or SPI device of the PN532")
	readerIndex := fs.Int("reader", 0, "PC/SC reader index")
	commandTimeout := fs.Duration("timeout", def.Timeouts.Command, "per command timeout")
	emulateTimeout := fs.Duration("emulate-timeout", def.Timeouts.Emulate, "how long to emulate")
	waitTimeout := fs.Duration("wait", def.Timeouts.Wait, "how long to wait for a tag")
	retries := fs.Int("retries", def.Retry.MaxAttempts, "attempts per tag operation")
	debug := fs.Bool("debug", false, "enable debug output")
	logDir := fs.String("log-dir", "", "directory for the session log")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := def
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "transport":
			cfg.Device.Transport = *transport
		case "device":
			cfg.Device.Path = *device
		case "reader":
			cfg.Device.ReaderIndex = *readerIndex
		case "timeout":
			cfg.Timeouts.Command = *commandTimeout
		case "emulate-timeout":
			cfg.Timeouts.Emulate = *emulateTimeout
		case "wait":
			cfg.Timeouts.Wait = *waitTimeout
		case "retries":
			cfg.Retry.MaxAttempts = *retries
		case "debug":
			cfg.Debug = *debug
		case "log-dir":
			cfg.SessionLog = *logDir
		}
	})

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return nil, fmt.Errorf("%w: missing command", errUsage)
	}

	opts := &options{cfg: cfg, command: rest[0]}
	switch opts.command {
	case "compose", "write", "uri", "emulate":
		if len(rest) != 2 {
			return nil, fmt.Errorf("%w: %s takes exactly one argument", errUsage, opts.command)
		}
		opts.arg = rest[1]
	case "read", "watch", "detect":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%w: %s takes no arguments", errUsage, opts.command)
		}
	default:
		return nil, fmt.Errorf("%w: unknown command %q", errUsage, opts.command)
	}

	// compose never touches a reader
	if opts.command != "compose" {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return opts, nil
}

func run(ctx context.Context, opts *options) error {
	if opts.command == "compose" {
		return runCompose(opts)
	}

	rd, err := openReader(ctx, opts.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := rd.Close(); err != nil {
			tt2.Debugf("close reader: %v", err)
		}
	}()

	switch opts.command {
	case "read":
		return runRead(ctx, rd, opts)
	case "watch":
		return runWatch(ctx, rd, opts)
	case "write":
		return runWriteText(ctx, rd, opts)
	case "uri":
		return runWriteURI(ctx, rd, opts)
	case "emulate":
		return runEmulate(ctx, rd, opts)
	default:
		return runDetect(ctx, rd, opts)
	}
}

func retryConfig(cfg *config.Config) *tt2.RetryConfig {
	rc := tt2.DefaultRetryConfig()
	rc.Attempts = cfg.Retry.MaxAttempts
	if cfg.Retry.Backoff > 0 {
		rc.Backoff = cfg.Retry.Backoff
		rc.MaxBackoff = max(rc.MaxBackoff, cfg.Retry.Backoff)
	}
	return rc
}

// withTag waits for a tag on the reader and runs op on it, starting over
// from selection on retryable failures.
func withTag(ctx context.Context, rd reader, cfg *config.Config, op func(context.Context, *tt2.Tag) error) error {
	start := time.Now()
	err := tt2.RetryWithConfig(ctx, retryConfig(cfg), func(ctx context.Context) error {
		waitCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Timeouts.Wait > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, cfg.Timeouts.Wait)
		}
		uid, err := polling.WaitForTag(waitCtx, rd, polling.DefaultConfig())
		cancel()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("%w: no tag presented within %v", errNoTag, cfg.Timeouts.Wait)
		}
		if err != nil {
			return err
		}
		return op(ctx, tt2.NewTag(rd, uid))
	})
	tt2.Debugf("tag operation finished in %v", time.Since(start))
	return err
}
