package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/writer"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/sidkik/drivesync/pkg/config"
	"github.com/sidkik/drivesync/pkg/errors"
	"github.com/sidkik/drivesync/pkg/remote"
	"github.com/sidkik/drivesync/pkg/remote/gdrive"
	"github.com/sidkik/drivesync/pkg/remote/s3"
)

// Mocked out for unit testing.
var (
	exit             = os.Exit
	stderr io.Writer = os.Stderr
)

// HandleFatalError prints the error and exits. Errors with a friendly message
// only show that message, and the full error goes to the debug log.
func HandleFatalError(err error) {
	if msg, ok := errors.GetFriendlyMessage(err); ok {
		log.WithError(err).Debug("Fatal error")
		fmt.Fprintln(stderr, msg)
	} else {
		log.WithError(err).Error("Fatal error")
		fmt.Fprintf(stderr, "Error: %s\n", err)
	}
	exit(1)
}

// HandlePanic logs the panic with its stack trace before re-panicking. It
// must be deferred directly.
func HandlePanic() {
	if r := recover(); r != nil {
		log.WithField("stack", string(debug.Stack())).Errorf("Unhandled panic: %v", r)
		panic(r)
	}
}

// SetupLogging sends every log entry to the rotating log file described by
// `cfg`, and warnings or worse to the console as well. The returned closer
// flushes the log file.
func SetupLogging(cfg config.Log, verbose bool) io.Closer {
	log.SetFormatter(&log.TextFormatter{
		// Show the full timestamp so that runs can be told apart in the
		// rotated files.
		FullTimestamp: true,

		// Disable colors since we'll be logging to a file.
		DisableColors: true,
	})

	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	log.SetLevel(level)

	logFile := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
	}
	log.SetOutput(logFile)
	log.AddHook(&writer.Hook{
		Writer: stderr,
		LogLevels: []log.Level{
			log.PanicLevel,
			log.FatalLevel,
			log.ErrorLevel,
			log.WarnLevel,
		},
	})
	return logFile
}

// NewSource connects to the remote described by `cfg`.
func NewSource(ctx context.Context, cfg config.Source) (remote.Source, error) {
	switch cfg.Type {
	case config.SourceGDrive:
		src, err := gdrive.New(ctx, cfg.Credentials)
		if err != nil {
			return nil, errors.WithContext(err, "connect to Google Drive")
		}
		return src, nil
	case config.SourceS3:
		src, err := s3.New(ctx, s3.Options{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			PathStyle:       cfg.PathStyle,
			CredentialsFile: cfg.Credentials,
			AccessKey:       cfg.AccessKey,
			SecretKey:       cfg.SecretKey,
		})
		if err != nil {
			return nil, errors.WithContext(err, "connect to S3")
		}
		return src, nil
	default:
		return nil, errors.NewFriendlyError("Unknown source type %q.", cfg.Type)
	}
}

// LoadConfig reads the environment and the mirror config at `path`, then sets
// up logging. The returned closer flushes the log file.
func LoadConfig(path string, verbose bool) (config.Mirror, io.Closer, error) {
	env, err := config.LoadEnv(config.DotEnvPath)
	if err != nil {
		return config.Mirror{}, nil, errors.WithContext(err, "load environment")
	}

	cfg, err := config.Load(path, env)
	if err != nil {
		return config.Mirror{}, nil, err
	}

	closer := SetupLogging(cfg.Log, verbose || config.Verbose(env))
	log.WithField("config", cfg.GetPath()).Debug("Loaded config")
	return cfg, closer, nil
}
