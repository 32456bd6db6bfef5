// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// fs holds log files; tests swap in a memory filesystem.
var fs = afero.NewOsFs()

var _ LoggerInterface = (*Logger)(nil)

type Logger struct {
	entry *logrus.Entry
}

// Options configures the logrus backend.
type Options struct {
	Level string
	JSON  bool
	// File is appended to when set, stderr is used otherwise.
	File string
}

func Init() *Logger {
	base := logrus.New()
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &Logger{entry: logrus.NewEntry(base)}
}

// Setup builds a Logger from opts. An unparseable level falls back to info.
func Setup(opts Options) (*Logger, error) {
	base := logrus.New()

	var out io.Writer = os.Stderr
	if opts.File != "" {
		f, err := fs.OpenFile(opts.File, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = f
	}
	base.SetOutput(out)

	if opts.JSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	lvl, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	return &Logger{entry: logrus.NewEntry(base)}, nil
}

// SetLevel changes the level of the underlying logger, e.g. after the config
// file was edited. An unparseable level is an error and changes nothing.
func (l *Logger) SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.entry.Logger.SetLevel(lvl)
	return nil
}

// New wraps an existing logrus logger, mostly useful in tests.
func New(base *logrus.Logger) *Logger {
	return &Logger{entry: logrus.NewEntry(base)}
}

// With returns a child logger carrying an extra field on every line.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

func (l *Logger) Print(s string) {
	l.entry.Info(s)
}

func (l *Logger) Printf(s string, as ...interface{}) {
	l.entry.Infof(s, as...)
}

func (l *Logger) PrintError(source string, err error) {
	l.entry.WithField("source", source).Errorf("Error(%s) -> %s", source, err.Error())
}
