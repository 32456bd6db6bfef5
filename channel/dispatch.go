// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package channel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/PingAK9/flutter-playout/logger"
	"github.com/PingAK9/flutter-playout/playback"
	"github.com/samber/lo"
)

var (
	ErrUnknownMethod      = errors.New("not implemented")
	ErrMalformedArguments = errors.New("malformed arguments")
	ErrMalformedMessage   = errors.New("malformed message")
)

// MethodCall is one command from the host.
type MethodCall struct {
	Method    string                 `json:"method"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Controller is the part of the engine commands are routed to.
type Controller interface {
	Load(req playback.PlaybackRequest)
	Play()
	Pause()
	Stop()
	SeekTo(seconds float64)
	Reject(err error)
}

var _ Controller = (*playback.Engine)(nil)

type Dispatcher struct {
	ctl      Controller
	logger   logger.LoggerInterface
	handlers map[string]func(args map[string]interface{}) error
}

func NewDispatcher(ctl Controller, logger logger.LoggerInterface) *Dispatcher {
	d := &Dispatcher{ctl: ctl, logger: logger}
	d.handlers = map[string]func(map[string]interface{}) error{
		"play":   d.play,
		"pause":  func(map[string]interface{}) error { ctl.Pause(); return nil },
		"stop":   func(map[string]interface{}) error { ctl.Stop(); return nil },
		"seekTo": d.seekTo,
	}
	return d
}

// Methods lists the accepted method names.
func (d *Dispatcher) Methods() []string {
	names := lo.Keys(d.handlers)
	sort.Strings(names)
	return names
}

// Dispatch routes call to the engine and returns the acknowledgment. Unknown
// methods are not acknowledged. A known method with bad arguments is
// acknowledged, does nothing, and reports an error event instead.
func (d *Dispatcher) Dispatch(call MethodCall) (bool, error) {
	h, ok := d.handlers[call.Method]
	if !ok {
		d.logger.Printf("channel: unknown method %q", call.Method)
		return false, fmt.Errorf("%s: %w, accepted: %s", call.Method, ErrUnknownMethod, strings.Join(d.Methods(), ", "))
	}
	if err := h(call.Arguments); err != nil {
		d.ctl.Reject(fmt.Errorf("%s: %w", call.Method, err))
	}
	return true, nil
}

func (d *Dispatcher) play(args map[string]interface{}) error {
	url, err := stringArg(args, "url", true)
	if err != nil {
		return err
	}
	title, err := stringArg(args, "title", false)
	if err != nil {
		return err
	}
	subtitle, err := stringArg(args, "subtitle", false)
	if err != nil {
		return err
	}
	position, err := numberArg(args, "position", false)
	if err != nil {
		return err
	}
	live, err := boolArg(args, "isLiveStream")
	if err != nil {
		return err
	}
	loading, err := boolArg(args, "isLoadingMode")
	if err != nil {
		return err
	}

	d.ctl.Load(playback.PlaybackRequest{
		URL:             url,
		Title:           title,
		Subtitle:        subtitle,
		StartPositionMs: int64(math.Round(position)),
		IsLiveStream:    live,
		IsLoadingMode:   loading,
	})
	return nil
}

func (d *Dispatcher) seekTo(args map[string]interface{}) error {
	second, err := numberArg(args, "second", true)
	if err != nil {
		return err
	}
	d.ctl.SeekTo(second)
	return nil
}

func stringArg(args map[string]interface{}, key string, required bool) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return "", fmt.Errorf("%w: missing %s", ErrMalformedArguments, key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrMalformedArguments, key, v)
	}
	if required && strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: empty %s", ErrMalformedArguments, key)
	}
	return s, nil
}

// numberArg accepts any JSON or Go numeric type.
func numberArg(args map[string]interface{}, key string, required bool) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		if required {
			return 0, fmt.Errorf("%w: missing %s", ErrMalformedArguments, key)
		}
		return 0, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	default:
		return 0, fmt.Errorf("%w: %s is %T, want number", ErrMalformedArguments, key, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrMalformedArguments, key)
	}
	return f, nil
}

func boolArg(args map[string]interface{}, key string) (bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrMalformedArguments, key, v)
	}
	return b, nil
}
