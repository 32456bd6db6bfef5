// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidRequest = errors.New("invalid playback request")
	ErrNoSession      = errors.New("no media loaded")
	ErrClosed         = errors.New("engine closed")
)

// PlaybackRequest asks the engine to load (or resume) a media URL.
type PlaybackRequest struct {
	URL             string
	Title           string
	Subtitle        string
	StartPositionMs int64
	IsLiveStream    bool
	IsLoadingMode   bool
}

// Validate accepts absolute URLs with a scheme and absolute local paths.
func (r PlaybackRequest) Validate() error {
	raw := strings.TrimSpace(r.URL)
	if raw == "" {
		return fmt.Errorf("%w: missing url", ErrInvalidRequest)
	}
	if strings.HasPrefix(raw, "/") {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	}
	if u.Scheme == "" {
		return fmt.Errorf("%w: url %q has no scheme", ErrInvalidRequest, raw)
	}
	return nil
}

// StartSeconds converts StartPositionMs, clamping negatives to zero.
func (r PlaybackRequest) StartSeconds() float64 {
	if r.StartPositionMs <= 0 {
		return 0
	}
	return float64(r.StartPositionMs) / 1000
}
