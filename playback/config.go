// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

import "time"

type Config struct {
	// TickInterval is the period of the time observer.
	TickInterval time.Duration
	// LiveStreamField controls whether the Now Playing display receives the
	// live stream flag at all. Displays that cannot show it leave it off.
	LiveStreamField bool
}

func DefaultConfig() Config {
	return Config{
		TickInterval:    time.Second,
		LiveStreamField: true,
	}
}
