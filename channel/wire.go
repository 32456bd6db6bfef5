// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package channel

import "github.com/PingAK9/flutter-playout/playback"

// Record is the wire form of an event: "name" plus the event's fields.
type Record map[string]interface{}

// unknownDuration is sent as onDuration's value when the length cannot be
// computed, e.g. for live streams.
const unknownDuration int64 = -1

func Encode(ev playback.Event) Record {
	r := Record{"name": ev.Name()}
	switch e := ev.(type) {
	case playback.PlayEvent:
		r["isLoadingMode"] = e.IsLoadingMode
	case playback.TimeEvent:
		r["time"] = e.Seconds
	case playback.DurationEvent:
		if e.Known {
			r["duration"] = e.Milliseconds
		} else {
			r["duration"] = unknownDuration
		}
	case playback.SeekEvent:
		r["position"] = e.FromSeconds
		r["offset"] = e.ToSeconds
	case playback.ErrorEvent:
		r["error"] = e.Message
	}
	return r
}
