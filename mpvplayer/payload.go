// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package mpvplayer

/*
#cgo pkg-config: mpv
#include <mpv/client.h>
*/
import "C"

import (
	"fmt"
	"strings"

	"github.com/supersonic-app/go-mpv"
)

const endFileReasonError = int(C.MPV_END_FILE_REASON_ERROR)

// event is an mpv event with its payload copied out. mpv owns the payload
// memory only until the next WaitEvent call.
type event struct {
	id       mpv.EventId
	userdata uint64

	// entryID is the playlist entry a START_FILE or END_FILE refers to
	entryID   int64
	endReason int
	endError  string
	logText   string
}

func decodeEvent(evt *mpv.Event) event {
	out := event{
		id:        evt.Event_Id,
		userdata:  evt.Reply_Userdata,
		endReason: -1,
	}
	if evt.Data == nil {
		return out
	}

	switch evt.Event_Id {
	case mpv.EVENT_START_FILE:
		sf := (*C.mpv_event_start_file)(evt.Data)
		out.entryID = int64(sf.playlist_entry_id)
	case mpv.EVENT_END_FILE:
		ef := (*C.mpv_event_end_file)(evt.Data)
		out.entryID = int64(ef.playlist_entry_id)
		out.endReason = int(ef.reason)
		if ef.error < 0 {
			out.endError = C.GoString(C.mpv_error_string(ef.error))
		}
	case mpv.EVENT_LOG_MESSAGE:
		lm := (*C.mpv_event_log_message)(evt.Data)
		out.logText = fmt.Sprintf("%s: %s", C.GoString(lm.prefix), strings.TrimSpace(C.GoString(lm.text)))
	}
	return out
}
