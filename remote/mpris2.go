// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package remote

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"sync"

	"github.com/PingAK9/flutter-playout/logger"
	"github.com/PingAK9/flutter-playout/playback"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
)

const (
	objectPath     = "/org/mpris/MediaPlayer2"
	ifaceRoot      = "org.mpris.MediaPlayer2"
	ifacePlayer    = "org.mpris.MediaPlayer2.Player"
	noTrack        = dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack")
	trackIDPrefix  = "/org/mpris/MediaPlayer2/track/"
	statusPlaying  = "Playing"
	statusPaused   = "Paused"
	statusStopped  = "Stopped"
	defaultBusName = "playout"
)

var (
	_ playback.NowPlayingDisplay = (*MprisPlayer)(nil)
	_ playback.CommandCenter     = (*MprisPlayer)(nil)

	ErrCommandRejected = errors.New("command rejected")
	ErrNotSupported    = errors.New("not supported")
)

// propertySink is the part of *prop.Properties the player writes to.
type propertySink interface {
	SetMust(iface, property string, v interface{})
}

// MprisPlayer publishes the Now Playing info on the session bus and routes
// the desktop's play/pause requests to the installed handlers.
type MprisPlayer struct {
	dbus   *dbus.Conn
	props  propertySink
	logger logger.LoggerInterface

	mu     sync.Mutex
	play   playback.CommandHandler
	pause  playback.CommandHandler
	info   playback.NowPlayingInfo
	active bool
}

func RegisterMprisPlayer(name string, logger_ logger.LoggerInterface) (mpp *MprisPlayer, err error) {
	if name == "" {
		name = defaultBusName
	}

	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("mpris: connect session bus: %w", err)
	}
	defer func() {
		if err != nil {
			conn.Close()
			mpp = nil
		}
	}()

	mpp = &MprisPlayer{
		dbus:   conn,
		logger: logger_,
	}

	if err = conn.ExportAll(mpp, objectPath, ifacePlayer); err != nil {
		return
	}

	var mprisPlayer = map[string]*prop.Prop{
		"CanControl":     {Value: true, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"CanGoNext":      {Value: false, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"CanGoPrevious":  {Value: false, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"CanPause":       {Value: false, Writable: false, Emit: prop.EmitTrue, Callback: nil},
		"CanPlay":        {Value: false, Writable: false, Emit: prop.EmitTrue, Callback: nil},
		"CanSeek":        {Value: false, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"Metadata":       {Value: metadataFor(playback.NowPlayingInfo{}, false), Writable: false, Emit: prop.EmitTrue, Callback: nil},
		"PlaybackStatus": {Value: statusStopped, Writable: false, Emit: prop.EmitTrue, Callback: nil},
		"Position":       {Value: int64(0), Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"Rate":           {Value: 1.0, Writable: false, Emit: prop.EmitTrue, Callback: nil},
		"MinimumRate":    {Value: 1.0, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"MaximumRate":    {Value: 1.0, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"Volume":         {Value: 1.0, Writable: false, Emit: prop.EmitFalse, Callback: nil},
	}

	var mediaPlayer = map[string]*prop.Prop{
		"CanQuit":             {Value: false, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"CanRaise":            {Value: false, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"HasTrackList":        {Value: false, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"Identity":            {Value: name, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"SupportedUriSchemes": {Value: []string{"http", "https", "file"}, Writable: false, Emit: prop.EmitFalse, Callback: nil},
		"SupportedMimeTypes":  {Value: []string{}, Writable: false, Emit: prop.EmitFalse, Callback: nil},
	}

	props, err := prop.Export(
		conn,
		objectPath,
		map[string]map[string]*prop.Prop{
			ifaceRoot:   mediaPlayer,
			ifacePlayer: mprisPlayer,
		},
	)
	if err != nil {
		return
	}
	mpp.props = props

	n := &introspect.Node{
		Name: objectPath,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			prop.IntrospectData,
			{
				Name:       ifacePlayer,
				Methods:    introspect.Methods(mpp),
				Properties: props.Introspection(ifacePlayer),
			},
		},
	}
	err = conn.Export(introspect.NewIntrospectable(n), objectPath, "org.freedesktop.DBus.Introspectable")
	if err != nil {
		return
	}

	busName := ifaceRoot + "." + name
	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		err = fmt.Errorf("mpris: %s already owned", busName)
		return
	}
	return mpp, nil
}

func (m *MprisPlayer) Close() {
	if m.dbus == nil {
		return
	}
	if err := m.dbus.Close(); err != nil {
		m.logger.PrintError("mpp Close", err)
	}
}

// SetHandlers is called by the engine whenever a session is armed.
func (m *MprisPlayer) SetHandlers(play, pause playback.CommandHandler) {
	m.mu.Lock()
	m.play, m.pause = play, pause
	m.mu.Unlock()
	m.set("CanPlay", play != nil)
	m.set("CanPause", pause != nil)
}

func (m *MprisPlayer) ClearHandlers() {
	m.SetHandlers(nil, nil)
}

func (m *MprisPlayer) SetNowPlaying(info playback.NowPlayingInfo) {
	m.mu.Lock()
	m.info, m.active = info, true
	m.mu.Unlock()

	m.set("Metadata", metadataFor(info, true))
	m.set("PlaybackStatus", playbackStatusFor(info, true))
	m.set("Position", microseconds(info.ElapsedSeconds))
}

func (m *MprisPlayer) ClearNowPlaying() {
	m.mu.Lock()
	m.info, m.active = playback.NowPlayingInfo{}, false
	m.mu.Unlock()

	m.set("Metadata", metadataFor(playback.NowPlayingInfo{}, false))
	m.set("PlaybackStatus", statusStopped)
	m.set("Position", int64(0))
}

func (m *MprisPlayer) set(property string, v interface{}) {
	if m.props == nil {
		return
	}
	m.props.SetMust(ifacePlayer, property, v)
}

// Mandatory functions

// set playing
func (m *MprisPlayer) Play() *dbus.Error {
	return m.run("Play", m.handler(true))
}

// set paused
func (m *MprisPlayer) Pause() *dbus.Error {
	return m.run("Pause", m.handler(false))
}

func (m *MprisPlayer) PlayPause() *dbus.Error {
	m.mu.Lock()
	playing := m.active && m.info.PlaybackRate != 0
	m.mu.Unlock()
	return m.run("PlayPause", m.handler(!playing))
}

// Stop only pauses; the host owns the session lifetime.
func (m *MprisPlayer) Stop() *dbus.Error {
	return m.run("Stop", m.handler(false))
}

func (m *MprisPlayer) Next() *dbus.Error {
	return nil
}

func (m *MprisPlayer) Previous() *dbus.Error {
	return nil
}

func (m *MprisPlayer) Seek(int64) *dbus.Error {
	return nil
}

func (m *MprisPlayer) SetPosition(dbus.ObjectPath, int64) *dbus.Error {
	return nil
}

func (m *MprisPlayer) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(ErrNotSupported)
}

func (m *MprisPlayer) handler(play bool) playback.CommandHandler {
	m.mu.Lock()
	defer m.mu.Unlock()
	if play {
		return m.play
	}
	return m.pause
}

func (m *MprisPlayer) run(name string, h playback.CommandHandler) *dbus.Error {
	if h == nil {
		return dbus.MakeFailedError(fmt.Errorf("%s: %w", name, ErrCommandRejected))
	}
	status := h()
	m.logger.Printf("mpris: %s -> %s", name, status)
	if status != playback.CommandSuccess {
		return dbus.MakeFailedError(fmt.Errorf("%s: %w", name, ErrCommandRejected))
	}
	return nil
}

func metadataFor(info playback.NowPlayingInfo, active bool) map[string]dbus.Variant {
	if !active {
		return map[string]dbus.Variant{
			"mpris:trackid": dbus.MakeVariant(noTrack),
		}
	}

	metadata := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackIDFor(info)),
		"xesam:title":   dbus.MakeVariant(info.Title),
		"xesam:artist":  dbus.MakeVariant([]string{info.Artist}),
	}
	if info.DurationSeconds > 0 {
		metadata["mpris:length"] = dbus.MakeVariant(microseconds(info.DurationSeconds))
	}
	if info.IsLiveStream != nil {
		metadata["playout:isLiveStream"] = dbus.MakeVariant(*info.IsLiveStream)
	}
	return metadata
}

// trackIDFor derives a stable object path from the title and artist.
func trackIDFor(info playback.NowPlayingInfo) dbus.ObjectPath {
	h := fnv.New64a()
	h.Write([]byte(info.Title))
	h.Write([]byte{0})
	h.Write([]byte(info.Artist))
	return dbus.ObjectPath(fmt.Sprintf("%s%x", trackIDPrefix, h.Sum64()))
}

func playbackStatusFor(info playback.NowPlayingInfo, active bool) string {
	switch {
	case !active:
		return statusStopped
	case info.PlaybackRate != 0:
		return statusPlaying
	default:
		return statusPaused
	}
}

func microseconds(seconds float64) int64 {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return 0
	}
	return int64(math.Round(seconds * 1e6))
}
