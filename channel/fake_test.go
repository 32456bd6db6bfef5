// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package channel

import (
	"sync"

	"github.com/PingAK9/flutter-playout/logger"
	"github.com/PingAK9/flutter-playout/playback"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeEngine struct {
	mu       sync.Mutex
	loads    []playback.PlaybackRequest
	calls    []string
	seeks    []float64
	rejected []error
	emitter  playback.Emitter
	status   playback.Status
}

func (f *fakeEngine) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeEngine) Load(req playback.PlaybackRequest) {
	f.mu.Lock()
	f.loads = append(f.loads, req)
	f.mu.Unlock()
	f.record("load")
}

func (f *fakeEngine) Play()  { f.record("play") }
func (f *fakeEngine) Pause() { f.record("pause") }
func (f *fakeEngine) Stop()  { f.record("stop") }

func (f *fakeEngine) SeekTo(seconds float64) {
	f.mu.Lock()
	f.seeks = append(f.seeks, seconds)
	f.mu.Unlock()
	f.record("seekTo")
}

func (f *fakeEngine) Reject(err error) {
	f.mu.Lock()
	f.rejected = append(f.rejected, err)
	f.mu.Unlock()
	f.record("reject")
}

func (f *fakeEngine) Events() *playback.Emitter {
	return &f.emitter
}

func (f *fakeEngine) Status() playback.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeEngine) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeEngine) loaded() []playback.PlaybackRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]playback.PlaybackRequest(nil), f.loads...)
}

func nullLogger() *logger.Logger {
	base, _ := test.NewNullLogger()
	return logger.New(base)
}
