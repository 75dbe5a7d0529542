// Copyright 2019-2020 Intel Corporation. All Rights Reserved.
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

package log

import (
	"fmt"
	"sync"
	"time"

	goxrate "golang.org/x/time/rate"
)

// Rate specifies maximum per-message logging rate.
type Rate struct {
	// Limit is the sustained rate of identical messages.
	Limit goxrate.Limit
	// Burst is the number of identical messages let through at once.
	Burst int
	// Window is the number of distinct messages tracked.
	Window int
}

const (
	// DefaultWindow is the default message window size for rate limiting.
	DefaultWindow = 256
	// MinimumWindow is the smallest message window size for rate limiting.
	MinimumWindow = 32
)

// ratelimited is a Logger that suppresses identical messages exceeding a
// rate. Messages are tracked in a window of the most recent distinct ones.
type ratelimited struct {
	Logger
	sync.Mutex
	rate   Rate
	window []string
	limits map[string]*msgLimit
}

// msgLimit is the limiter of a single message.
type msgLimit struct {
	*goxrate.Limiter
	suppressed int
}

// Every defines a rate limit for the given interval.
func Every(interval time.Duration) goxrate.Limit {
	return goxrate.Every(interval)
}

// Interval returns a Rate of one message per interval.
func Interval(interval time.Duration) Rate {
	return Rate{Limit: Every(interval), Burst: 1}
}

// RateLimit returns a rate-limited version of the given logger.
func RateLimit(log Logger, rate Rate) Logger {
	switch {
	case rate.Window == 0:
		rate.Window = DefaultWindow
	case rate.Window < MinimumWindow:
		rate.Window = MinimumWindow
	}
	if rate.Burst < 1 {
		rate.Burst = 1
	}
	return &ratelimited{
		Logger: log,
		rate:   rate,
		limits: make(map[string]*msgLimit),
		window: make([]string, 0, rate.Window),
	}
}

func (rl *ratelimited) Debug(format string, args ...interface{}) {
	if !rl.DebugEnabled() {
		return
	}
	if msg, ok := rl.filter(format, args...); ok {
		rl.Logger.Debug("%s", msg)
	}
}

func (rl *ratelimited) Info(format string, args ...interface{}) {
	if msg, ok := rl.filter(format, args...); ok {
		rl.Logger.Info("%s", msg)
	}
}

func (rl *ratelimited) Warn(format string, args ...interface{}) {
	if msg, ok := rl.filter(format, args...); ok {
		rl.Logger.Warn("%s", msg)
	}
}

func (rl *ratelimited) Error(format string, args ...interface{}) {
	if msg, ok := rl.filter(format, args...); ok {
		rl.Logger.Error("%s", msg)
	}
}

// filter formats a message and checks if it may be emitted. An emitted
// message reports how many of its copies were suppressed since last time.
func (rl *ratelimited) filter(format string, args ...interface{}) (string, bool) {
	msg := fmt.Sprintf(format, args...)

	rl.Lock()
	defer rl.Unlock()

	lim := rl.getMessageLimit(msg)
	if !lim.Allow() {
		lim.suppressed++
		return "", false
	}
	if n := lim.suppressed; n > 0 {
		lim.suppressed = 0
		return fmt.Sprintf("%s (suppressed %d times)", msg, n), true
	}
	return msg, true
}

// getMessageLimit returns the limiter for msg, evicting the oldest message
// from the window if it is full. The caller holds the lock.
func (rl *ratelimited) getMessageLimit(msg string) *msgLimit {
	if lim, ok := rl.limits[msg]; ok {
		return lim
	}
	if len(rl.window) == cap(rl.window) {
		delete(rl.limits, rl.window[0])
		copy(rl.window, rl.window[1:])
		rl.window = rl.window[:len(rl.window)-1]
	}
	lim := &msgLimit{Limiter: goxrate.NewLimiter(rl.rate.Limit, rl.rate.Burst)}
	rl.window = append(rl.window, msg)
	rl.limits[msg] = lim
	return lim
}
