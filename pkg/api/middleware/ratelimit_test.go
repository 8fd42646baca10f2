// YHS Sign
// Copyright (c) 2025 The YHS Sign Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of YHS Sign.
//
// YHS Sign is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// YHS Sign is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with YHS Sign.  If not, see <http://www.gnu.org/licenses/>.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_Burst(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(clock, 60, 5)

	for i := range 5 {
		assert.True(t, limiter.Allow("192.168.1.100"), "request %d within burst", i+1)
	}
	assert.False(t, limiter.Allow("192.168.1.100"))
	assert.True(t, limiter.Allow("192.168.1.101"), "other clients have their own bucket")

	// one token a second at 60/min
	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("192.168.1.100"))
	assert.False(t, limiter.Allow("192.168.1.100"))
}

func TestIPRateLimiter_SameIPReuse(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(nil, 100, 0)
	assert.Same(t, limiter.GetLimiter("10.0.0.1"), limiter.GetLimiter("10.0.0.1"))
	assert.NotSame(t, limiter.GetLimiter("10.0.0.1"), limiter.GetLimiter("10.0.0.2"))
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(clock, 100, 0)

	limiter.GetLimiter("old.ip")
	clock.Advance(11 * time.Minute)
	limiter.GetLimiter("new.ip")
	assert.Equal(t, 2, limiter.Len())

	limiter.Cleanup()
	assert.Equal(t, 1, limiter.Len())
	assert.Contains(t, limiter.limiters, "new.ip")
}

func TestHTTPRateLimitMiddleware(t *testing.T) {
	t.Parallel()

	limiter := NewIPRateLimiter(clockwork.NewFakeClock(), 60, 2)
	calls := 0
	handler := HTTPRateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodPut, "/text/test", http.NoBody)
		req.RemoteAddr = "[2001:db8::1]:8080"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 2, calls)
	assert.Contains(t, limiter.limiters, "2001:db8::1")
}
