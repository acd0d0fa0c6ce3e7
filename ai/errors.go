// Copyright 2025 Poiesic Systems
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

package ai

import (
	"errors"
	"strings"
)

// ErrQuotaExhausted indicates the provider rejected the request because the
// account's quota or rate budget ran out. Not retryable within a job; the
// ingestion pipeline degrades to storing chunks without vectors.
var ErrQuotaExhausted = errors.New("ai: provider quota exhausted")

// ErrTransient indicates a temporary provider failure worth retrying.
var ErrTransient = errors.New("ai: transient provider failure")

// quotaPatterns match provider error messages that mean the quota itself is
// gone, as opposed to momentary throttling.
var quotaPatterns = []string{
	"insufficient_quota",
	"quota exceeded",
	"quota exhausted",
	"billing",
}

var transientPatterns = []string{
	"429",
	"rate limit",
	"too many requests",
	"timeout",
	"deadline exceeded",
	"connection refused",
	"connection reset",
	"502",
	"503",
	"504",
	"server error",
	"overloaded",
}

// IsQuotaExhausted reports whether err means the provider quota ran out.
func IsQuotaExhausted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrQuotaExhausted) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range quotaPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying with backoff.
// Quota exhaustion is not transient: retrying inside a job cannot refill
// the account.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsQuotaExhausted(err) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
