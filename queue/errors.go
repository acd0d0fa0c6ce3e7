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

package queue

import "errors"

var (
	// ErrJobRepositoryRequired is returned when no job repository is provided.
	ErrJobRepositoryRequired = errors.New("queue: job repository is required")

	// ErrHandlerRequired is returned when no job handler is provided.
	ErrHandlerRequired = errors.New("queue: job handler is required")

	// ErrAlreadyRunning is returned when Start is called on a running service.
	ErrAlreadyRunning = errors.New("queue: service is already running")
)
