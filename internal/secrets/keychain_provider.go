// Copyright 2025 The Tideflow Authors
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

package secrets

import (
	"errors"

	"github.com/zalando/go-keyring"
)

// KeychainProvider resolves secrets from the OS credential store (macOS
// Keychain, Secret Service on Linux, Windows Credential Manager). It is
// an optional third tier beneath the env-var and secrets/*.txt file
// checked by spec §6, for operators who keep integration keys out of
// both the environment and the filesystem.
type KeychainProvider struct {
	service string
}

// NewKeychainProvider returns a provider that stores entries under the
// given keychain service name.
func NewKeychainProvider(service string) *KeychainProvider {
	return &KeychainProvider{service: service}
}

// Resolve looks up name in the keychain. A missing entry or an
// unavailable keychain both resolve as ErrorCategoryNotFound /
// ErrorCategoryAccessDenied respectively, never a panic.
func (k *KeychainProvider) Resolve(name string) (string, error) {
	value, err := keyring.Get(k.service, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", &ResolutionError{Integration: name, Category: ErrorCategoryNotFound, Message: "not present in OS keychain"}
		}
		return "", &ResolutionError{Integration: name, Category: ErrorCategoryAccessDenied, Message: "keychain unavailable", Cause: err}
	}
	return value, nil
}
