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
	"bufio"
	"os"
	"strings"
)

// Resolver implements spec §6's precedence: an environment variable
// named after the integration wins if present; otherwise
// secrets/<name>.txt under the base directory; otherwise (if enabled)
// the OS keychain. If none resolve, the error names both the env var
// and the file path so the operator knows exactly what to set.
type Resolver struct {
	file     *FileProvider
	keychain *KeychainProvider // nil disables the keychain tier
	envName  func(integration string) string
}

// NewResolver builds a Resolver rooted at baseDir. envName maps an
// integration name to its environment variable name (e.g. "github" ->
// "GITHUB_API_KEY"); callers that don't need a custom convention can
// pass DefaultEnvName.
func NewResolver(baseDir string, envName func(string) string, keychain *KeychainProvider) *Resolver {
	if envName == nil {
		envName = DefaultEnvName
	}
	return &Resolver{file: NewFileProvider(baseDir), keychain: keychain, envName: envName}
}

// DefaultEnvName upper-cases the integration name and appends
// "_API_KEY", e.g. "github" -> "GITHUB_API_KEY".
func DefaultEnvName(integration string) string {
	return strings.ToUpper(integration) + "_API_KEY"
}

// Resolve returns the secret value for integration, trying the
// environment variable, then the secrets file, then the keychain (if
// configured). Returns a *ResolutionError naming both the env var and
// file path when none of the tiers produced a value.
func (r *Resolver) Resolve(integration string) (string, error) {
	envVar := r.envName(integration)
	if value, ok := os.LookupEnv(envVar); ok && value != "" {
		return value, nil
	}

	if value, err := r.file.Resolve(integration); err == nil {
		return value, nil
	}

	if r.keychain != nil {
		if value, err := r.keychain.Resolve(integration); err == nil {
			return value, nil
		}
	}

	return "", &ResolutionError{
		Integration: integration,
		EnvVar:      envVar,
		FilePath:    r.file.Path(integration),
		Category:    ErrorCategoryNotFound,
	}
}

// LoadDotEnv best-effort loads KEY=VALUE pairs from <baseDir>/.env into
// the process environment before the rest of configuration resolves
// (spec §6). Existing environment variables are never overwritten.
// Missing files and parse errors on individual lines are silently
// skipped — this is advisory convenience, not a strict parser.
func LoadDotEnv(baseDir string) {
	f, err := os.Open(baseDir + "/.env")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
}
