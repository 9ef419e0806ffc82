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

package secrets_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tideflow/tideflow/internal/secrets"
)

func TestResolverEnvTakesPrecedenceOverFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets", "github.txt"), []byte("file-value\n"), 0o600))

	t.Setenv("GITHUB_API_KEY", "env-value")

	r := secrets.NewResolver(dir, nil, nil)
	value, err := r.Resolve("github")
	require.NoError(t, err)
	assert.Equal(t, "env-value", value)
}

func TestResolverFallsBackToFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secrets", "slack.txt"), []byte("  file-token  \n"), 0o600))

	r := secrets.NewResolver(dir, nil, nil)
	value, err := r.Resolve("slack")
	require.NoError(t, err)
	assert.Equal(t, "file-token", value)
}

func TestResolverErrorNamesBothSources(t *testing.T) {
	dir := t.TempDir()
	r := secrets.NewResolver(dir, nil, nil)

	_, err := r.Resolve("jira")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JIRA_API_KEY")
	assert.Contains(t, err.Error(), filepath.Join(dir, "secrets", "jira.txt"))
}

func TestLoadDotEnvDoesNotOverwriteExisting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FOO=from_dotenv\nBAR=baz\n"), 0o600))

	t.Setenv("FOO", "already_set")
	os.Unsetenv("BAR")

	secrets.LoadDotEnv(dir)

	assert.Equal(t, "already_set", os.Getenv("FOO"))
	assert.Equal(t, "baz", os.Getenv("BAR"))
}
