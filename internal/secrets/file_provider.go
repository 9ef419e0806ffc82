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
	"os"
	"path/filepath"
	"strings"
)

// MaxSecretFileSize caps how much of a secrets/*.txt file is read.
const MaxSecretFileSize = 64 * 1024

// FileProvider resolves secrets from <base_dir>/secrets/<name>.txt, the
// filesystem tier of spec §6's environment/file precedence.
type FileProvider struct {
	dir string
}

// NewFileProvider returns a provider rooted at baseDir/secrets.
func NewFileProvider(baseDir string) *FileProvider {
	return &FileProvider{dir: filepath.Join(baseDir, "secrets")}
}

// Path returns the file path this provider would read for name, for use
// in error messages that must name both candidate sources.
func (f *FileProvider) Path(name string) string {
	return filepath.Join(f.dir, name+".txt")
}

// Resolve reads and trims the secret file for name. A missing file is
// reported as ErrorCategoryNotFound; an oversized file as
// ErrorCategoryInvalidInput.
func (f *FileProvider) Resolve(name string) (string, error) {
	path := f.Path(name)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &ResolutionError{Integration: name, FilePath: path, Category: ErrorCategoryNotFound, Cause: err}
		}
		return "", &ResolutionError{Integration: name, FilePath: path, Category: ErrorCategoryAccessDenied, Cause: err}
	}
	if info.Size() > MaxSecretFileSize {
		return "", &ResolutionError{
			Integration: name, FilePath: path, Category: ErrorCategoryInvalidInput,
			Message: "secret file exceeds 64KB limit",
		}
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return "", &ResolutionError{Integration: name, FilePath: path, Category: ErrorCategoryAccessDenied, Cause: err}
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", &ResolutionError{Integration: name, FilePath: path, Category: ErrorCategoryNotFound, Message: "secret file is empty"}
	}
	return value, nil
}
