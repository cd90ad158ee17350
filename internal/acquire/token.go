package acquire

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

var ErrEmptyToken = errors.New("acquire: empty token")

// NormalizeBearer trims s and drops a leading "Bearer" scheme.
func NormalizeBearer(s string) string {
	s = strings.TrimSpace(s)
	if scheme, rest, ok := strings.Cut(s, " "); ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	return s
}

// FileTokenLoader reads a bearer token that another process may rotate.
type FileTokenLoader struct {
	path string

	mu   sync.Mutex
	last string
}

func NewFileTokenLoader(path string) *FileTokenLoader {
	return &FileTokenLoader{path: path}
}

// Load returns the token on disk and whether it differs from the previous
// successful load.
func (l *FileTokenLoader) Load() (string, bool, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", false, fmt.Errorf("acquire: read token file: %w", err)
	}
	token := NormalizeBearer(string(data))

	l.mu.Lock()
	defer l.mu.Unlock()
	if token == "" {
		l.last = ""
		return "", false, ErrEmptyToken
	}
	changed := token != l.last
	l.last = token
	return token, changed, nil
}
