// Package ledger persists the set of addresses this tool has blackholed.
//
// The file holds one address per line. Every mutation reads the whole file,
// applies the change and atomically replaces it, all while holding both an
// in-process mutex and a lock file, so concurrent goroutines and concurrent
// relayblock processes never lose each other's updates.
package ledger

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/rogpeppe/go-internal/lockedfile"
)

const (
	dirPerm  = 0700
	filePerm = 0600
)

// Ledger is a file-backed ordered set of addresses.
type Ledger struct {
	mu   sync.Mutex
	path string
	lock *lockedfile.Mutex
}

// Open prepares a ledger at path, creating its directory with owner-only
// permissions. The file itself is created on first write.
func Open(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Ledger{
		path: path,
		lock: lockedfile.MutexAt(path + ".lock"),
	}, nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// List returns the recorded addresses in file order. A missing file is an
// empty ledger.
func (l *Ledger) List() ([]string, error) {
	var out []string
	err := l.withLock(func() error {
		addrs, err := l.read()
		out = addrs
		return err
	})
	return out, err
}

// Contains reports whether addr is recorded.
func (l *Ledger) Contains(addr string) (bool, error) {
	addrs, err := l.List()
	if err != nil {
		return false, err
	}
	for _, a := range addrs {
		if a == addr {
			return true, nil
		}
	}
	return false, nil
}

// Add records addr unless it is already present.
func (l *Ledger) Add(addr string) error {
	return l.Update(func(addrs []string) []string {
		for _, a := range addrs {
			if a == addr {
				return addrs
			}
		}
		return append(addrs, addr)
	})
}

// Remove forgets addr. Removing an absent address is not an error.
func (l *Ledger) Remove(addr string) error {
	return l.Update(func(addrs []string) []string {
		return filter(addrs, func(a string) bool { return a != addr })
	})
}

// Replace rewrites the ledger with exactly addrs (deduplicated).
func (l *Ledger) Replace(addrs []string) error {
	return l.Update(func([]string) []string {
		return addrs
	})
}

// Update applies fn to the current contents and stores the result as one
// atomic replacement.
func (l *Ledger) Update(fn func(addrs []string) []string) error {
	return l.Locked(func(addrs []string) ([]string, error) {
		return fn(addrs), nil
	})
}

// Locked runs fn with the current contents while holding the ledger lock,
// then stores what fn returns if it differs. Route changes made inside fn are
// therefore ordered against every other ledger user, in this process or
// another one. If fn fails nothing is written. fn must not call back into
// the ledger.
func (l *Ledger) Locked(fn func(addrs []string) ([]string, error)) error {
	return l.withLock(func() error {
		current, err := l.read()
		if err != nil {
			return err
		}
		next, err := fn(slices.Clone(current))
		if err != nil {
			return err
		}
		next = dedupe(next)
		if slices.Equal(current, next) {
			return nil
		}
		return l.write(next)
	})
}

func (l *Ledger) withLock(fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	unlock, err := l.lock.Lock()
	if err != nil {
		return fmt.Errorf("lock ledger: %w", err)
	}
	defer unlock()
	return fn()
}

func (l *Ledger) read() ([]string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var addrs []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			addrs = append(addrs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return dedupe(addrs), nil
}

func (l *Ledger) write(addrs []string) error {
	var buf bytes.Buffer
	for _, a := range addrs {
		buf.WriteString(a)
		buf.WriteByte('\n')
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), "."+filepath.Base(l.path)+".*")
	if err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(filePerm); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

func dedupe(addrs []string) []string {
	seen := make(map[string]bool, len(addrs))
	result := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if !seen[a] {
			seen[a] = true
			result = append(result, a)
		}
	}
	return result
}

func filter(addrs []string, keep func(string) bool) []string {
	result := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if keep(a) {
			result = append(result, a)
		}
	}
	return result
}
