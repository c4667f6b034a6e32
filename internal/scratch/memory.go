package scratch

import (
	"fmt"
	"image"
	"path"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-memory Storage for tests.
type Memory struct {
	mu        sync.Mutex
	images    map[string]image.Image
	deleted   []string
	removed   []string
	deleteErr error

	// WriteErr, when set, fails every Write.
	WriteErr error
}

// NewMemory creates an empty Memory storage.
func NewMemory() *Memory {
	return &Memory{images: make(map[string]image.Image)}
}

func (m *Memory) Write(dir, name string, img image.Image) (string, error) {
	h, err := Handle(dir, name)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	m.images[h] = img
	return h, nil
}

func (m *Memory) Read(handle string) (image.Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[handle]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return img, nil
}

func (m *Memory) Overwrite(handle string, img image.Image) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.images[handle]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	m.images[handle] = img
	return nil
}

func (m *Memory) Delete(handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.images, handle)
	m.deleted = append(m.deleted, handle)
	return nil
}

// SetDeleteErr makes every later Delete fail with err. A nil err restores
// normal deletes.
func (m *Memory) SetDeleteErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteErr = err
}

// RemoveDir drops every image stored under dir.
func (m *Memory) RemoveDir(dir string) error {
	if err := checkHandle(dir); err != nil {
		return err
	}
	prefix := path.Clean(dir) + "/"
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.images {
		if strings.HasPrefix(h, prefix) {
			delete(m.images, h)
		}
	}
	m.removed = append(m.removed, dir)
	return nil
}

// RemovedDirs returns the directories passed to RemoveDir.
func (m *Memory) RemovedDirs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.removed))
	copy(out, m.removed)
	return out
}

// Handles returns the stored handles in sorted order.
func (m *Memory) Handles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.images))
	for h := range m.images {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Deleted returns the handles passed to Delete.
func (m *Memory) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deleted))
	copy(out, m.deleted)
	return out
}
