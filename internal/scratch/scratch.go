// Package scratch stores the ephemeral images of a capture session under a
// cache root. Images are addressed by handles of the form "<dir>/<name>".
package scratch

import (
	"errors"
	"fmt"
	"image"
	"path"
	"strings"
)

// DetectDir is the directory under the cache root holding session folders.
const DetectDir = "detect_images"

// ErrNotFound is returned when a handle does not name a stored image.
var ErrNotFound = errors.New("scratch: image not found")

// ErrInvalidHandle is returned for handles that escape the storage root.
var ErrInvalidHandle = errors.New("scratch: invalid handle")

// Storage persists named image blobs. Reads after a write observe the write.
type Storage interface {
	Write(dir, name string, img image.Image) (string, error)
	Read(handle string) (image.Image, error)
	Overwrite(handle string, img image.Image) error
	Delete(handle string) error
	RemoveDir(dir string) error
}

// Handle joins a session directory and file name.
func Handle(dir, name string) (string, error) {
	h := path.Join(dir, name)
	if err := checkHandle(h); err != nil {
		return "", err
	}
	return h, nil
}

func checkHandle(h string) error {
	c := path.Clean(h)
	if h == "" || c == "." || path.IsAbs(h) || strings.HasPrefix(c, "..") {
		return fmt.Errorf("%w: %q", ErrInvalidHandle, h)
	}
	return nil
}
