package scratch

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/ayusman/cardcapture/internal/logger"
)

// DefaultJPEGQuality is the encode quality of stored images.
const DefaultJPEGQuality = 90

// FS stores images as JPEG files under <cacheRoot>/detect_images.
type FS struct {
	root    string
	quality int
	log     *logger.Logger
}

// NewFS creates an FS rooted at cacheRoot. A non-positive quality uses
// DefaultJPEGQuality.
func NewFS(cacheRoot string, quality int) (*FS, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}
	root := filepath.Join(cacheRoot, DetectDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch root: %w", err)
	}
	return &FS{root: root, quality: quality, log: logger.Named("scratch")}, nil
}

// Root returns the directory holding session folders.
func (f *FS) Root() string {
	return f.root
}

// Dir returns the filesystem path of a session directory.
func (f *FS) Dir(dir string) string {
	return filepath.Join(f.root, filepath.FromSlash(dir))
}

func (f *FS) path(handle string) (string, error) {
	if err := checkHandle(handle); err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(handle)), nil
}

// Write encodes img as JPEG into dir/name and returns its handle.
func (f *FS) Write(dir, name string, img image.Image) (string, error) {
	h, err := Handle(dir, name)
	if err != nil {
		return "", err
	}
	p, _ := f.path(h)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", fmt.Errorf("create session dir: %w", err)
	}
	if err := f.encode(p, img); err != nil {
		return "", err
	}
	return h, nil
}

// Read decodes the image stored under handle.
func (f *FS) Read(handle string) (image.Image, error) {
	p, err := f.path(handle)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	mat := gocv.IMRead(p, gocv.IMReadColor)
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decode %s: empty image", handle)
	}
	return mat.ToImage()
}

// Overwrite replaces the image stored under handle.
func (f *FS) Overwrite(handle string, img image.Image) error {
	p, err := f.path(handle)
	if err != nil {
		return err
	}
	if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, handle)
	}
	return f.encode(p, img)
}

// Delete removes the image stored under handle. Missing files are not an error.
func (f *FS) Delete(handle string) error {
	p, err := f.path(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", handle, err)
	}
	return nil
}

// RemoveDir deletes a whole session directory.
func (f *FS) RemoveDir(dir string) error {
	if err := checkHandle(dir); err != nil {
		return err
	}
	return os.RemoveAll(f.Dir(dir))
}

func (f *FS) encode(p string, img image.Image) error {
	if img == nil {
		return fmt.Errorf("encode %s: nil image", p)
	}
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("convert image: %w", err)
	}
	defer mat.Close()

	if !gocv.IMWriteWithParams(p, mat, []int{int(gocv.IMWriteJpegQuality), f.quality}) {
		return fmt.Errorf("write %s failed", p)
	}
	f.log.Trace().Str("path", p).Msg("image stored")
	return nil
}
