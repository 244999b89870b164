package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder
	"os"
	"sync"

	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("image has no pixels")

// Decode decodes an encoded raster (PNG, JPEG, GIF, BMP, TIFF or WebP).
//
// Returns the image and the registered format name.
func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}
	return img, format, nil
}

// DecodeFile reads and decodes an image from disk.
func DecodeFile(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	img, _, err := Decode(data)
	return img, err
}

// ImageCache provides thread-safe caching of decoded and normalized images
// keyed by file path.
//
// Cached images are already passed through ResizeNormalize, so every caller
// sees the same bounded raster. Entries stay until Evict or Clear.
type ImageCache struct {
	mu     sync.RWMutex
	maxDim int
	images map[string]*image.NRGBA
}

// NewImageCache creates an empty cache that normalizes to maxDim.
func NewImageCache(maxDim int) *ImageCache {
	return &ImageCache{
		maxDim: maxDim,
		images: make(map[string]*image.NRGBA),
	}
}

// Load returns the normalized image at path, reading it from disk on first use.
//
// The cache key is the exact path string, so relative and absolute paths to
// the same file are cached separately.
func (c *ImageCache) Load(path string) (*image.NRGBA, error) {
	c.mu.RLock()
	if img, ok := c.images[path]; ok {
		c.mu.RUnlock()
		return img, nil
	}
	c.mu.RUnlock()

	raw, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	img, err := ResizeNormalize(raw, c.maxDim)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.images[path] = img
	c.mu.Unlock()

	return img, nil
}

// Clear removes all images from the cache.
func (c *ImageCache) Clear() {
	c.mu.Lock()
	c.images = make(map[string]*image.NRGBA)
	c.mu.Unlock()
}

// Evict removes a specific image from the cache by its path.
func (c *ImageCache) Evict(path string) {
	c.mu.Lock()
	delete(c.images, path)
	c.mu.Unlock()
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.images)
}
