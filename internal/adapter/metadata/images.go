package metadata

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // decoders for image.Decode
	"image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/tejashwikalptaru/tubetune/internal/ports"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// maxImageBytes bounds a downloaded image.
const maxImageBytes = 20 << 20

// ImageFetcher downloads artwork and thumbnails, shrinks them to fit and stores them as JPEG.
type ImageFetcher struct {
	logger *slog.Logger
	fs     afero.Fs
	client *http.Client
}

// NewImageFetcher creates a fetcher writing to fs. A nil client uses a 30s timeout client.
func NewImageFetcher(logger *slog.Logger, fs afero.Fs, client *http.Client) *ImageFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &ImageFetcher{logger: logger, fs: fs, client: client}
}

// FetchImage downloads url and writes it to dest, resized to fit within size x size.
// The file appears atomically.
func (f *ImageFetcher) FetchImage(ctx context.Context, url, dest string, size int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("image request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return err
	}
	encoded, err := ResizeJPEG(data, size)
	if err != nil {
		return err
	}

	if err := f.fs.MkdirAll(filepath.Dir(dest), os.ModePerm); err != nil {
		return err
	}
	part := dest + ".part"
	if err := afero.WriteFile(f.fs, part, encoded, 0o644); err != nil {
		return err
	}
	if err := f.fs.Rename(part, dest); err != nil {
		_ = f.fs.Remove(part)
		return err
	}
	f.logger.Debug("image stored", slog.String("path", dest), slog.Int("bytes", len(encoded)))
	return nil
}

// ResizeJPEG decodes an image, scales it down to fit within size x size keeping the aspect
// ratio, and encodes it as JPEG. Smaller images keep their dimensions.
func ResizeJPEG(data []byte, size int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if size > 0 && (width > size || height > size) {
		if width >= height {
			height = max(1, height*size/width)
			width = size
		} else {
			width = max(1, width*size/height)
			height = size
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var _ ports.ImageFetcher = (*ImageFetcher)(nil)
