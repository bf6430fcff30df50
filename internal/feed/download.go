package feed

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// DefaultURL is where the latest national delivery is published.
const DefaultURL = "https://data.ndovloket.nl/ns/ns-latest.zip"

// Downloader fetches a delivery archive and unpacks its feed files.
type Downloader struct {
	Client     *http.Client
	Log        zerolog.Logger
	MaxRetries uint64
}

func NewDownloader(log zerolog.Logger) *Downloader {
	return &Downloader{
		Client:     &http.Client{Timeout: 5 * time.Minute},
		Log:        log,
		MaxRetries: 5,
	}
}

// Download fetches url and extracts the timetable, footnote and company files
// into dir. Server errors and transport failures are retried with exponential
// backoff; client errors are not.
func (d *Downloader) Download(ctx context.Context, url, dir string) error {
	archive, err := os.CreateTemp("", "timetable-feed-*.zip")
	if err != nil {
		return err
	}
	defer os.Remove(archive.Name())
	defer archive.Close()

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.MaxRetries), ctx)
	err = backoff.RetryNotify(
		func() error { return d.fetch(ctx, url, archive) },
		b,
		func(err error, wait time.Duration) {
			d.Log.Warn().Err(err).Dur("wait", wait).Str("url", url).Msg("feed download failed, retrying")
		},
	)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}

	n, err := extract(archive.Name(), dir)
	if err != nil {
		return err
	}
	d.Log.Info().Str("url", url).Str("dir", dir).Int("files", n).Msg("feed downloaded")
	return nil
}

func (d *Downloader) fetch(ctx context.Context, url string, dst *os.File) error {
	if err := dst.Truncate(0); err != nil {
		return backoff.Permanent(err)
	}
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s", resp.Status)
		if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	_, err = io.Copy(dst, resp.Body)
	return err
}

// extract copies the known feed files out of the zip at path into dir and
// returns how many were found.
func extract(path, dir string) (int, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	found := 0
	for _, f := range zr.File {
		name := strings.ToLower(filepath.Base(f.Name))
		if name != TimetableFile && name != FootnoteFile && name != CompanyFile {
			continue
		}
		if err := extractFile(f, filepath.Join(dir, name)); err != nil {
			return found, fmt.Errorf("extract %s: %w", f.Name, err)
		}
		found++
	}
	if found != 3 {
		return found, fmt.Errorf("archive holds %d of the 3 feed files", found)
	}
	return found, nil
}

func extractFile(f *zip.File, dst string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
