package mnist

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Mirror is the base URL the idx files are fetched from.
var Mirror = "https://ossci-datasets.s3.amazonaws.com/mnist/"

var client = &http.Client{Timeout: 5 * time.Minute}

// Download fetches url into path. The body is written to a temporary file
// in the same directory and renamed into place once complete.
func Download(url, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(ErrDataUnavailable, "create %s: %v", filepath.Dir(path), err)
	}
	resp, err := client.Get(url)
	if err != nil {
		return errors.Wrapf(ErrDataUnavailable, "fetch %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(ErrDataUnavailable, "fetch %s: %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(ErrDataUnavailable, "fetch %s: %v", url, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return errors.Wrapf(ErrDataUnavailable, "fetch %s: %v", url, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(ErrDataUnavailable, "fetch %s: %v", url, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(ErrDataUnavailable, "fetch %s: %v", url, err)
	}
	return nil
}
