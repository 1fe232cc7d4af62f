// Package mnist loads the MNIST digit corpus and serves it as normalized
// mini-batches.
package mnist

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	ImgSize    = 28
	NumClasses = 10

	// Per-channel normalization constants of the MNIST training split.
	Mean = 0.1307
	Std  = 0.3081

	DefaultDir = "/tmp/mnist/data"

	imageMagic = 2051
	labelMagic = 2049
)

// ErrDataUnavailable is returned when the corpus cannot be located, fetched
// or verified.
var ErrDataUnavailable = errors.New("mnist data unavailable")

// ErrShapeMismatch is returned when the idx files disagree with the expected
// geometry or with each other.
var ErrShapeMismatch = errors.New("mnist shape mismatch")

type Split int

const (
	Train Split = iota
	Test
)

func (s Split) String() string {
	if s == Train {
		return "train"
	}
	return "test"
}

type file struct {
	name   string
	digest string
}

var files = map[Split][2]file{
	Train: {
		{"train-images-idx3-ubyte.gz", "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609"},
		{"train-labels-idx1-ubyte.gz", "3552534a0a558bbed6aed32b30c495cca23d567ec52cac8be1a0730e8010255c"},
	},
	Test: {
		{"t10k-images-idx3-ubyte.gz", "8d422c7b0a1c1c79245a5bcf07fe86e33eeafee792b84584aec276f5a2dbc4e6"},
		{"t10k-labels-idx1-ubyte.gz", "f7ae60f92e00ec6debd23a6088c31dbd2371eca3ffa0defaefb259924204aec6"},
	},
}

// Load reads one split from dir. When fetch is true, missing files are
// downloaded from Mirror first and a file that fails verification is
// downloaded once more.
func Load(dir string, split Split, fetch bool) (*Set, error) {
	var raw [2][]byte
	for i, f := range files[split] {
		data, err := fetchVerified(filepath.Join(dir, f.name), f, fetch)
		if err != nil {
			return nil, err
		}
		raw[i] = data
	}

	pixels, n, err := decodeImages(raw[0])
	if err != nil {
		return nil, errors.Wrapf(err, "%s images", split)
	}
	labels, err := decodeLabels(raw[1])
	if err != nil {
		return nil, errors.Wrapf(err, "%s labels", split)
	}
	if len(labels) != n {
		return nil, errors.Wrapf(ErrShapeMismatch, "%s: %d images but %d labels", split, n, len(labels))
	}
	return NewSet(Normalize(pixels), labels)
}

func fetchVerified(path string, f file, fetch bool) ([]byte, error) {
	_, err := os.Stat(path)
	missing := os.IsNotExist(err)
	if missing && fetch {
		if err := Download(Mirror+f.name, path); err != nil {
			return nil, err
		}
	}
	data, err := readVerified(path, f.digest)
	if err == nil || !fetch || missing {
		return data, err
	}
	// stale or partial file from an earlier run
	if err := Download(Mirror+f.name, path); err != nil {
		return nil, err
	}
	return readVerified(path, f.digest)
}

func readVerified(path, digest string) ([]byte, error) {
	compressed, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "read %s: %v", path, err)
	}
	sum := sha256.Sum256(compressed)
	if hex.EncodeToString(sum[:]) != digest {
		return nil, errors.Wrapf(ErrDataUnavailable, "file hash for %s is incorrect", path)
	}
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "gunzip %s: %v", path, err)
	}
	defer zr.Close()
	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, errors.Wrapf(ErrDataUnavailable, "gunzip %s: %v", path, err)
	}
	return data, nil
}

// decodeImages parses an idx3 image file and returns its raw pixels and the
// image count.
func decodeImages(data []byte) ([]byte, int, error) {
	if len(data) < 16 {
		return nil, 0, errors.Wrap(ErrShapeMismatch, "truncated idx3 header")
	}
	magic := binary.BigEndian.Uint32(data[0:])
	n := int(binary.BigEndian.Uint32(data[4:]))
	rows := int(binary.BigEndian.Uint32(data[8:]))
	cols := int(binary.BigEndian.Uint32(data[12:]))
	if magic != imageMagic {
		return nil, 0, errors.Wrapf(ErrShapeMismatch, "idx3 magic %d, want %d", magic, imageMagic)
	}
	if rows != ImgSize || cols != ImgSize {
		return nil, 0, errors.Wrapf(ErrShapeMismatch, "images are %dx%d, want %dx%d", rows, cols, ImgSize, ImgSize)
	}
	pixels := data[16:]
	if len(pixels) != n*ImgSize*ImgSize {
		return nil, 0, errors.Wrapf(ErrShapeMismatch, "%d pixel bytes for %d images", len(pixels), n)
	}
	return pixels, n, nil
}

func decodeLabels(data []byte) ([]int, error) {
	if len(data) < 8 {
		return nil, errors.Wrap(ErrShapeMismatch, "truncated idx1 header")
	}
	magic := binary.BigEndian.Uint32(data[0:])
	n := int(binary.BigEndian.Uint32(data[4:]))
	if magic != labelMagic {
		return nil, errors.Wrapf(ErrShapeMismatch, "idx1 magic %d, want %d", magic, labelMagic)
	}
	if len(data)-8 != n {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d label bytes for %d labels", len(data)-8, n)
	}
	labels := make([]int, n)
	for i, b := range data[8:] {
		if int(b) >= NumClasses {
			return nil, errors.Wrapf(ErrShapeMismatch, "label %d out of range", b)
		}
		labels[i] = int(b)
	}
	return labels, nil
}

// Normalize maps raw 0-255 pixels to (x/255 - Mean) / Std.
func Normalize(pixels []byte) []float64 {
	out := make([]float64, len(pixels))
	for i, p := range pixels {
		out[i] = (float64(p)/255 - Mean) / Std
	}
	return out
}
