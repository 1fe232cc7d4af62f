package neuralnet

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

const (
	npySuffix = ".npy"
	metaEntry = "meta.json"
)

// SnapshotMeta is stored next to the tensors in a snapshot archive.
type SnapshotMeta struct {
	RunID  string   `json:"run_id"`
	Params []string `json:"params"`
}

// WriteSnapshot writes params as a numpy .npz archive: one .npy entry per
// parameter plus a meta.json entry.
func WriteSnapshot(w io.Writer, params []*Param, runID string) error {
	zw := zip.NewWriter(w)
	meta := SnapshotMeta{RunID: runID}
	for _, p := range params {
		f, err := zw.Create(p.Name + npySuffix)
		if err != nil {
			return errors.Wrapf(err, "snapshot: create %s", p.Name)
		}
		if err := p.Value.WriteNpy(f); err != nil {
			return errors.Wrapf(err, "snapshot: write %s", p.Name)
		}
		meta.Params = append(meta.Params, p.Name)
	}
	f, err := zw.Create(metaEntry)
	if err != nil {
		return errors.Wrap(err, "snapshot: create meta")
	}
	if err := json.NewEncoder(f).Encode(meta); err != nil {
		return errors.Wrap(err, "snapshot: write meta")
	}
	return zw.Close()
}

// ReadSnapshot decodes every tensor of an archive written by WriteSnapshot.
func ReadSnapshot(r io.ReaderAt, size int64) (map[string]*tensor.Dense, SnapshotMeta, error) {
	var meta SnapshotMeta
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, meta, errors.Wrap(err, "snapshot: open archive")
	}
	out := make(map[string]*tensor.Dense)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, meta, errors.Wrapf(err, "snapshot: open %s", f.Name)
		}
		switch {
		case f.Name == metaEntry:
			err = json.NewDecoder(rc).Decode(&meta)
		case strings.HasSuffix(f.Name, npySuffix):
			d := new(tensor.Dense)
			if err = d.ReadNpy(rc); err == nil {
				out[strings.TrimSuffix(f.Name, npySuffix)] = d
			}
		}
		rc.Close()
		if err != nil {
			return nil, meta, errors.Wrapf(err, "snapshot: read %s", f.Name)
		}
	}
	return out, meta, nil
}

// Save writes the parameter state to path. The file is written to a
// temporary name first so a failed write leaves no partial snapshot.
func (t *Twin) Save(path, runID string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "snapshot")
	}
	defer os.Remove(tmp.Name())

	if err := WriteSnapshot(tmp, t.Params(), runID); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "snapshot")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "snapshot")
}

// Load replaces the parameter state with the snapshot at path. Every
// parameter must be present with a matching shape.
func (t *Twin) Load(path string) (SnapshotMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotMeta{}, errors.Wrap(err, "snapshot")
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return SnapshotMeta{}, errors.Wrap(err, "snapshot")
	}
	tensors, meta, err := ReadSnapshot(f, st.Size())
	if err != nil {
		return meta, err
	}
	for _, p := range t.Params() {
		src, ok := tensors[p.Name]
		if !ok {
			return meta, errors.Errorf("snapshot: missing parameter %s", p.Name)
		}
		if !src.Shape().Eq(p.Value.Shape()) {
			return meta, shapeErrorf("snapshot: %s has shape %v, want %v", p.Name, src.Shape(), p.Value.Shape())
		}
		data, ok := src.Data().([]float64)
		if !ok {
			return meta, errors.Errorf("snapshot: %s has dtype %v, want float64", p.Name, src.Dtype())
		}
		copy(Float64s(p.Value), data)
	}
	return meta, nil
}
