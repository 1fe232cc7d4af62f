package neuralnet

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"

	"siamese/device"
)

func TestSnapshotRoundTripReproducesEmbeddings(t *testing.T) {
	cfg := smallTwinConfig()
	src, err := NewTwin(cfg, device.CPU(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := NewTwin(cfg, device.CPU(1), 2)
	if err != nil {
		t.Fatal(err)
	}
	x := images(rand.New(rand.NewSource(3)), 2)

	path := filepath.Join(t.TempDir(), "trained.npz")
	if err := src.Save(path, "run-1"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	meta, err := dst.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if meta.RunID != "run-1" || len(meta.Params) != len(src.Params()) {
		t.Errorf("meta = %+v", meta)
	}

	want, err := src.Embed(x, false)
	if err != nil {
		t.Fatal(err)
	}
	got, err := dst.Embed(x, false)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.Equal(Float64s(want.Output), Float64s(got.Output)) {
		t.Errorf("embeddings differ after reload:\n%v\n%v", Float64s(want.Output), Float64s(got.Output))
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("snapshot dir has %d entries; want only the snapshot", len(entries))
	}
}

func TestReadSnapshotNames(t *testing.T) {
	twin, err := NewTwin(smallTwinConfig(), device.CPU(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, twin.Params(), "id"); err != nil {
		t.Fatal(err)
	}
	tensors, _, err := ReadSnapshot(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range twin.Params() {
		got, ok := tensors[p.Name]
		if !ok {
			t.Errorf("missing %s", p.Name)
			continue
		}
		if !got.Shape().Eq(p.Value.Shape()) {
			t.Errorf("%s shape %v; want %v", p.Name, got.Shape(), p.Value.Shape())
		}
	}
}

func TestLoadRejectsDifferentArchitecture(t *testing.T) {
	small, err := NewTwin(smallTwinConfig(), device.CPU(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	cfg := smallTwinConfig()
	cfg.Hidden = 9
	other, err := NewTwin(cfg, device.CPU(1), 1)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "trained.npz")
	if err := small.Save(path, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := other.Load(path); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Load into different architecture err = %v; want ErrShapeMismatch", err)
	}
}
