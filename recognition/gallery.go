package recognition

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// Gallery file layout (little endian):
//
//	magic "FGAL" | version u32 | count u32 | dim u32
//	count x (labelLen u16 | label bytes)     -- label table
//	count x dim x f32                        -- packed embedding vectors
//
// Labels and embeddings are parallel sequences; entry i of one always
// corresponds to entry i of the other, and the codec verifies this on load.
const (
	galleryMagic   = "FGAL"
	galleryVersion = 1
)

var ErrCorruptGallery = errors.New("gallery blob is corrupt or truncated")

// Gallery is an immutable in-memory set of (embedding, label) pairs. Labels
// are student codes. A Gallery is never mutated after construction; training
// builds a fresh one and swaps the reference.
type Gallery struct {
	Labels     []string
	Embeddings [][]float32
}

// NewGallery validates the positional-correspondence invariant and wraps the
// given pairs.
func NewGallery(labels []string, embeddings [][]float32) (*Gallery, error) {
	if len(labels) != len(embeddings) {
		return nil, fmt.Errorf("label/embedding count mismatch: %d labels, %d embeddings", len(labels), len(embeddings))
	}
	for i := 1; i < len(embeddings); i++ {
		if len(embeddings[i]) != len(embeddings[0]) {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(embeddings[i]), len(embeddings[0]))
		}
	}
	return &Gallery{Labels: labels, Embeddings: embeddings}, nil
}

// Len returns the number of gallery entries.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Labels)
}

// IdentityCount returns the number of distinct labels.
func (g *Gallery) IdentityCount() int {
	seen := make(map[string]struct{}, len(g.Labels))
	for _, l := range g.Labels {
		seen[l] = struct{}{}
	}
	return len(seen)
}

// Match finds the gallery entry nearest to the query embedding and converts
// its distance to a confidence in [0,1]. Equal minimum distances resolve to
// the first entry in gallery order; deterministic for a fixed gallery but
// implementation-defined, not guaranteed-correct under label collisions.
func (g *Gallery) Match(embedding []float32) (string, float64) {
	if g.Len() == 0 || len(embedding) == 0 {
		return "", 0
	}

	bestIdx := 0
	bestDist := Distance(embedding, g.Embeddings[0])
	for i := 1; i < len(g.Embeddings); i++ {
		if d := Distance(embedding, g.Embeddings[i]); d < bestDist {
			bestDist = d
			bestIdx = i
		}
	}

	confidence := 1.0 - bestDist
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}
	return g.Labels[bestIdx], confidence
}

// Encode writes the gallery blob to w.
func (g *Gallery) Encode(w io.Writer) error {
	if len(g.Labels) != len(g.Embeddings) {
		return fmt.Errorf("refusing to encode misaligned gallery: %d labels, %d embeddings", len(g.Labels), len(g.Embeddings))
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(galleryMagic); err != nil {
		return err
	}

	dim := 0
	if len(g.Embeddings) > 0 {
		dim = len(g.Embeddings[0])
	}
	header := []uint32{galleryVersion, uint32(len(g.Labels)), uint32(dim)}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return err
		}
	}

	for _, label := range g.Labels {
		if len(label) > int(^uint16(0)) {
			return fmt.Errorf("label too long: %d bytes", len(label))
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(label))); err != nil {
			return err
		}
		if _, err := bw.WriteString(label); err != nil {
			return err
		}
	}

	for i, emb := range g.Embeddings {
		if len(emb) != dim {
			return fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(emb), dim)
		}
		if err := binary.Write(bw, binary.LittleEndian, emb); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// DecodeGallery reads a gallery blob from r, verifying magic, version and the
// label/embedding correspondence.
func DecodeGallery(r io.Reader) (*Gallery, error) {
	br := bufio.NewReader(r)

	magic := make([]byte, len(galleryMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, fmt.Errorf("%w: missing magic: %v", ErrCorruptGallery, err)
	}
	if string(magic) != galleryMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorruptGallery, magic)
	}

	var version, count, dim uint32
	for _, v := range []*uint32{&version, &count, &dim} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: short header: %v", ErrCorruptGallery, err)
		}
	}
	if version != galleryVersion {
		return nil, fmt.Errorf("unsupported gallery version %d", version)
	}

	labels := make([]string, 0, count)
	for i := uint32(0); i < count; i++ {
		var labelLen uint16
		if err := binary.Read(br, binary.LittleEndian, &labelLen); err != nil {
			return nil, fmt.Errorf("%w: short label table: %v", ErrCorruptGallery, err)
		}
		buf := make([]byte, labelLen)
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("%w: short label table: %v", ErrCorruptGallery, err)
		}
		labels = append(labels, string(buf))
	}

	embeddings := make([][]float32, 0, count)
	for i := uint32(0); i < count; i++ {
		emb := make([]float32, dim)
		if err := binary.Read(br, binary.LittleEndian, emb); err != nil {
			return nil, fmt.Errorf("%w: short vector data: %v", ErrCorruptGallery, err)
		}
		embeddings = append(embeddings, emb)
	}

	return NewGallery(labels, embeddings)
}

// SaveGalleryFile writes the gallery atomically: a temp file in the target
// directory, then rename, so readers only ever observe a complete blob.
func SaveGalleryFile(g *Gallery, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create gallery directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".gallery-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp gallery file: %w", err)
	}
	tmpName := tmp.Name()

	if err := g.Encode(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp gallery file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace gallery file: %w", err)
	}

	log.Printf("recognition: saved gallery with %d entries to %s", g.Len(), path)
	return nil
}

// LoadGalleryFile loads a persisted gallery blob.
func LoadGalleryFile(path string) (*Gallery, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	g, err := DecodeGallery(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode gallery %s: %w", path, err)
	}
	return g, nil
}
