package manifest

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/giantswarm/kubeharness/internal/sentinel"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	yamlutil "k8s.io/apimachinery/pkg/util/yaml"
)

// ErrMissingKind is returned when a YAML document lacks a 'kind' field.
const ErrMissingKind = sentinel.Error("missing kind in document")

// ErrNoYAMLFiles is returned by LoadDir when the directory contains no YAML
// files (or none matching the requested file names).
const ErrNoYAMLFiles = sentinel.Error("no YAML files found")

// ErrTooManyYAMLFiles is returned when a directory contains more files than
// maxYAMLFiles.
const ErrTooManyYAMLFiles = sentinel.Error("too many YAML files in directory")

const (
	// yamlDecoderBufferSize is the initial buffer size in bytes for the
	// YAML/JSON decoder.
	yamlDecoderBufferSize = 4096

	// maxYAMLFiles is the upper bound on the number of YAML files that
	// LoadDir will process, guarding against a misconfigured directory
	// containing an unreasonable number of files.
	maxYAMLFiles = 1000
)

// LoadFile decodes all documents in a single YAML manifest file into
// unstructured objects, in document order.
func LoadFile(path string) ([]*unstructured.Unstructured, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only file

	objs, err := decodeAll(f)
	if err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return objs, nil
}

// LoadDir loads all YAML files in a directory (recursively, sorted by path
// for determinism) and decodes their documents into unstructured objects.
// If names is non-empty, only files whose base name matches one of names
// (with or without its extension) are loaded.
func LoadDir(dirPath string, names ...string) ([]*unstructured.Unstructured, error) {
	files, err := walkYAMLFiles(dirPath)
	if err != nil {
		return nil, err
	}
	if len(files) > maxYAMLFiles {
		return nil, fmt.Errorf("%w: found %d files (max %d)", ErrTooManyYAMLFiles, len(files), maxYAMLFiles)
	}

	if len(names) > 0 {
		files = slices.DeleteFunc(files, func(path string) bool {
			base := filepath.Base(path)
			stem := strings.TrimSuffix(base, filepath.Ext(base))
			return !slices.Contains(names, base) && !slices.Contains(names, stem)
		})
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoYAMLFiles, dirPath)
	}

	var objs []*unstructured.Unstructured
	for _, path := range files {
		fileObjs, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		objs = append(objs, fileObjs...)
	}
	return objs, nil
}

// decodeAll reads every YAML/JSON document from r, skipping empty documents.
func decodeAll(r io.Reader) ([]*unstructured.Unstructured, error) {
	decoder := yamlutil.NewYAMLOrJSONDecoder(bufio.NewReader(r), yamlDecoderBufferSize)

	var objs []*unstructured.Unstructured
	for {
		var raw map[string]any
		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			return objs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode document %d: %w", len(objs)+1, err)
		}
		if len(raw) == 0 {
			// Empty document (e.g. a trailing "---").
			continue
		}

		obj := &unstructured.Unstructured{Object: raw}
		if obj.GetKind() == "" {
			return nil, fmt.Errorf("document %d: %w", len(objs)+1, ErrMissingKind)
		}
		objs = append(objs, obj)
	}
}

// walkYAMLFiles returns all YAML files in a directory, sorted for determinism.
func walkYAMLFiles(dirPath string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory %s: %w", dirPath, err)
	}
	slices.Sort(files)
	return files, nil
}
