// Package manifest loads Kubernetes objects from YAML manifest files.
//
// Files are decoded into unstructured objects so that any resource kind can
// be handled without compiled-in type knowledge. Multi-document files are
// supported; empty documents are skipped. Every document must carry a kind,
// otherwise decoding fails with ErrMissingKind.
package manifest
