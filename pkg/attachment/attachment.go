// Package attachment implements the immutable (relative_path, bytes) file
// record exchanged between the orchestrator and its caller, and the path
// safety rules every such path must pass before it touches a filesystem.
package attachment

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// root is the fixed, well-known root every attachment path is validated
// against, mirroring the jailed home mount point used throughout spec §4.7.
const root = "/home"

// FileAttachment is an immutable (path, content) pair. Path is always
// relative and has already passed SafePath. Size is derived from len(Content).
type FileAttachment struct {
	Path    string
	Content []byte
}

// Record is the client-facing serialized form of a FileAttachment.
type Record struct {
	Path    string `json:"path"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// New validates path and wraps content directly, with no copy or encoding
// step. Use it when content already comes from trusted, decoded bytes (e.g.
// a harvested on-disk file).
func New(path string, content []byte) (*FileAttachment, error) {
	safe, err := SafePath(path)
	if err != nil {
		return nil, err
	}
	return &FileAttachment{Path: safe, Content: content}, nil
}

// FromRecord builds a FileAttachment from a client-supplied record: path is
// validated via SafePath and content is base64-decoded.
func FromRecord(rec Record) (*FileAttachment, error) {
	safe, err := SafePath(rec.Path)
	if err != nil {
		return nil, err
	}
	content, err := base64.StdEncoding.DecodeString(rec.Content)
	if err != nil {
		return nil, newParsingError("invalid base64 content for %q: %s", rec.Path, err)
	}
	return &FileAttachment{Path: safe, Content: content}, nil
}

// FromPath builds a FileAttachment by reading absPath from disk and naming
// it relPath, which the caller measures and which is validated by SafePath.
// The filename component must round-trip through UTF-8, matching spec
// §4.3's on-disk construction contract.
func FromPath(absPath, relPath string) (*FileAttachment, error) {
	if !utf8.ValidString(filepath.Base(relPath)) {
		return nil, newIllegalPathError("filename %q does not round-trip through UTF-8", relPath)
	}
	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	return New(relPath, content)
}

// Size is the number of content bytes.
func (f *FileAttachment) Size() int { return len(f.Content) }

// SaveTo writes the attachment under directory, creating any missing parent
// directories, and returns the resulting absolute path.
func (f *FileAttachment) SaveTo(directory string) (string, error) {
	dest := filepath.Join(directory, f.Path)
	if err := os.MkdirAll(filepath.Dir(dest), 0o777); err != nil {
		return "", err
	}
	if err := os.WriteFile(dest, f.Content, 0o666); err != nil {
		return "", err
	}
	return dest, nil
}

// ToRecord serializes the attachment into its client-facing form.
func (f *FileAttachment) ToRecord() Record {
	return Record{
		Path:    f.Path,
		Size:    f.Size(),
		Content: base64.StdEncoding.EncodeToString(f.Content),
	}
}

// SafePath rejects absolute paths and any path that would resolve outside
// root once joined to it, returning the cleaned relative path on success.
//
// This is the last line of defense and must never rely on an earlier,
// looser check performed by an HTTP-layer schema validator.
func SafePath(p string) (string, error) {
	if p == "" {
		return "", newIllegalPathError("path must not be empty")
	}
	if strings.ContainsRune(p, 0) {
		return "", newIllegalPathError("path %q contains a null byte", p)
	}
	if filepath.IsAbs(p) {
		return "", newIllegalPathError("path %q must not be absolute", p)
	}

	resolved := filepath.Join(root, p)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", newIllegalPathError("path %q escapes %s", p, root)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil {
		return "", newIllegalPathError("path %q could not be made relative to %s: %s", p, root, err)
	}
	return rel, nil
}
