// Package storage keeps uploaded product images on a filesystem and turns
// stored references into public URLs.
package storage

import (
	"context"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// ProductImagesDir is the directory product images are stored under
const ProductImagesDir = "products"

// Assets stores and removes uploaded files addressed by a relative reference
// such as "products/6f1c...png".
type Assets interface {
	Put(ctx context.Context, dir, filename string, content io.Reader) (string, error)
	Delete(ctx context.Context, ref string) error
	Exists(ref string) bool
	// URL resolves a stored reference to an absolute public URL
	URL(ref string) string
	HTTPFileSystem() http.FileSystem
}

// Local is an Assets implementation over an afero filesystem. In production
// the filesystem is a base-path view of the storage root; tests use memory.
type Local struct {
	fs      afero.Fs
	baseURL string
}

// NewLocal roots the store at dir on the OS filesystem. baseURL is the
// public address the stored files are served under, e.g.
// "http://localhost:8080/storage".
func NewLocal(dir, baseURL string) (*Local, error) {
	if dir == "" {
		return nil, errors.New("storage root is not configured")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(err, "resolving storage root")
	}
	if err := afero.NewOsFs().MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating storage root %q", abs)
	}
	return NewWithFs(afero.NewBasePathFs(afero.NewOsFs(), abs), baseURL), nil
}

// NewWithFs wraps an arbitrary afero filesystem
func NewWithFs(fs afero.Fs, baseURL string) *Local {
	return &Local{fs: fs, baseURL: strings.TrimRight(baseURL, "/")}
}

// clean validates a reference and returns its canonical form. References
// that would escape the storage root are rejected.
func clean(ref string) (string, error) {
	if ref == "" {
		return "", errors.New("empty asset reference")
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(ref, `\`, "/"))
	if cleaned == "/" || strings.Contains(ref, "..") {
		return "", errors.Newf("asset reference %q is outside the storage root", ref)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}

// fsPath roots a cleaned reference so every afero backend sees the same key
func fsPath(ref string) string {
	return "/" + ref
}

// Put writes content under dir with a fresh unique name that keeps the
// extension of filename, and returns the stored reference.
func (l *Local) Put(ctx context.Context, dir, filename string, content io.Reader) (ref string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext := strings.ToLower(path.Ext(filename))
	ref, err = clean(path.Join(dir, uuid.NewString()+ext))
	if err != nil {
		return "", err
	}

	target := fsPath(ref)
	if err = l.fs.MkdirAll(path.Dir(target), 0o755); err != nil {
		return "", errors.Wrapf(err, "creating directory for %q", ref)
	}

	tmp := target + ".tmp"
	defer func() {
		if err != nil {
			_ = l.fs.Remove(tmp)
		}
	}()

	if err = func() error {
		f, err := l.fs.Create(tmp)
		if err != nil {
			return errors.Wrapf(err, "creating temporary file %q", tmp)
		}
		defer f.Close()
		if _, err := io.Copy(f, content); err != nil {
			return errors.Wrapf(err, "writing to temporary file %q", tmp)
		}
		return errors.Wrapf(f.Sync(), "flushing temporary file %q", tmp)
	}(); err != nil {
		return "", err
	}

	if err = l.fs.Rename(tmp, target); err != nil {
		return "", errors.Wrapf(err, "moving temporary file to %q", ref)
	}
	return ref, nil
}

// Delete removes the referenced file. Deleting a missing file is not an error.
func (l *Local) Delete(ctx context.Context, ref string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleaned, err := clean(ref)
	if err != nil {
		return errors.Wrap(err, "deleting file")
	}
	if err := l.fs.Remove(fsPath(cleaned)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "deleting %q", cleaned)
	}
	return nil
}

func (l *Local) Exists(ref string) bool {
	cleaned, err := clean(ref)
	if err != nil {
		return false
	}
	ok, _ := afero.Exists(l.fs, fsPath(cleaned))
	return ok
}

// URL returns "" for an empty reference
func (l *Local) URL(ref string) string {
	if ref == "" {
		return ""
	}
	cleaned, err := clean(ref)
	if err != nil {
		return ""
	}
	return l.baseURL + "/" + cleaned
}

// HTTPFileSystem exposes stored files for serving. Directories and files
// still being written are reported as missing, so nothing can be listed.
func (l *Local) HTTPFileSystem() http.FileSystem {
	return filesOnly{afero.NewHttpFs(l.fs)}
}

type filesOnly struct {
	fs http.FileSystem
}

func (f filesOnly) Open(name string) (http.File, error) {
	if strings.HasSuffix(name, ".tmp") {
		return nil, os.ErrNotExist
	}
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
