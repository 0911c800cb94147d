package project

import (
	"archive/zip"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/options"
)

// Build writes the project archive to destination.
//
// Each job's Prepare hook runs right before its job file is rendered. Job
// files are added first, then auxiliary files. On failure the partially
// written archive is left at destination.
func (p *Project) Build(destination string) (err error) {
	out, err := os.Create(destination)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	defer func() {
		if cerr := zw.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("finalize archive: %w", cerr)
		}
	}()

	for _, name := range p.JobNames() {
		job := p.jobs[name]
		if err := job.Prepare(p, name); err != nil {
			return fmt.Errorf("prepare job %q: %w", name, err)
		}
		if err := writeJobFile(zw, name, job); err != nil {
			return err
		}
	}

	paths := make([]string, 0, len(p.files))
	for path := range p.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	for _, path := range paths {
		if err := addFile(zw, path, ArchivePath(path, p.files[path])); err != nil {
			return err
		}
	}

	p.logger.Info("archive built", "destination", destination, "jobs", len(p.jobs), "files", len(p.files))
	return nil
}

// BuildTemp builds the archive into a new file under dir (os.TempDir when
// empty). cleanup removes it and is safe to call more than once.
func (p *Project) BuildTemp(dir string) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp(dir, "azkit-*.zip")
	if err != nil {
		return "", func() {}, fmt.Errorf("create temp archive: %w", err)
	}
	path = f.Name()
	cleanup = func() { _ = os.Remove(path) }
	if err := f.Close(); err != nil {
		cleanup()
		return "", func() {}, fmt.Errorf("close temp archive: %w", err)
	}
	if err := p.Build(path); err != nil {
		cleanup()
		return "", func() {}, err
	}
	return path, cleanup, nil
}

// writeJobFile renders job into a temporary file and copies it into the
// archive as <name>.job. The temporary file is removed on every path.
func writeJobFile(zw *zip.Writer, name string, job Job) error {
	return withTempFile("azkit-*.job", func(tmp *os.File) error {
		if err := options.Render(tmp, job.Options()); err != nil {
			return fmt.Errorf("render job %q: %w", name, err)
		}
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind job file %q: %w", name, err)
		}
		w, err := zw.Create(name + ".job")
		if err != nil {
			return fmt.Errorf("add job %q to archive: %w", name, err)
		}
		if _, err := io.Copy(w, tmp); err != nil {
			return fmt.Errorf("write job %q to archive: %w", name, err)
		}
		return nil
	})
}

func withTempFile(pattern string, fn func(f *os.File) error) (err error) {
	tmp, err := os.CreateTemp("", pattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if rerr := os.Remove(tmp.Name()); rerr != nil && !os.IsNotExist(rerr) && err == nil {
			err = fmt.Errorf("remove temp file: %w", rerr)
		}
	}()
	return fn(tmp)
}

func addFile(zw *zip.Writer, path, archivePath string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: file missing: %q", errdefs.ErrMissingResource, path)
	}
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("archive header for %q: %w", path, err)
	}
	header.Name = filepath.ToSlash(archivePath)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("add %q to archive: %w", path, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write %q to archive: %w", path, err)
	}
	return nil
}

// Digest returns the hex BLAKE3 digest of the file at path.
func Digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
