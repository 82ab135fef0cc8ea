// Package library discovers recorded clips in the recordings directory.
//
// The directory listing is the only source of truth for which recordings
// exist: there is no manifest. A clip is any regular file whose name ends
// with the configured extension.
package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/afero"
)

// ClipPrefix is the file name prefix of every recording made by the recorder.
const ClipPrefix = "audio_"

var (
	ErrInvalidName  = errors.New("invalid clip name")
	ErrClipNotFound = errors.New("clip not found")
)

// Clip describes one recorded audio file.
type Clip struct {
	Name     string    `json:"name" yaml:"name"`
	Path     string    `json:"path" yaml:"path"`
	Duration float64   `json:"duration" yaml:"duration"` // seconds, 0 when unknown
	Size     int64     `json:"size" yaml:"size"`
	ModTime  time.Time `json:"mod_time" yaml:"mod_time"`
}

// Entry is one raw directory entry as reported by a Lister.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// Lister enumerates the entries of a directory.
type Lister interface {
	List(ctx context.Context, dir string) ([]Entry, error)
}

// Prober reports the duration of an audio file.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FSLister lists directories of an afero filesystem.
type FSLister struct {
	Fs afero.Fs
}

// NewOSLister returns a lister over the host filesystem.
func NewOSLister() *FSLister {
	return &FSLister{Fs: afero.NewOsFs()}
}

// List returns the entries of dir in the order the filesystem reports them.
func (l *FSLister) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := afero.ReadDir(l.Fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:    info.Name(),
			Path:    filepath.Join(dir, info.Name()),
			Size:    info.Size(),
			ModTime: info.ModTime(),
			IsDir:   info.IsDir(),
		})
	}
	return entries, nil
}

// FilterClips keeps the non-directory entries whose name ends with ext,
// preserving the lister's order.
func FilterClips(entries []Entry, ext string) []Clip {
	clips := make([]Clip, 0, len(entries))
	for _, e := range entries {
		if e.IsDir || !strings.HasSuffix(e.Name, ext) {
			continue
		}
		clips = append(clips, Clip{
			Name:    e.Name,
			Path:    e.Path,
			Size:    e.Size,
			ModTime: e.ModTime,
		})
	}
	return clips
}

// Library binds a Lister to the recordings directory.
type Library struct {
	fs           afero.Fs
	lister       Lister
	prober       Prober
	dir          string
	ext          string
	probeWorkers int
}

// Options configures a Library.
type Options struct {
	Directory    string
	Extension    string
	Prober       Prober // optional
	ProbeWorkers int
}

// New creates a library over fs. If lister is nil, fs is listed directly.
func New(fs afero.Fs, lister Lister, opts Options) *Library {
	if lister == nil {
		lister = &FSLister{Fs: fs}
	}
	if opts.ProbeWorkers < 1 {
		opts.ProbeWorkers = 1
	}
	return &Library{
		fs:           fs,
		lister:       lister,
		prober:       opts.Prober,
		dir:          opts.Directory,
		ext:          opts.Extension,
		probeWorkers: opts.ProbeWorkers,
	}
}

func (l *Library) Directory() string { return l.dir }
func (l *Library) Extension() string { return l.ext }

// EnsureDir creates the recordings directory if needed.
func (l *Library) EnsureDir() error {
	if err := l.fs.MkdirAll(l.dir, 0755); err != nil {
		return fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return nil
}

// Refresh lists the recordings directory and returns its clips in lister
// order. Durations are filled in when a Prober is configured; a clip whose
// duration cannot be probed keeps Duration 0.
func (l *Library) Refresh(ctx context.Context) ([]Clip, error) {
	entries, err := l.lister.List(ctx, l.dir)
	if err != nil {
		return nil, err
	}

	clips := FilterClips(entries, l.ext)
	if l.prober == nil || len(clips) == 0 {
		return clips, nil
	}

	mapper := iter.Mapper[Clip, Clip]{MaxGoroutines: l.probeWorkers}
	return mapper.Map(clips, func(c *Clip) Clip {
		clip := *c
		d, err := l.prober.Duration(ctx, clip.Path)
		if err != nil {
			slog.Debug("Failed to probe clip duration", "clip", clip.Name, "error", err)
			return clip
		}
		clip.Duration = d.Seconds()
		return clip
	}), nil
}

// NewClipPath returns the destination path for a recording started at now.
func (l *Library) NewClipPath(now time.Time) string {
	return filepath.Join(l.dir, fmt.Sprintf("%s%d%s", ClipPrefix, now.UnixMilli(), l.ext))
}

// Resolve maps a clip name to its path in the recordings directory.
func (l *Library) Resolve(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if !strings.HasSuffix(name, l.ext) {
		return "", fmt.Errorf("%w: %q does not end with %s", ErrInvalidName, name, l.ext)
	}

	path := filepath.Join(l.dir, name)
	info, err := l.fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrClipNotFound, name)
		}
		return "", fmt.Errorf("failed to stat clip %s: %w", name, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrInvalidName, name)
	}
	return path, nil
}

// Open opens a clip for reading, for streaming surfaces.
func (l *Library) Open(name string) (afero.File, os.FileInfo, error) {
	path, err := l.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	f, err := l.fs.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open clip %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("failed to stat clip %s: %w", name, err)
	}
	return f, info, nil
}
