package logging

import (
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3
)

// RotateConfig controls FileRotator.
type RotateConfig struct {
	Path      string
	MaxSizeMB int64

	// MaxBackups bounds the numbered backups; 0 means the default of 3.
	MaxBackups int

	// MaxAge removes backups whose last write is older than this. Zero
	// keeps them until MaxBackups pushes them out.
	MaxAge time.Duration

	// Compress gzips each backup as it is created.
	Compress bool
}

// FileRotator is an io.Writer over a log file that keeps numbered backups
// next to it, logrotate style: <path>.1 is the newest, <path>.N the oldest,
// each optionally gzipped. Backups past MaxAge are also pruned when the
// rotator opens, so text logged with log_content does not outlive the
// retention window just because the session was idle.
type FileRotator struct {
	cfg  RotateConfig
	mu   sync.Mutex
	file *os.File
	size int64
}

// NewFileRotator opens (or creates) the log file and prunes expired backups.
func NewFileRotator(cfg RotateConfig) (*FileRotator, error) {
	if cfg.Path == "" {
		return nil, errors.New("log file path is empty")
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = defaultMaxSizeMB
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	r := &FileRotator{cfg: cfg}
	if err := r.open(); err != nil {
		return nil, err
	}
	r.prune(time.Now())
	return r, nil
}

func (r *FileRotator) open() error {
	f, err := os.OpenFile(r.cfg.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	r.file = f
	r.size = info.Size()
	return nil
}

// Write appends p, rotating first if p would push the file past MaxSizeMB.
// A record larger than the limit still lands whole in a fresh file.
func (r *FileRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		if err := r.open(); err != nil {
			return 0, err
		}
	}
	if r.size > 0 && r.size+int64(len(p)) > r.cfg.MaxSizeMB<<20 {
		if err := r.rotate(); err != nil {
			return 0, fmt.Errorf("rotate log: %w", err)
		}
	}

	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *FileRotator) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	r.file = nil

	if err := r.shift(); err != nil {
		return err
	}
	if err := r.open(); err != nil {
		return err
	}
	r.prune(time.Now())
	return nil
}

// shift moves every backup up one number, dropping the one that falls off
// the end, and turns the live file into backup 1.
func (r *FileRotator) shift() error {
	for n := r.cfg.MaxBackups; n >= 1; n-- {
		src := r.backup(n)
		if src == "" {
			continue
		}
		if n == r.cfg.MaxBackups {
			os.Remove(src)
			continue
		}
		dst := r.backupName(n+1, strings.HasSuffix(src, ".gz"))
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("shift log backup: %w", err)
		}
	}

	first := r.backupName(1, false)
	if err := os.Rename(r.cfg.Path, first); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("rename log file: %w", err)
	}
	if r.cfg.Compress {
		// On failure the plain backup is kept
		gzipInPlace(first)
	}
	return nil
}

func (r *FileRotator) backupName(n int, gz bool) string {
	name := fmt.Sprintf("%s.%d", r.cfg.Path, n)
	if gz {
		name += ".gz"
	}
	return name
}

// backup returns the existing file for backup n, compressed or not.
func (r *FileRotator) backup(n int) string {
	for _, gz := range []bool{true, false} {
		name := r.backupName(n, gz)
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Backups lists the rotated files, newest first.
func (r *FileRotator) Backups() []string {
	var out []string
	for n := 1; n <= r.cfg.MaxBackups; n++ {
		if name := r.backup(n); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func (r *FileRotator) prune(now time.Time) {
	if r.cfg.MaxAge <= 0 {
		return
	}
	for _, name := range r.Backups() {
		info, err := os.Stat(name)
		if err == nil && now.Sub(info.ModTime()) > r.cfg.MaxAge {
			os.Remove(name)
		}
	}
}

// gzipInPlace replaces path with path.gz, keeping its modification time so
// age pruning still sees when the entries were written.
func gzipInPlace(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	gzPath := path + ".gz"
	out, err := os.OpenFile(gzPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(out)
	gz.Name = filepath.Base(path)
	gz.ModTime = info.ModTime()
	_, err = io.Copy(gz, in)
	if cerr := gz.Close(); err == nil {
		err = cerr
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(gzPath)
		return err
	}

	os.Chtimes(gzPath, info.ModTime(), info.ModTime())
	return os.Remove(path)
}

// Close closes the underlying file.
func (r *FileRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Sync flushes the file to disk.
func (r *FileRotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}
