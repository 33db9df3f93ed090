// Package storage owns the on-disk layout for uploaded plan images, generated
// quote PDFs, and signed PDFs, and maps between disk paths and the public URL
// prefixes the router mounts.
//
// Layout under Root:
//
//	uploads/   images attached to demandes by employees   (/uploads/…)
//	pdfs/      generated quotes, one per demande          (/pdfs/<id>.pdf)
//	pdfsigne/  signed PDFs uploaded back                  (/pdfsigne/…)
//	planjpg/   plan images sent through the AI assistant  (/planjpg/…)
//	asset/     static assets such as the quote logo       (/asset/…)
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/zalagh/plancher-backend/internal/config"
)

// Public URL prefixes, also used as mount points by the router.
const (
	PrefixUploads = "/uploads/"
	PrefixPDFs    = "/pdfs/"
	PrefixSigned  = "/pdfsigne/"
	PrefixPlans   = "/planjpg/"
	PrefixAssets  = "/asset/"
)

// Signed PDF name suffixes, one per uploader role.
const (
	SuffixAdminUpload    = "uploaded"
	SuffixEmployeeUpload = "signed-by-emp"
)

// ErrNotImage is returned when an upload does not carry a jpg/jpeg/png name.
var ErrNotImage = errors.New("only jpg, jpeg or png images are accepted")

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_.-]`)

// Layout resolves every file location from a single root directory.
type Layout struct {
	Root     string
	LogoFile string

	now func() time.Time
}

// New returns a Layout for cfg. An empty root means the working directory.
func New(cfg config.StorageConfig) *Layout {
	root := cfg.Root
	if root == "" {
		root = "."
	}
	return &Layout{Root: root, LogoFile: cfg.LogoFile, now: time.Now}
}

func (l *Layout) UploadsDir() string { return filepath.Join(l.Root, "uploads") }
func (l *Layout) PDFsDir() string    { return filepath.Join(l.Root, "pdfs") }
func (l *Layout) SignedDir() string  { return filepath.Join(l.Root, "pdfsigne") }
func (l *Layout) PlansDir() string   { return filepath.Join(l.Root, "planjpg") }
func (l *Layout) AssetsDir() string  { return filepath.Join(l.Root, "asset") }

// Ensure creates every directory of the layout.
func (l *Layout) Ensure() error {
	for _, dir := range []string{l.UploadsDir(), l.PDFsDir(), l.SignedDir(), l.PlansDir(), l.AssetsDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// LogoPath is the disk path of the quote header logo, or "" when unset.
func (l *Layout) LogoPath() string {
	if l.LogoFile == "" {
		return ""
	}
	return filepath.Join(l.AssetsDir(), filepath.Base(l.LogoFile))
}

// SanitizeName replaces every character outside [a-zA-Z0-9_.-] with '_'.
func SanitizeName(name string) string {
	return unsafeChars.ReplaceAllString(filepath.Base(name), "_")
}

// IsAllowedImage reports whether name has a jpg, jpeg, or png extension.
func IsAllowedImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// TimestampedName returns "<unix-ms>_<sanitized original>".
func (l *Layout) TimestampedName(original string) string {
	ms := strconv.FormatInt(l.now().UnixMilli(), 10)
	safe := SanitizeName(original)
	if safe == "" || safe == "." || safe == "_" {
		return ms + ".jpg"
	}
	return ms + "_" + safe
}

// SaveUpload stores an employee-attached plan under uploads/ and returns its
// public path.
func (l *Layout) SaveUpload(r io.Reader, original string) (string, error) {
	return l.saveImage(r, original, l.UploadsDir(), PrefixUploads)
}

// SavePlan stores an assistant plan image under planjpg/ and returns its
// public path.
func (l *Layout) SavePlan(r io.Reader, original string) (string, error) {
	return l.saveImage(r, original, l.PlansDir(), PrefixPlans)
}

func (l *Layout) saveImage(r io.Reader, original, dir, prefix string) (string, error) {
	if !IsAllowedImage(original) {
		return "", ErrNotImage
	}
	name := l.TimestampedName(original)
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return prefix + name, nil
}

// QuoteFile returns the disk and public paths of demande id's quote.
func (l *Layout) QuoteFile(id uint) (disk, public string) {
	name := strconv.FormatUint(uint64(id), 10) + ".pdf"
	return filepath.Join(l.PDFsDir(), name), PrefixPDFs + name
}

// SignedFile returns the disk and public paths of a signed upload for
// demande id, tagged with the uploader suffix.
func (l *Layout) SignedFile(id uint, suffix string) (disk, public string) {
	name := fmt.Sprintf("%d-%s.pdf", id, suffix)
	return filepath.Join(l.SignedDir(), name), PrefixSigned + name
}

// ResolvePublic maps a stored plan reference to a disk path. Only /planjpg/
// and /uploads/ references resolve; bare names are looked up in uploads/.
// Directory components are discarded so a reference cannot escape its folder.
func (l *Layout) ResolvePublic(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	var dir string
	switch {
	case strings.HasPrefix(ref, PrefixPlans), strings.HasPrefix(ref, strings.TrimPrefix(PrefixPlans, "/")):
		dir = l.PlansDir()
	case strings.HasPrefix(ref, PrefixUploads), strings.HasPrefix(ref, strings.TrimPrefix(PrefixUploads, "/")):
		dir = l.UploadsDir()
	case !strings.Contains(ref, "/"):
		dir = l.UploadsDir()
	default:
		return "", false
	}
	base := filepath.Base(ref)
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", false
	}
	return filepath.Join(dir, base), true
}

// WriteFile writes data to path atomically by renaming a temp file into place.
func WriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
