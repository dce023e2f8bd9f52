// Package asset turns binary image/video selections into strings usable as block content.
package asset

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrEmpty    = errors.New("asset is empty")
	ErrTooLarge = errors.New("asset is too large")
	ErrType     = errors.New("asset type is not allowed")
)

// DefaultAllowedTypes are the media types accepted by default.
var DefaultAllowedTypes = []string{"image/", "video/"}

type (
	Asset struct {
		FileName string
		Data     []byte
	}

	// Uploader stores an asset and returns a content-addressable string (URL or embedded data).
	Uploader interface {
		Upload(ctx context.Context, a Asset) (Stored, error)
	}

	Stored struct {
		Content  string // usable directly as block content
		FileName string
		FileType string
	}

	// Validator checks size and type before anything gets stored.
	Validator struct {
		MaxSize      int64
		AllowedTypes []string // media types or prefixes ending with "/"
	}
)

// ContentType sniffs the media type of the asset.
func (a Asset) ContentType() string {
	ct := http.DetectContentType(a.Data)
	if ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(a.FileName))); byExt != "" {
			ct = byExt
		}
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}

// Validate returns the sniffed content type, or an error if the asset should be refused.
func (v Validator) Validate(a Asset) (string, error) {
	if len(a.Data) == 0 {
		return "", ErrEmpty
	}
	if v.MaxSize > 0 && int64(len(a.Data)) > v.MaxSize {
		return "", errors.Wrapf(ErrTooLarge, "%d bytes (max %d)", len(a.Data), v.MaxSize)
	}
	ct := a.ContentType()
	allowed := v.AllowedTypes
	if allowed == nil {
		allowed = DefaultAllowedTypes
	}
	for _, t := range allowed {
		if ct == t || (strings.HasSuffix(t, "/") && strings.HasPrefix(ct, t)) {
			return ct, nil
		}
	}
	return "", errors.Wrapf(ErrType, "%q", ct)
}

// DataURIUploader embeds the asset in a data URI.
type DataURIUploader struct {
	Validator Validator
}

var _ Uploader = (*DataURIUploader)(nil)

func (u DataURIUploader) Upload(_ context.Context, a Asset) (Stored, error) {
	ct, err := u.Validator.Validate(a)
	if err != nil {
		return Stored{}, err
	}
	return Stored{
		Content:  "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(a.Data),
		FileName: a.FileName,
		FileType: ct,
	}, nil
}

// DirUploader writes assets to Dir under their sha256 digest and returns BaseURL/<digest><ext>.
// Uploading the same bytes twice yields the same URL.
type DirUploader struct {
	Dir       string
	BaseURL   string
	Validator Validator
}

var _ Uploader = (*DirUploader)(nil)

func NewDirUploader(dir, baseURL string, v Validator) *DirUploader {
	return &DirUploader{Dir: dir, BaseURL: baseURL, Validator: v}
}

func (u *DirUploader) Upload(ctx context.Context, a Asset) (Stored, error) {
	ct, err := u.Validator.Validate(a)
	if err != nil {
		return Stored{}, err
	}
	if err = ctx.Err(); err != nil {
		return Stored{}, err
	}

	sum := sha256.Sum256(a.Data)
	name := hex.EncodeToString(sum[:]) + extension(a.FileName, ct)
	if err = os.MkdirAll(u.Dir, 0o755); err != nil {
		return Stored{}, errors.Wrap(err, "creating asset dir")
	}
	fp := filepath.Join(u.Dir, name)
	if _, err = os.Stat(fp); os.IsNotExist(err) {
		tmp := fp + ".tmp"
		if err = os.WriteFile(tmp, a.Data, 0o644); err != nil {
			return Stored{}, errors.Wrap(err, "writing asset")
		}
		if err = os.Rename(tmp, fp); err != nil {
			return Stored{}, errors.Wrap(err, "writing asset")
		}
	} else if err != nil {
		return Stored{}, errors.Wrap(err, "checking asset")
	}

	base := strings.TrimSuffix(u.BaseURL, "/")
	return Stored{Content: base + "/" + path.Clean(name), FileName: a.FileName, FileType: ct}, nil
}

func extension(fileName, contentType string) string {
	if ext := strings.ToLower(filepath.Ext(fileName)); ext != "" {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}
