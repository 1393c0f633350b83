// Package attachments decides how a stored attachment is answered: a
// redirect, a file served from the public disk, or not found.
package attachments

import (
	"path"
	"regexp"
	"strings"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/storage"
)

// Outcome is the kind of response a resolution produced.
type Outcome int

const (
	NotFound Outcome = iota
	Redirect
	Serve
)

func (o Outcome) String() string {
	switch o {
	case Redirect:
		return "redirect"
	case Serve:
		return "serve"
	}
	return "not_found"
}

// Result is the resolved response. Location is set for Redirect; Path,
// Filename and MimeType for Serve.
type Result struct {
	Outcome  Outcome
	Location string
	Path     string
	Filename string
	MimeType string
}

const (
	storagePrefix = "storage/"
	legacyPrefix  = "legacy/"
)

var absoluteURL = regexp.MustCompile(`(?i)^https?://`)

// Resolver maps attachment records to responses. It never mutates the record.
type Resolver struct {
	Disk storage.Disk
	// GuessFallback keeps the final redirect to the raw file_url for paths
	// that are not on the disk. When false those paths are not found.
	GuessFallback bool
}

// New returns a resolver with the guess fallback enabled.
func New(disk storage.Disk) *Resolver {
	return &Resolver{Disk: disk, GuessFallback: true}
}

// Show prefers the external link and otherwise downloads.
func (r *Resolver) Show(a *models.Attachment) Result {
	if a.ExternalURL != "" {
		return Result{Outcome: Redirect, Location: a.ExternalURL}
	}
	return r.Download(a)
}

// Download resolves the stored file. Order: absolute URL, public disk path,
// legacy path, raw path guess.
func (r *Resolver) Download(a *models.Attachment) Result {
	raw := a.FileURL
	if absoluteURL.MatchString(raw) {
		return Result{Outcome: Redirect, Location: raw}
	}

	rel := strings.TrimLeft(raw, "/")
	if rel == "" {
		if a.ExternalURL != "" {
			return Result{Outcome: Redirect, Location: a.ExternalURL}
		}
		return Result{Outcome: NotFound}
	}
	rel = strings.TrimPrefix(rel, storagePrefix)

	if r.Disk != nil {
		if r.Disk.Exists(rel) {
			return r.serve(a, rel)
		}
		if strings.HasPrefix(rel, legacyPrefix) {
			legacy := legacyPrefix + rel
			if r.Disk.Exists(legacy) {
				return r.serve(a, legacy)
			}
		}
	}

	if !r.GuessFallback {
		return Result{Outcome: NotFound}
	}
	// Leading slashes are collapsed so the guess can never become a
	// protocol relative URL pointing at another host.
	return Result{Outcome: Redirect, Location: "/" + strings.TrimLeft(raw, "/")}
}

func (r *Resolver) serve(a *models.Attachment, rel string) Result {
	name := strings.TrimSpace(a.Title)
	if name == "" {
		name = path.Base(rel)
	}
	return Result{Outcome: Serve, Path: rel, Filename: name, MimeType: a.MimeType}
}
