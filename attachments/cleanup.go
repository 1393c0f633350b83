package attachments

import (
	"errors"
	"strings"

	"github.com/cppla/deptcms/models"
	"github.com/cppla/deptcms/storage"
	"github.com/cppla/deptcms/utils"
)

// StoredPath returns the disk path of an uploaded attachment, or "" when the
// record points somewhere else.
func StoredPath(a models.Attachment) string {
	if a.FileURL == "" || absoluteURL.MatchString(a.FileURL) {
		return ""
	}
	rel := strings.TrimPrefix(strings.TrimLeft(a.FileURL, "/"), storagePrefix)
	return storage.Clean(rel)
}

// RemoveFile returns a callback that deletes the stored file of a purged
// attachment. Missing files are ignored.
func RemoveFile(disk storage.Disk) func(models.Attachment) {
	return func(a models.Attachment) {
		rel := StoredPath(a)
		if rel == "" || disk == nil {
			return
		}
		if err := disk.Delete(rel); err != nil && !errors.Is(err, storage.ErrFileNotFound) {
			utils.Sugar.Warnw("delete attachment file failed", "attachment_id", a.ID, "path", rel, "error", err)
		}
	}
}
