package attachments

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/deptcms/storage"
	"github.com/cppla/deptcms/utils"
)

// Write answers the request for res. Serve results are streamed from disk
// as a download; a file that vanished since resolution becomes a 404.
func Write(ctx *gin.Context, disk storage.Disk, res Result) {
	switch res.Outcome {
	case Redirect:
		ctx.Redirect(http.StatusFound, res.Location)
	case Serve:
		f, err := disk.Open(res.Path)
		if err != nil {
			if errors.Is(err, storage.ErrFileNotFound) || errors.Is(err, storage.ErrInvalidPath) {
				utils.Error(ctx, http.StatusNotFound, 40460, "attachment file not found")
				return
			}
			utils.Sugar.Errorw("open attachment failed", "path", res.Path, "error", err)
			utils.Error(ctx, http.StatusInternalServerError, 50060, "failed to read attachment")
			return
		}
		defer f.Close()

		disposition := mime.FormatMediaType("attachment", map[string]string{"filename": res.Filename})
		if disposition == "" {
			disposition = "attachment"
		}
		ctx.Header("Content-Disposition", disposition)
		if res.MimeType != "" {
			ctx.Header("Content-Type", res.MimeType)
		}
		ctx.Header("X-Content-Type-Options", "nosniff")
		http.ServeContent(ctx.Writer, ctx.Request, res.Filename, f.ModTime(), f)
	default:
		utils.Error(ctx, http.StatusNotFound, 40461, "attachment not found")
	}
}
