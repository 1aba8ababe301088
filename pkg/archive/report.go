package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"vkdump/pkg/logger"
	"vkdump/pkg/vk"
)

// WriteAttachmentReport regenerates attachments.tsv from the archived
// wall and board records. Video, audio and link attachments have no file
// to store, so the archive keeps their titles and vendor URLs in one
// browsable report. Rebuilding from the tree keeps the report complete
// across resumed runs.
func WriteAttachmentReport(w *Writer, mapper *vk.AttachmentMapper, log logger.Logger) error {
	if log == nil {
		log = logger.GetLogger()
	}

	var refs []vk.AttachmentRef

	collect := func(pattern, parentKind string) error {
		paths, err := filepath.Glob(filepath.Join(w.Root(), filepath.FromSlash(pattern)))
		if err != nil {
			return err
		}
		sort.Strings(paths)
		for _, path := range paths {
			data, err := os.ReadFile(path)
			if err != nil {
				log.WithError(err).WithField("path", path).Warn("failed to read archived record")
				continue
			}
			var record struct {
				ID     int64           `json:"id"`
				Attach []vk.Attachment `json:"attachments"`
			}
			if err := json.Unmarshal(data, &record); err != nil {
				log.WithError(err).WithField("path", path).Warn("failed to parse archived record")
				continue
			}
			for _, ref := range mapper.Map(parentKind, record.ID, record.Attach) {
				switch ref.Kind {
				case vk.RefVideo, vk.RefAudio, vk.RefLink:
					refs = append(refs, ref)
				}
			}
		}
		return nil
	}

	if err := collect("wall/post_*.json", "post"); err != nil {
		return err
	}
	if err := collect("wall/*/comments/comment_*.json", "comment"); err != nil {
		return err
	}
	if err := collect("board/*/comments/comment_*.json", "board_comment"); err != nil {
		return err
	}

	var b strings.Builder
	for _, ref := range refs {
		fmt.Fprintf(&b, "%s\t%d\t%s\t%s\t%s\n", ref.ParentKind, ref.ParentID, ref.Kind, ref.Title, ref.URL)
	}

	if err := w.WriteRaw(AttachmentReportPath(), []byte(b.String())); err != nil {
		return err
	}

	log.InfoWithFields("attachment report written", map[string]interface{}{
		"entries": len(refs),
	})
	return nil
}
