package dumper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"vkdump/pkg/archive"
	"vkdump/pkg/checkpoint"
	"vkdump/pkg/config"
	errs "vkdump/pkg/errors"
	"vkdump/pkg/logger"
	"vkdump/pkg/vk"
)

// Stage identifies one phase of a dump run.
type Stage string

const (
	StageResolving   Stage = "resolving"
	StageProfile     Stage = "profile"
	StageWall        Stage = "wall"
	StagePhotos      Stage = "photos"
	StageDocuments   Stage = "documents"
	StageVideos      Stage = "videos"
	StageDiscussions Stage = "discussions"
	StagePages       Stage = "pages"
	StageMembers     Stage = "members"
	StageStats       Stage = "stats"
)

// stageOrder is the fixed run order. Later stages depend on nothing from
// earlier ones except the resolved group id, so a failed stage only
// costs its own content.
var stageOrder = []Stage{
	StageProfile,
	StageWall,
	StagePhotos,
	StageDocuments,
	StageVideos,
	StageDiscussions,
	StagePages,
	StageMembers,
	StageStats,
}

// Dumper drives a full community dump: resolve, then fetch every
// content section into the archive, checkpointing pagination as it
// goes. A second run over the same archive refetches listings but
// skips every record already on disk.
type Dumper struct {
	cfg    *config.Config
	client *vk.Client
	logger logger.Logger
	mapper *vk.AttachmentMapper

	// Per-run state, set up by Run.
	groupID     int64
	ownerID     int64 // negative groupID, VK convention for communities
	writer      *archive.Writer
	checkpoints *checkpoint.Manager
	cp          *checkpoint.Checkpoint
	pager       *vk.Pager
	likesPager  *vk.Pager
	summary     *Summary
}

// Options control per-run behavior beyond the configuration.
type Options struct {
	// ForceRestart discards the saved pagination checkpoint so every
	// listing is swept from the start. Archived records still skip.
	ForceRestart bool
}

// New creates a Dumper.
func New(cfg *config.Config, client *vk.Client, log logger.Logger) *Dumper {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Dumper{
		cfg:    cfg,
		client: client,
		logger: log,
		mapper: vk.NewAttachmentMapper(log),
	}
}

// Run archives the community named by identifier (numeric id or screen
// name). Resolution failure aborts the run; any other stage failure is
// reported in the summary and the remaining stages still execute.
func (d *Dumper) Run(ctx context.Context, identifier string, opts Options) (*Summary, error) {
	d.summary = newSummary()

	groupID, err := d.client.ResolveGroupID(ctx, identifier)
	if err != nil {
		return d.summary, fmt.Errorf("cannot resolve community %q: %w", identifier, err)
	}
	d.groupID = groupID
	d.ownerID = -groupID
	d.summary.GroupID = groupID

	root := filepath.Join(d.cfg.Output.BaseDirectory, archive.RootDirName(groupID))
	writer, err := archive.NewWriter(root, d.logger)
	if err != nil {
		return d.summary, err
	}
	d.writer = writer

	d.checkpoints = checkpoint.NewManager(root, d.logger)
	if opts.ForceRestart {
		if err := d.checkpoints.Delete(); err != nil {
			return d.summary, err
		}
	}
	cp, err := d.checkpoints.Load(groupID)
	if err != nil {
		return d.summary, err
	}
	d.cp = cp

	d.pager = vk.NewPager(d.client, d.cfg.Dump.PageSize, d.logger)
	// Likes lists are bare ids; the vendor allows up to 1000 per call.
	d.likesPager = vk.NewPager(d.client, 1000, d.logger)

	d.logger.InfoWithFields("starting dump", map[string]interface{}{
		"group_id": groupID,
		"archive":  root,
	})

	stages := map[Stage]func(context.Context) error{
		StageProfile:     d.fetchProfile,
		StageWall:        d.fetchWall,
		StagePhotos:      d.fetchPhotos,
		StageDocuments:   d.fetchDocuments,
		StageVideos:      d.fetchVideos,
		StageDiscussions: d.fetchDiscussions,
		StagePages:       d.fetchPages,
		StageMembers:     d.fetchMembers,
		StageStats:       d.fetchStats,
	}

	clean := true
	for _, st := range stageOrder {
		if err := ctx.Err(); err != nil {
			return d.summary, err
		}

		d.logger.InfoWithFields("stage starting", map[string]interface{}{
			"stage": string(st),
		})

		if err := stages[st](ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return d.summary, err
			}
			d.summary.warn(st, err.Error())
			if isScopedDenial(err) {
				// A vendor refusal for a whole section (disabled board,
				// hidden members, no stats access) is permanent; the
				// run is still as complete as this token allows.
				d.logger.WithError(err).WithField("stage", string(st)).Warn("section unavailable, skipping")
				continue
			}
			clean = false
			d.logger.WithError(err).WithField("stage", string(st)).Error("stage failed, continuing with next stage")
		}
	}

	if err := archive.WriteAttachmentReport(d.writer, d.mapper, d.logger); err != nil {
		clean = false
		d.summary.warn(StageWall, fmt.Sprintf("attachment report: %v", err))
	}

	if clean {
		// A finished run owes nothing to its cursors; the next run
		// should sweep listings afresh to pick up new content.
		if err := d.checkpoints.Delete(); err != nil {
			d.logger.WithError(err).Warn("failed to remove checkpoint after completed run")
		}
	}

	d.summary.Complete = clean
	d.summary.Duration = time.Since(d.summary.StartedAt)
	return d.summary, nil
}

// advance persists a pagination cursor for a scope. Called by the pager
// only after the page's records are committed to disk.
func (d *Dumper) advance(key string) func(vk.Cursor) error {
	return func(c vk.Cursor) error {
		return d.checkpoints.Advance(d.cp, key, c)
	}
}

// isScopedDenial reports whether an error is a vendor refusal confined
// to one entity (closed comments, private album) rather than a problem
// with the run itself.
func isScopedDenial(err error) bool {
	return errs.IsKind(err, errs.KindRejected)
}
