package dumper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"vkdump/pkg/archive"
	"vkdump/pkg/checkpoint"
	errs "vkdump/pkg/errors"
	"vkdump/pkg/vk"
)

// embedField decodes a raw vendor record into a map and adds one field.
// UseNumber keeps large numeric ids intact through the round trip.
func embedField(raw json.RawMessage, key string, value interface{}) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	m := make(map[string]interface{})
	if err := dec.Decode(&m); err != nil {
		return nil, errs.New(errs.KindParsing, 0, "failed to decode record for enrichment: %v", err)
	}
	m[key] = value
	return m, nil
}

// fetchProfile archives the community header, refreshed every run since
// counters and description drift.
func (d *Dumper) fetchProfile(ctx context.Context) error {
	group, rawGroup, err := d.client.FetchGroup(ctx, d.groupID)
	if err != nil {
		return err
	}
	d.summary.GroupName = group.Name

	var payload interface{} = rawGroup
	if banner := vk.BannerURL(group); banner != "" {
		payload, err = embedField(rawGroup, "banner_url", banner)
		if err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return errs.New(errs.KindIO, 0, "failed to encode community header: %v", err)
	}
	if err := d.writer.WriteRaw(archive.CommunityPath(), data); err != nil {
		return err
	}
	d.summary.fetched(StageProfile)
	return nil
}

// fetchWall sweeps the wall and archives every post with its full liker
// list embedded, then its comment thread.
func (d *Dumper) fetchWall(ctx context.Context) error {
	key := checkpoint.ScopeKey("wall", 0)

	_, err := d.pager.Each(ctx, vk.MethodWallGet, vk.OwnerParams(d.ownerID), d.cp.Cursor(key), func(item json.RawMessage) error {
		var post vk.Post
		if err := json.Unmarshal(item, &post); err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode wall post: %v", err)
		}

		if err := d.archivePost(ctx, item, &post); err != nil {
			return err
		}

		if post.Comments.Count > 0 {
			if err := d.fetchPostComments(ctx, post.ID); err != nil {
				if isScopedDenial(err) {
					// Closed comments on one post do not stop the sweep.
					d.summary.warn(StageWall, fmt.Sprintf("comments of post %d unavailable", post.ID))
					return nil
				}
				return err
			}
		}
		return nil
	}, d.advance(key))
	return err
}

func (d *Dumper) archivePost(ctx context.Context, raw json.RawMessage, post *vk.Post) error {
	path := archive.PostPath(post.ID)
	if d.writer.Has(path) {
		d.summary.skipped(StageWall)
		return nil
	}

	payload, err := d.withLikerIDs(ctx, raw, "post", post.ID, post.Likes.Count)
	if err != nil {
		return err
	}
	if err := d.writer.Write(path, payload); err != nil {
		return err
	}
	d.summary.fetched(StageWall)
	return nil
}

func (d *Dumper) fetchPostComments(ctx context.Context, postID int64) error {
	key := checkpoint.ScopeKey("wall_comments", postID)

	params := vk.OwnerParams(d.ownerID)
	params.Set("post_id", strconv.FormatInt(postID, 10))
	params.Set("need_likes", "1")

	_, err := d.pager.Each(ctx, vk.MethodWallGetComments, params, d.cp.Cursor(key), func(item json.RawMessage) error {
		var comment vk.Comment
		if err := json.Unmarshal(item, &comment); err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode comment: %v", err)
		}

		path := archive.PostCommentPath(postID, comment.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StageWall)
			return nil
		}

		payload, err := d.withLikerIDs(ctx, item, "comment", comment.ID, comment.Likes.Count)
		if err != nil {
			return err
		}
		if err := d.writer.Write(path, payload); err != nil {
			return err
		}
		d.summary.fetched(StageWall)
		return nil
	}, d.advance(key))
	return err
}

// withLikerIDs enriches a record with the ids of everyone who liked it,
// fetched before the record is written so a committed file is final.
func (d *Dumper) withLikerIDs(ctx context.Context, raw json.RawMessage, likeType string, itemID int64, count int) (interface{}, error) {
	if count == 0 {
		return raw, nil
	}
	ids, err := d.collectLikes(ctx, likeType, itemID)
	if err != nil {
		return nil, err
	}
	return embedField(raw, "liker_ids", ids)
}

func (d *Dumper) collectLikes(ctx context.Context, likeType string, itemID int64) ([]int64, error) {
	params := vk.OwnerParams(d.ownerID)
	params.Set("type", likeType)
	params.Set("item_id", strconv.FormatInt(itemID, 10))

	ids := make([]int64, 0)
	_, err := d.likesPager.Each(ctx, vk.MethodLikesGetList, params, vk.Cursor{}, func(item json.RawMessage) error {
		var id int64
		if err := json.Unmarshal(item, &id); err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode liker id: %v", err)
		}
		ids = append(ids, id)
		return nil
	}, nil)
	if err != nil {
		if isScopedDenial(err) {
			// A restricted like list is not worth losing the record over.
			return ids, nil
		}
		return nil, err
	}
	return ids, nil
}

// fetchPhotos archives every album header and every photo record under
// its album. System albums (wall and profile photos) are part of the
// listing; without them most of a community's photos are invisible.
func (d *Dumper) fetchPhotos(ctx context.Context) error {
	key := checkpoint.ScopeKey("albums", 0)

	params := vk.OwnerParams(d.ownerID)
	params.Set("need_system", "1")
	params.Set("need_covers", "1")

	_, err := d.pager.Each(ctx, vk.MethodPhotosGetAlbums, params, d.cp.Cursor(key), func(item json.RawMessage) error {
		rec, err := vk.DecodeRecord(item)
		if err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode album: %v", err)
		}

		path := archive.AlbumPath(rec.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StagePhotos)
		} else {
			if err := d.writer.Write(path, rec.Payload); err != nil {
				return err
			}
			d.summary.fetched(StagePhotos)
		}

		if err := d.fetchAlbumPhotos(ctx, rec.ID); err != nil {
			if isScopedDenial(err) {
				d.summary.warn(StagePhotos, fmt.Sprintf("album %d unavailable", rec.ID))
				return nil
			}
			return err
		}
		return nil
	}, d.advance(key))
	return err
}

func (d *Dumper) fetchAlbumPhotos(ctx context.Context, albumID int64) error {
	key := checkpoint.ScopeKey("photos", albumID)

	params := vk.OwnerParams(d.ownerID)
	params.Set("album_id", strconv.FormatInt(albumID, 10))
	params.Set("photo_sizes", "1")

	_, err := d.pager.Each(ctx, vk.MethodPhotosGet, params, d.cp.Cursor(key), func(item json.RawMessage) error {
		rec, err := vk.DecodeRecord(item)
		if err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode photo: %v", err)
		}

		path := archive.PhotoPath(albumID, rec.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StagePhotos)
			return nil
		}
		if err := d.writer.Write(path, rec.Payload); err != nil {
			return err
		}
		d.summary.fetched(StagePhotos)
		return nil
	}, d.advance(key))
	return err
}

// fetchDocuments archives every document record with a filesystem-safe
// title embedded alongside the vendor fields.
func (d *Dumper) fetchDocuments(ctx context.Context) error {
	key := checkpoint.ScopeKey("docs", 0)

	_, err := d.pager.Each(ctx, vk.MethodDocsGet, vk.OwnerParams(d.ownerID), d.cp.Cursor(key), func(item json.RawMessage) error {
		var doc vk.DocAttachment
		if err := json.Unmarshal(item, &doc); err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode document: %v", err)
		}

		path := archive.DocPath(doc.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StageDocuments)
			return nil
		}

		payload, err := embedField(item, "normalized_title", vk.NormalizeTitle(doc.Title, doc.Ext))
		if err != nil {
			return err
		}
		if err := d.writer.Write(path, payload); err != nil {
			return err
		}
		d.summary.fetched(StageDocuments)
		return nil
	}, d.advance(key))
	return err
}

// fetchVideos archives video references. Only metadata and player URLs
// exist through the API; the binaries stay with the vendor.
func (d *Dumper) fetchVideos(ctx context.Context) error {
	key := checkpoint.ScopeKey("videos", 0)

	_, err := d.pager.Each(ctx, vk.MethodVideoGet, vk.OwnerParams(d.ownerID), d.cp.Cursor(key), func(item json.RawMessage) error {
		rec, err := vk.DecodeRecord(item)
		if err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode video: %v", err)
		}

		path := archive.VideoPath(rec.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StageVideos)
			return nil
		}
		if err := d.writer.Write(path, rec.Payload); err != nil {
			return err
		}
		d.summary.fetched(StageVideos)
		return nil
	}, d.advance(key))
	return err
}

// fetchDiscussions archives every board topic and its reply thread.
func (d *Dumper) fetchDiscussions(ctx context.Context) error {
	key := checkpoint.ScopeKey("topics", 0)

	_, err := d.pager.Each(ctx, vk.MethodBoardGetTopics, vk.GroupParams(d.groupID), d.cp.Cursor(key), func(item json.RawMessage) error {
		var topic vk.Topic
		if err := json.Unmarshal(item, &topic); err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode topic: %v", err)
		}

		path := archive.TopicPath(topic.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StageDiscussions)
		} else {
			if err := d.writer.Write(path, json.RawMessage(item)); err != nil {
				return err
			}
			d.summary.fetched(StageDiscussions)
		}

		if topic.Comments > 0 {
			if err := d.fetchTopicComments(ctx, topic.ID); err != nil {
				if isScopedDenial(err) {
					d.summary.warn(StageDiscussions, fmt.Sprintf("replies of topic %d unavailable", topic.ID))
					return nil
				}
				return err
			}
		}
		return nil
	}, d.advance(key))
	return err
}

func (d *Dumper) fetchTopicComments(ctx context.Context, topicID int64) error {
	key := checkpoint.ScopeKey("board_comments", topicID)

	params := vk.GroupParams(d.groupID)
	params.Set("topic_id", strconv.FormatInt(topicID, 10))
	params.Set("need_likes", "1")

	_, err := d.pager.Each(ctx, vk.MethodBoardGetComments, params, d.cp.Cursor(key), func(item json.RawMessage) error {
		var comment vk.Comment
		if err := json.Unmarshal(item, &comment); err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode topic reply: %v", err)
		}

		path := archive.TopicCommentPath(topicID, comment.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StageDiscussions)
			return nil
		}

		payload, err := d.withLikerIDs(ctx, item, "topic_comment", comment.ID, comment.Likes.Count)
		if err != nil {
			return err
		}
		if err := d.writer.Write(path, payload); err != nil {
			return err
		}
		d.summary.fetched(StageDiscussions)
		return nil
	}, d.advance(key))
	return err
}

// fetchPages archives the community wiki pages. The title listing is a
// single unpaginated call; each page body is then fetched with its
// wiki source and rendered HTML.
func (d *Dumper) fetchPages(ctx context.Context) error {
	raw, err := d.client.Call(ctx, vk.MethodPagesGetTitles, vk.GroupParams(d.groupID))
	if err != nil {
		return err
	}

	// pages.getTitles returns a bare array; some API versions wrap it
	// in the usual count/items envelope.
	var titles []json.RawMessage
	if err := json.Unmarshal(raw, &titles); err != nil {
		var listing vk.Page
		if err := json.Unmarshal(raw, &listing); err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode page titles: %v", err)
		}
		titles = listing.Items
	}

	for _, item := range titles {
		rec, err := vk.DecodeRecord(item)
		if err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode page title: %v", err)
		}

		path := archive.PagePath(rec.ID)
		if d.writer.Has(path) {
			d.summary.skipped(StagePages)
			continue
		}

		params := vk.OwnerParams(d.ownerID)
		params.Set("page_id", strconv.FormatInt(rec.ID, 10))
		params.Set("need_source", "1")
		params.Set("need_html", "1")

		body, err := d.client.Call(ctx, vk.MethodPagesGet, params)
		if err != nil {
			if isScopedDenial(err) {
				d.summary.warn(StagePages, fmt.Sprintf("wiki page %d unavailable", rec.ID))
				continue
			}
			return err
		}
		if err := d.writer.Write(path, json.RawMessage(body)); err != nil {
			return err
		}
		d.summary.fetched(StagePages)
	}
	return nil
}

// fetchMembers archives the member list as one file per page, keyed by
// the page's starting offset. Pages resume mid-list across runs since
// the list is sorted by ascending id.
func (d *Dumper) fetchMembers(ctx context.Context) error {
	key := checkpoint.ScopeKey("members", 0)
	cursor := d.cp.Cursor(key)

	params := vk.GroupParams(d.groupID)
	params.Set("sort", "id_asc")

	pageStart := cursor.Offset
	var page []json.RawMessage

	_, err := d.pager.Each(ctx, vk.MethodGroupsGetMembers, params, cursor, func(item json.RawMessage) error {
		page = append(page, item)
		return nil
	}, func(c vk.Cursor) error {
		if len(page) > 0 {
			path := archive.MembersPagePath(pageStart)
			if d.writer.Has(path) {
				d.summary.skipped(StageMembers)
			} else {
				if err := d.writer.Write(path, page); err != nil {
					return err
				}
				d.summary.fetched(StageMembers)
			}
		}
		page = page[:0]
		pageStart = c.Offset
		return d.checkpoints.Advance(d.cp, key, c)
	})
	return err
}

// fetchStats archives community statistics when enabled. Requires an
// admin token; a refusal is reported, not fatal.
func (d *Dumper) fetchStats(ctx context.Context) error {
	if !d.cfg.Dump.IncludeStats {
		return nil
	}

	from, err := d.cfg.StatsFromTimestamp()
	if err != nil {
		return err
	}

	params := vk.GroupParams(d.groupID)
	if from > 0 {
		params.Set("timestamp_from", strconv.FormatInt(from, 10))
	}

	raw, err := d.client.Call(ctx, vk.MethodStatsGet, params)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(json.RawMessage(raw), "", "  ")
	if err != nil {
		return errs.New(errs.KindIO, 0, "failed to encode statistics: %v", err)
	}
	if err := d.writer.WriteRaw(archive.StatsPath(), data); err != nil {
		return err
	}
	d.summary.fetched(StageStats)
	return nil
}
