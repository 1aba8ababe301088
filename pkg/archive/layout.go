package archive

import (
	"fmt"
	"path/filepath"
)

// The archive is a plain directory tree, browsable without an index:
//
//	club<ID>/
//	  community.json
//	  stats.json
//	  attachments.tsv
//	  wall/post_<id>.json
//	  wall/<postID>/comments/comment_<id>.json
//	  photos/album_<id>.json
//	  photos/album_<id>/photo_<id>.json
//	  docs/doc_<id>.json
//	  videos/video_<id>.json
//	  board/topic_<id>.json
//	  board/<topicID>/comments/comment_<id>.json
//	  pages/page_<id>.json
//	  members/members_<offset>.json
//
// Nested entities live under their parent's subtree. File paths double as
// manifest keys, so the layout must stay stable across versions.

// RootDirName returns the archive root directory name for a community.
func RootDirName(groupID int64) string {
	return fmt.Sprintf("club%d", groupID)
}

// CommunityPath is the community header record.
func CommunityPath() string {
	return "community.json"
}

// StatsPath is the community statistics record.
func StatsPath() string {
	return "stats.json"
}

// AttachmentReportPath is the no-file attachment report.
func AttachmentReportPath() string {
	return "attachments.tsv"
}

// PostPath is one wall post.
func PostPath(postID int64) string {
	return filepath.Join("wall", fmt.Sprintf("post_%d.json", postID))
}

// PostCommentPath is one comment under its post.
func PostCommentPath(postID, commentID int64) string {
	return filepath.Join("wall", fmt.Sprintf("%d", postID), "comments", fmt.Sprintf("comment_%d.json", commentID))
}

// AlbumPath is one photo album header.
func AlbumPath(albumID int64) string {
	return filepath.Join("photos", fmt.Sprintf("album_%d.json", albumID))
}

// PhotoPath is one photo record under its album.
func PhotoPath(albumID, photoID int64) string {
	return filepath.Join("photos", fmt.Sprintf("album_%d", albumID), fmt.Sprintf("photo_%d.json", photoID))
}

// DocPath is one document record.
func DocPath(docID int64) string {
	return filepath.Join("docs", fmt.Sprintf("doc_%d.json", docID))
}

// VideoPath is one video reference record.
func VideoPath(videoID int64) string {
	return filepath.Join("videos", fmt.Sprintf("video_%d.json", videoID))
}

// TopicPath is one discussion header.
func TopicPath(topicID int64) string {
	return filepath.Join("board", fmt.Sprintf("topic_%d.json", topicID))
}

// TopicCommentPath is one discussion reply under its topic.
func TopicCommentPath(topicID, commentID int64) string {
	return filepath.Join("board", fmt.Sprintf("%d", topicID), "comments", fmt.Sprintf("comment_%d.json", commentID))
}

// PagePath is one wiki page record.
func PagePath(pageID int64) string {
	return filepath.Join("pages", fmt.Sprintf("page_%d.json", pageID))
}

// MembersPagePath is one page of member records, keyed by its offset.
func MembersPagePath(offset int) string {
	return filepath.Join("members", fmt.Sprintf("members_%d.json", offset))
}

// Prefixes used for manifest coverage counting.
const (
	PostPrefix  = "wall/post_"
	AlbumPrefix = "photos/album_"
	DocPrefix   = "docs/doc_"
	VideoPrefix = "videos/video_"
	TopicPrefix = "board/topic_"
)
