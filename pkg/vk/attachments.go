package vk

import (
	"fmt"
	"strings"
	"unicode"

	"vkdump/pkg/logger"
)

// Attachment is the vendor attachment union: Type names which of the
// member objects is populated.
type Attachment struct {
	Type  string           `json:"type"`
	Photo *PhotoAttachment `json:"photo"`
	Doc   *DocAttachment   `json:"doc"`
	Video *VideoAttachment `json:"video"`
	Audio *AudioAttachment `json:"audio"`
	Link  *LinkAttachment  `json:"link"`
}

// PhotoAttachment carries the size variants of an attached photo.
type PhotoAttachment struct {
	ID    int64       `json:"id"`
	Sizes []PhotoSize `json:"sizes"`
}

// PhotoSize is one resolution variant.
type PhotoSize struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// DocAttachment is an attached document.
type DocAttachment struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Ext   string `json:"ext"`
	URL   string `json:"url"`
}

// VideoAttachment is an attached video. Only the title and player URL
// are archived; VK does not allow downloading the binary.
type VideoAttachment struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Player string `json:"player"`
}

// AudioAttachment is an attached audio track, URL-only like video.
type AudioAttachment struct {
	ID     int64  `json:"id"`
	Artist string `json:"artist"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

// LinkAttachment is an attached external link.
type LinkAttachment struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// RefKind classifies a mapped attachment reference.
type RefKind string

const (
	RefPhoto RefKind = "photo"
	RefDoc   RefKind = "doc"
	RefVideo RefKind = "video"
	RefAudio RefKind = "audio"
	RefLink  RefKind = "link"
)

// AttachmentRef is a mapped attachment: a typed reference with a vendor
// URL and a human title, never binary content.
type AttachmentRef struct {
	Kind       RefKind `json:"kind"`
	ID         int64   `json:"id,omitempty"`
	ParentKind string  `json:"parent_kind"`
	ParentID   int64   `json:"parent_id"`
	Title      string  `json:"title,omitempty"`
	URL        string  `json:"url,omitempty"`
}

// photoSizeRank orders VK photo size types from largest to smallest.
var photoSizeRank = map[string]int{
	"w": 0, "z": 1, "y": 2, "x": 3, "r": 4,
	"q": 5, "p": 6, "o": 7, "m": 8, "s": 9,
}

// BestPhotoURL returns the URL of the largest size variant.
func BestPhotoURL(sizes []PhotoSize) string {
	bestRank := len(photoSizeRank) + 1
	var bestURL string
	for _, size := range sizes {
		rank, ok := photoSizeRank[size.Type]
		if !ok {
			rank = len(photoSizeRank)
		}
		if rank < bestRank {
			bestRank = rank
			bestURL = size.URL
		}
	}
	return bestURL
}

// AttachmentMapper maps vendor attachment unions to archive references.
// Unsupported types (articles, polls, ...) are dropped with one warning
// per type per run.
type AttachmentMapper struct {
	logger       logger.Logger
	skippedTypes map[string]bool
}

// NewAttachmentMapper creates an attachment mapper.
func NewAttachmentMapper(log logger.Logger) *AttachmentMapper {
	if log == nil {
		log = logger.GetLogger()
	}
	return &AttachmentMapper{
		logger:       log,
		skippedTypes: make(map[string]bool),
	}
}

// Map converts the attachment list of one parent record.
func (m *AttachmentMapper) Map(parentKind string, parentID int64, attachments []Attachment) []AttachmentRef {
	var refs []AttachmentRef

	for _, att := range attachments {
		ref := AttachmentRef{ParentKind: parentKind, ParentID: parentID}

		switch att.Type {
		case "photo":
			if att.Photo == nil || len(att.Photo.Sizes) == 0 {
				m.logger.WarnWithFields("empty photo attachment", map[string]interface{}{
					"parent_kind": parentKind,
					"parent_id":   parentID,
				})
				continue
			}
			ref.Kind = RefPhoto
			ref.ID = att.Photo.ID
			ref.URL = BestPhotoURL(att.Photo.Sizes)
		case "doc":
			if att.Doc == nil {
				continue
			}
			ref.Kind = RefDoc
			ref.ID = att.Doc.ID
			ref.Title = NormalizeTitle(att.Doc.Title, att.Doc.Ext)
			ref.URL = att.Doc.URL
		case "video":
			if att.Video == nil {
				continue
			}
			ref.Kind = RefVideo
			ref.ID = att.Video.ID
			ref.Title = att.Video.Title
			ref.URL = att.Video.Player
		case "audio":
			if att.Audio == nil {
				continue
			}
			ref.Kind = RefAudio
			ref.ID = att.Audio.ID
			ref.Title = fmt.Sprintf("%s - %s", att.Audio.Artist, att.Audio.Title)
			ref.URL = att.Audio.URL
		case "link":
			if att.Link == nil {
				continue
			}
			ref.Kind = RefLink
			ref.Title = att.Link.Title
			ref.URL = att.Link.URL
		default:
			if !m.skippedTypes[att.Type] {
				m.logger.WarnWithFields("unsupported attachment type skipped", map[string]interface{}{
					"type":        att.Type,
					"parent_kind": parentKind,
					"parent_id":   parentID,
				})
				m.skippedTypes[att.Type] = true
			}
			continue
		}

		refs = append(refs, ref)
	}

	return refs
}

// titleKeepCharacters are the non-alphanumeric characters allowed in
// normalized document titles used as filename parts.
const titleKeepCharacters = " _-—.,"

// NormalizeTitle strips filesystem-hostile characters from a document
// title and ensures the extension suffix.
func NormalizeTitle(title, ext string) string {
	var b strings.Builder
	for _, c := range title {
		if unicode.IsLetter(c) || unicode.IsDigit(c) || strings.ContainsRune(titleKeepCharacters, c) {
			b.WriteRune(c)
		}
	}
	normalized := strings.TrimRight(b.String(), " ")

	if ext != "" {
		suffix := "." + ext
		if !strings.HasSuffix(normalized, suffix) {
			normalized += suffix
		}
	}
	return normalized
}
