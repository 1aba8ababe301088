package vk

import "encoding/json"

// envelope is the top-level VK API response wrapper: exactly one of
// Response or Error is set.
type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    *apiError       `json:"error"`
}

// apiError is the embedded VK error object.
type apiError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// Page is the common shape of a paginated collection response.
type Page struct {
	Count int               `json:"count"`
	Items []json.RawMessage `json:"items"`
}

// Record is one raw vendor item with its identity extracted. The payload
// stays vendor-shaped; kind-specific mapping happens in the fetchers.
type Record struct {
	ID      int64
	Payload json.RawMessage
}

// recordID is the minimal shape shared by every VK collection item.
type recordID struct {
	ID int64 `json:"id"`
}

// DecodeRecord extracts the id from a raw item.
func DecodeRecord(raw json.RawMessage) (Record, error) {
	var rid recordID
	if err := json.Unmarshal(raw, &rid); err != nil {
		return Record{}, err
	}
	return Record{ID: rid.ID, Payload: raw}, nil
}

// Group is the community header returned by groups.getById.
type Group struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	ScreenName   string `json:"screen_name"`
	Description  string `json:"description"`
	MembersCount int    `json:"members_count"`
	Cover        struct {
		Enabled int          `json:"enabled"`
		Images  []CoverImage `json:"images"`
	} `json:"cover"`
}

// CoverImage is one size variant of the community banner.
type CoverImage struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ResolvedName is the result of utils.resolveScreenName.
type ResolvedName struct {
	Type     string `json:"type"`
	ObjectID int64  `json:"object_id"`
}

// Post carries the wall post fields the dumper inspects; everything else
// stays in the raw payload.
type Post struct {
	ID       int64        `json:"id"`
	Likes    CountField   `json:"likes"`
	Comments CountField   `json:"comments"`
	Attach   []Attachment `json:"attachments"`
}

// Comment carries the comment fields the dumper inspects.
type Comment struct {
	ID     int64        `json:"id"`
	Likes  CountField   `json:"likes"`
	Attach []Attachment `json:"attachments"`
}

// Topic is a board discussion header.
type Topic struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	IsClosed int    `json:"is_closed"`
	Comments int    `json:"comments"`
}

// CountField is the {count: N} sub-object VK embeds for likes/comments.
type CountField struct {
	Count int `json:"count"`
}
