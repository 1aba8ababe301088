package vk

import (
	"net/url"
	"strconv"
	"strings"
)

// VK API method names used by the dumper.
const (
	MethodResolveScreenName = "utils.resolveScreenName"
	MethodGroupsGetByID     = "groups.getById"
	MethodWallGet           = "wall.get"
	MethodWallGetComments   = "wall.getComments"
	MethodLikesGetList      = "likes.getList"
	MethodPhotosGetAlbums   = "photos.getAlbums"
	MethodPhotosGet         = "photos.get"
	MethodDocsGet           = "docs.get"
	MethodVideoGet          = "video.get"
	MethodBoardGetTopics    = "board.getTopics"
	MethodBoardGetComments  = "board.getComments"
	MethodPagesGetTitles    = "pages.getTitles"
	MethodPagesGet          = "pages.get"
	MethodGroupsGetMembers  = "groups.getMembers"
	MethodStatsGet          = "stats.get"
)

// groupFields is the field list requested for the community header,
// matching what a full archive needs to reconstruct the group page.
var groupFields = strings.Join([]string{
	"activity", "ban_info", "can_post", "can_see_all_posts", "city",
	"contacts", "counters", "country", "cover", "description",
	"finish_date", "fixed_post", "links", "market", "members_count",
	"place", "site", "start_date", "status", "verified", "wiki_page",
}, ",")

// Params is a convenience constructor for method parameters.
func Params(pairs ...string) url.Values {
	v := url.Values{}
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}

// OwnerParams returns params with owner_id set. Group owners are negative
// by VK convention.
func OwnerParams(ownerID int64) url.Values {
	return Params("owner_id", strconv.FormatInt(ownerID, 10))
}

// GroupParams returns params with group_id set (positive group id).
func GroupParams(groupID int64) url.Values {
	return Params("group_id", strconv.FormatInt(groupID, 10))
}

// GroupHeaderParams returns the params for groups.getById.
func GroupHeaderParams(groupID int64) url.Values {
	v := GroupParams(groupID)
	v.Set("fields", groupFields)
	return v
}
