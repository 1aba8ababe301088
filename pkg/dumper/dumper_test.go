package dumper

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vkdump/pkg/config"
	errs "vkdump/pkg/errors"
	"vkdump/pkg/vk"
)

// fakeVK serves canned VK API responses with real offset/count
// pagination, so the dumper under test exercises its actual sweep and
// resume logic.
type fakeVK struct {
	t *testing.T

	// collections keyed by method (plus scope suffix for nested ones)
	collections map[string][]interface{}

	// denied maps "method" or "method:param=value" to a VK error code.
	denied map[string]int

	calls  map[string]int
	params map[string]url.Values // last query seen per method
}

func newFakeVK(t *testing.T) *fakeVK {
	f := &fakeVK{
		t:           t,
		collections: make(map[string][]interface{}),
		denied:      make(map[string]int),
		calls:       make(map[string]int),
		params:      make(map[string]url.Values),
	}

	f.collections["wall.get"] = []interface{}{
		map[string]interface{}{
			"id": 1, "text": "first",
			"likes":    map[string]interface{}{"count": 2},
			"comments": map[string]interface{}{"count": 1},
		},
		map[string]interface{}{
			"id": 2, "text": "second",
			"likes":    map[string]interface{}{"count": 0},
			"comments": map[string]interface{}{"count": 0},
		},
		map[string]interface{}{
			"id": 3, "text": "third",
			"likes":    map[string]interface{}{"count": 0},
			"comments": map[string]interface{}{"count": 5},
		},
	}
	f.collections["wall.getComments:post_id=1"] = []interface{}{
		map[string]interface{}{
			"id": 11, "text": "nice",
			"likes": map[string]interface{}{"count": 0},
		},
	}
	f.collections["likes.getList"] = []interface{}{101, 102}
	f.collections["photos.getAlbums"] = []interface{}{
		map[string]interface{}{"id": 200, "title": "Album"},
	}
	f.collections["photos.get:album_id=200"] = []interface{}{
		map[string]interface{}{"id": 201},
		map[string]interface{}{"id": 202},
	}
	f.collections["docs.get"] = []interface{}{
		map[string]interface{}{"id": 301, "title": "My Doc!", "ext": "pdf", "url": "https://vk.com/doc301"},
	}
	f.collections["video.get"] = []interface{}{
		map[string]interface{}{"id": 401, "title": "clip", "player": "https://vk.com/video401"},
	}
	f.collections["board.getTopics"] = []interface{}{
		map[string]interface{}{"id": 501, "title": "rules", "comments": 1},
	}
	f.collections["board.getComments:topic_id=501"] = []interface{}{
		map[string]interface{}{
			"id": 511, "text": "reply",
			"likes": map[string]interface{}{"count": 0},
		},
	}
	f.collections["pages.getTitles"] = []interface{}{
		map[string]interface{}{"id": 601, "title": "FAQ"},
	}
	f.collections["groups.getMembers"] = []interface{}{1001, 1002, 1003}

	return f
}

func (f *fakeVK) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	method := strings.TrimPrefix(r.URL.Path, "/")
	query := r.URL.Query()
	f.calls[method]++
	f.params[method] = query

	for _, key := range []string{method + ":post_id=" + query.Get("post_id"), method + ":topic_id=" + query.Get("topic_id"), method + ":page_id=" + query.Get("page_id"), method} {
		if code, ok := f.denied[key]; ok {
			writeEnvelope(w, map[string]interface{}{
				"error": map[string]interface{}{"error_code": code, "error_msg": "denied"},
			})
			return
		}
	}

	switch method {
	case "utils.resolveScreenName":
		writeEnvelope(w, map[string]interface{}{
			"response": map[string]interface{}{"type": "group", "object_id": 1},
		})
	case "groups.getById":
		writeEnvelope(w, map[string]interface{}{
			"response": []interface{}{
				map[string]interface{}{"id": 1, "name": "Test Club", "screen_name": "testclub"},
			},
		})
	case "stats.get":
		writeEnvelope(w, map[string]interface{}{
			"response": []interface{}{map[string]interface{}{"day": "2026-01-01", "visitors": 7}},
		})
	case "pages.getTitles":
		// Bare array, no count/items envelope.
		writeEnvelope(w, map[string]interface{}{
			"response": f.collections["pages.getTitles"],
		})
	case "pages.get":
		id, _ := strconv.Atoi(query.Get("page_id"))
		writeEnvelope(w, map[string]interface{}{
			"response": map[string]interface{}{
				"id": id, "title": "FAQ", "source": "faq text", "html": "<p>faq text</p>",
			},
		})
	default:
		key := method
		if v := query.Get("post_id"); v != "" {
			key = method + ":post_id=" + v
		}
		if v := query.Get("topic_id"); v != "" {
			key = method + ":topic_id=" + v
		}
		if v := query.Get("album_id"); v != "" {
			key = method + ":album_id=" + v
		}

		items := f.collections[key]
		offset, _ := strconv.Atoi(query.Get("offset"))
		count, _ := strconv.Atoi(query.Get("count"))
		if count <= 0 {
			count = len(items)
		}

		end := offset + count
		if offset > len(items) {
			offset = len(items)
		}
		if end > len(items) {
			end = len(items)
		}

		writeEnvelope(w, map[string]interface{}{
			"response": map[string]interface{}{
				"count": len(items),
				"items": items[offset:end],
			},
		})
	}
}

func writeEnvelope(w http.ResponseWriter, env map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(env)
}

func testConfig(t *testing.T, serverURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API.AccessToken = "test-token"
	cfg.API.BaseURL = serverURL
	cfg.RateLimit.MinInterval = time.Millisecond
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.BaseDelay = time.Millisecond
	cfg.Retry.MaxDelay = 2 * time.Millisecond
	cfg.Retry.RateLimitBaseDelay = time.Millisecond
	cfg.Retry.RateLimitMaxDelay = 2 * time.Millisecond
	cfg.Output.BaseDirectory = t.TempDir()
	cfg.Dump.PageSize = 2
	return cfg
}

func runDump(t *testing.T, cfg *config.Config, fake *fakeVK, identifier string) (*Summary, error) {
	t.Helper()
	client := vk.NewClient(cfg, nil)
	d := New(cfg, client, nil)
	return d.Run(context.Background(), identifier, Options{})
}

func readArchived(t *testing.T, cfg *config.Config, relPath string) map[string]interface{} {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Output.BaseDirectory, "club1", relPath))
	require.NoError(t, err, "expected archived file %s", relPath)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func TestRunArchivesEverySection(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	summary, err := runDump(t, cfg, fake, "testclub")
	require.NoError(t, err)

	assert.Equal(t, int64(1), summary.GroupID)
	assert.Equal(t, "Test Club", summary.GroupName)
	assert.True(t, summary.Complete)

	root := filepath.Join(cfg.Output.BaseDirectory, "club1")
	for _, rel := range []string{
		"community.json",
		"wall/post_1.json",
		"wall/post_2.json",
		"wall/post_3.json",
		"wall/1/comments/comment_11.json",
		"photos/album_200.json",
		"photos/album_200/photo_201.json",
		"photos/album_200/photo_202.json",
		"docs/doc_301.json",
		"videos/video_401.json",
		"board/topic_501.json",
		"board/501/comments/comment_511.json",
		"pages/page_601.json",
		"members/members_0.json",
		"members/members_2.json",
		"attachments.tsv",
	} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		assert.NoError(t, err, "missing %s", rel)
	}

	// Liker ids are embedded before the post is committed.
	post := readArchived(t, cfg, "wall/post_1.json")
	assert.ElementsMatch(t, []interface{}{float64(101), float64(102)}, post["liker_ids"])

	// Documents carry a filesystem-safe title next to the vendor fields.
	doc := readArchived(t, cfg, "docs/doc_301.json")
	assert.Equal(t, "My Doc.pdf", doc["normalized_title"])

	// Wiki pages are archived with body, not just the title listing.
	page := readArchived(t, cfg, "pages/page_601.json")
	assert.Equal(t, "faq text", page["source"])

	// A completed run leaves no checkpoint behind.
	_, err = os.Stat(filepath.Join(root, "cursors.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestSecondRunSkipsArchivedRecords(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	postPath := filepath.Join(cfg.Output.BaseDirectory, "club1", "wall", "post_1.json")
	before, err := os.ReadFile(postPath)
	require.NoError(t, err)

	fake.calls = make(map[string]int)
	summary, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)
	require.True(t, summary.Complete)

	assert.Equal(t, 0, summary.Stages[StageWall].Fetched, "nothing new to fetch")
	assert.Greater(t, summary.Stages[StageWall].Skipped, 0)
	assert.Equal(t, 0, fake.calls["likes.getList"], "archived posts must not refetch their likes")
	assert.Equal(t, 0, fake.calls["pages.get"], "archived wiki pages must not refetch their bodies")

	after, err := os.ReadFile(postPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "archived record must not be rewritten")
}

func TestNewPostAppearsOnLaterRun(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	fake.collections["wall.get"] = append([]interface{}{
		map[string]interface{}{
			"id": 4, "text": "fresh",
			"likes":    map[string]interface{}{"count": 0},
			"comments": map[string]interface{}{"count": 0},
		},
	}, fake.collections["wall.get"]...)

	summary, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Stages[StageWall].Fetched)
	_, err = os.Stat(filepath.Join(cfg.Output.BaseDirectory, "club1", "wall", "post_4.json"))
	assert.NoError(t, err)
}

func TestDeniedCommentsDoNotStopTheSweep(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	// Post 3 claims five comments but the thread is closed.
	fake.denied["wall.getComments:post_id=3"] = errs.CodeAccessDenied

	cfg := testConfig(t, srv.URL)
	summary, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	root := filepath.Join(cfg.Output.BaseDirectory, "club1")
	for _, rel := range []string{"wall/post_1.json", "wall/post_2.json", "wall/post_3.json"} {
		_, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel)))
		assert.NoError(t, err, "missing %s", rel)
	}

	require.NotNil(t, summary.Stages[StageWall])
	assert.NotEmpty(t, summary.Stages[StageWall].Warnings)
}

func TestDeniedSectionIsSkippedNotFatal(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	// Hidden member list, a common community setting.
	fake.denied["groups.getMembers"] = errs.CodeAccessDenied

	cfg := testConfig(t, srv.URL)
	summary, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	assert.True(t, summary.Complete, "a permanent vendor refusal still counts as complete")
	assert.NotEmpty(t, summary.Stages[StageMembers].Warnings)

	// The other sections were still archived.
	_, err = os.Stat(filepath.Join(cfg.Output.BaseDirectory, "club1", "wall", "post_1.json"))
	assert.NoError(t, err)
}

func TestResolutionFailureAborts(t *testing.T) {
	fake := newFakeVK(t)
	fake.denied["utils.resolveScreenName"] = errs.CodeCannotResolve
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := runDump(t, cfg, fake, "no-such-club")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindResolution))

	// Nothing was archived for an unresolvable community.
	entries, readErr := os.ReadDir(cfg.Output.BaseDirectory)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestStatsFetchedWhenEnabled(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.Dump.IncludeStats = true
	cfg.Dump.StatsFrom = "01/01/2026"

	summary, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)
	require.True(t, summary.Complete)

	_, err = os.Stat(filepath.Join(cfg.Output.BaseDirectory, "club1", "stats.json"))
	assert.NoError(t, err)
}

func TestAttachmentReportListsNoFileAttachments(t *testing.T) {
	fake := newFakeVK(t)
	fake.collections["wall.get"] = []interface{}{
		map[string]interface{}{
			"id": 1, "text": "with video",
			"likes":    map[string]interface{}{"count": 0},
			"comments": map[string]interface{}{"count": 0},
			"attachments": []interface{}{
				map[string]interface{}{
					"type":  "video",
					"video": map[string]interface{}{"id": 900, "title": "talk", "player": "https://vk.com/video900"},
				},
				map[string]interface{}{
					"type": "link",
					"link": map[string]interface{}{"title": "site", "url": "https://example.com"},
				},
			},
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(cfg.Output.BaseDirectory, "club1", "attachments.tsv"))
	require.NoError(t, err)

	report := string(data)
	assert.Contains(t, report, "post\t1\tvideo\ttalk\thttps://vk.com/video900")
	assert.Contains(t, report, "post\t1\tlink\tsite\thttps://example.com")
}

func TestPhotoListingCoversSystemAlbumsAndSizes(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	// Wall and profile photos live in system albums; without need_system
	// the vendor silently omits them from the listing.
	albums := fake.params["photos.getAlbums"]
	require.NotNil(t, albums)
	assert.Equal(t, "1", albums.Get("need_system"))
	assert.Equal(t, "1", albums.Get("need_covers"))

	photos := fake.params["photos.get"]
	require.NotNil(t, photos)
	assert.Equal(t, "1", photos.Get("photo_sizes"))
}

func TestWikiPageBodyRequestsSourceAndHTML(t *testing.T) {
	fake := newFakeVK(t)
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	_, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	body := fake.params["pages.get"]
	require.NotNil(t, body)
	assert.Equal(t, "601", body.Get("page_id"))
	assert.Equal(t, "1", body.Get("need_source"))
	assert.Equal(t, "1", body.Get("need_html"))
}

func TestDeniedWikiPageDoesNotStopOthers(t *testing.T) {
	fake := newFakeVK(t)
	fake.collections["pages.getTitles"] = []interface{}{
		map[string]interface{}{"id": 601, "title": "FAQ"},
		map[string]interface{}{"id": 602, "title": "History"},
	}
	fake.denied["pages.get:page_id=601"] = errs.CodeAccessDenied
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	summary, err := runDump(t, cfg, fake, "1")
	require.NoError(t, err)

	root := filepath.Join(cfg.Output.BaseDirectory, "club1")
	_, err = os.Stat(filepath.Join(root, "pages", "page_602.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, "pages", "page_601.json"))
	assert.True(t, os.IsNotExist(err))

	require.NotNil(t, summary.Stages[StagePages])
	assert.NotEmpty(t, summary.Stages[StagePages].Warnings)
	assert.True(t, summary.Complete)
}
