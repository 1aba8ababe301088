package vk

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	errs "vkdump/pkg/errors"
	"vkdump/pkg/logger"
)

// Cursor is a resumable pagination position for one (method, scope)
// sweep. Offsets only ever advance; a saved cursor resumes the sweep
// exactly where it stopped.
type Cursor struct {
	Offset int  `json:"offset"`
	Done   bool `json:"done"`
}

// Pager walks one paginated collection endpoint until exhaustion.
type Pager struct {
	client   *Client
	pageSize int
	logger   logger.Logger
}

// NewPager creates a pager over the given client.
func NewPager(client *Client, pageSize int, log logger.Logger) *Pager {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pager{client: client, pageSize: pageSize, logger: log}
}

// Each issues paginated calls starting from cursor and invokes fn for
// every raw item. After each fully processed page it invokes advanced
// with the new cursor, so the caller can persist progress only once the
// page's writes are complete. It returns the final cursor.
//
// Termination: a page shorter than requested, or the vendor-reported
// total reached, whichever happens first. The vendor total is not
// trusted on its own because counts drift while content is edited.
func (p *Pager) Each(
	ctx context.Context,
	method string,
	params url.Values,
	cursor Cursor,
	fn func(item json.RawMessage) error,
	advanced func(Cursor) error,
) (Cursor, error) {
	if cursor.Done {
		return cursor, nil
	}

	count := p.pageSize
	total := -1

	for {
		if err := ctx.Err(); err != nil {
			return cursor, err
		}

		pageParams := url.Values{}
		for key, values := range params {
			for _, value := range values {
				pageParams.Add(key, value)
			}
		}
		pageParams.Set("offset", strconv.Itoa(cursor.Offset))
		pageParams.Set("count", strconv.Itoa(count))

		raw, err := p.client.Call(ctx, method, pageParams)
		if err != nil {
			if errs.IsKind(err, errs.KindTooBig) && count > 1 {
				count = (count + 5) / 5
				p.logger.InfoWithFields("page size reduced", map[string]interface{}{
					"method": method,
					"count":  count,
				})
				continue
			}
			return cursor, err
		}

		var page Page
		if err := json.Unmarshal(raw, &page); err != nil {
			return cursor, errs.New(errs.KindParsing, 0, "failed to decode %s page: %v", method, err)
		}
		total = page.Count

		for _, item := range page.Items {
			if err := fn(item); err != nil {
				return cursor, err
			}
		}

		cursor.Offset += len(page.Items)
		if len(page.Items) < count || cursor.Offset >= total {
			cursor.Done = true
		}

		if advanced != nil {
			if err := advanced(cursor); err != nil {
				return cursor, err
			}
		}

		if cursor.Done {
			p.logger.DebugWithFields("pagination complete", map[string]interface{}{
				"method": method,
				"items":  cursor.Offset,
				"total":  total,
			})
			return cursor, nil
		}
	}
}

// Collect runs Each and gathers every item as a Record.
func (p *Pager) Collect(ctx context.Context, method string, params url.Values, cursor Cursor) ([]Record, Cursor, error) {
	var records []Record
	cursor, err := p.Each(ctx, method, params, cursor, func(item json.RawMessage) error {
		rec, err := DecodeRecord(item)
		if err != nil {
			return errs.New(errs.KindParsing, 0, "failed to decode %s item: %v", method, err)
		}
		records = append(records, rec)
		return nil
	}, nil)
	return records, cursor, err
}
