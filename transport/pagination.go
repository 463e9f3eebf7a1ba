package transport

import (
	"strconv"
	"strings"

	"github.com/goliatone/go-workspace-sync/core"
)

// CursorPagination follows an opaque continuation token the provider echoes
// back in each response body.
type CursorPagination struct {
	CursorResponseKey string
	CursorRequestKey  string
	ItemsKey          string
	MaxResultsKey     string
	PageSize          int
}

func (p CursorPagination) InitialParams() map[string]string {
	params := map[string]string{}
	size := p.PageSize
	if size <= 0 {
		size = 100
	}
	if strings.TrimSpace(p.MaxResultsKey) != "" {
		params[p.MaxResultsKey] = strconv.Itoa(size)
	}
	return params
}

func (p CursorPagination) ExtractItems(data map[string]any) []map[string]any {
	return extractItems(data, p.ItemsKey)
}

func (p CursorPagination) NextParams(data map[string]any, current map[string]string) (map[string]string, bool) {
	cursor, _ := data[p.CursorResponseKey].(string)
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return nil, false
	}
	next := cloneParams(current)
	next[p.CursorRequestKey] = cursor
	return next, true
}

// OffsetPagination advances a numeric offset until a page comes back short.
type OffsetPagination struct {
	OffsetKey string
	LimitKey  string
	ItemsKey  string
	PageSize  int
}

func (p OffsetPagination) limit() int {
	if p.PageSize > 0 {
		return p.PageSize
	}
	return 100
}

func (p OffsetPagination) InitialParams() map[string]string {
	return map[string]string{
		p.OffsetKey: "0",
		p.LimitKey:  strconv.Itoa(p.limit()),
	}
}

func (p OffsetPagination) ExtractItems(data map[string]any) []map[string]any {
	return extractItems(data, p.ItemsKey)
}

func (p OffsetPagination) NextParams(data map[string]any, current map[string]string) (map[string]string, bool) {
	items := extractItems(data, p.ItemsKey)
	if len(items) < p.limit() {
		return nil, false
	}
	offset, err := strconv.Atoi(current[p.OffsetKey])
	if err != nil {
		offset = 0
	}
	next := cloneParams(current)
	next[p.OffsetKey] = strconv.Itoa(offset + p.limit())
	return next, true
}

// NoPagination yields the single response as one page.
type NoPagination struct {
	ItemsKey string
}

func (p NoPagination) InitialParams() map[string]string {
	return map[string]string{}
}

func (p NoPagination) ExtractItems(data map[string]any) []map[string]any {
	return extractItems(data, p.ItemsKey)
}

func (p NoPagination) NextParams(map[string]any, map[string]string) (map[string]string, bool) {
	return nil, false
}

func extractItems(data map[string]any, itemsKey string) []map[string]any {
	if data == nil {
		return nil
	}
	raw, ok := data[itemsKey].([]any)
	if !ok {
		return nil
	}
	items := make([]map[string]any, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]any); ok {
			items = append(items, item)
		}
	}
	return items
}

func cloneParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+1)
	for key, value := range params {
		out[key] = value
	}
	return out
}

var (
	_ core.PaginationStrategy = CursorPagination{}
	_ core.PaginationStrategy = OffsetPagination{}
	_ core.PaginationStrategy = NoPagination{}
)
