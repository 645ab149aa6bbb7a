package graph

import (
	"context"
)

// DeltaResult is the outcome of one delta query: the accumulated change
// records and the continuation cursor to persist for the next query. The
// cursor appears only on the final page of a delta response.
type DeltaResult struct {
	Changes []ChangeRecord
	Cursor  string
}

// Delta queries the change feed for a list. With an empty cursor it starts a
// fresh delta enumeration; otherwise it resumes from the stored cursor URL
// verbatim (the cursor is opaque and its validity is governed by the server).
// All pages of the response are drained before returning.
func (c *Client) Delta(ctx context.Context, listID, cursor string) (*DeltaResult, error) {
	next := cursor
	if next == "" {
		next = c.tasksURL(listID) + "/delta"
	}

	result := &DeltaResult{}
	for next != "" {
		var resp deltaPage
		if err := c.getJSON(ctx, next, &resp); err != nil {
			return nil, err
		}

		result.Changes = append(result.Changes, resp.Value...)
		if resp.DeltaLink != "" {
			result.Cursor = resp.DeltaLink
		}
		next = resp.NextLink
	}

	return result, nil
}
