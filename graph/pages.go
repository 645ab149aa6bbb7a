package graph

import (
	"context"
	"net/url"
	"strconv"

	"todosync/internal/utils"
)

// pageSize is the $top value for task pagination. The Graph API caps task
// pages at 100 records.
const pageSize = 100

// taskExpand asks for subtasks, linked resources and attachments inline.
// Attachments are not reliably expanded on collection views, so PageIterator
// backfills them per task when the flag says they exist but the payload is
// missing.
const taskExpand = "checklistItems,linkedResources,attachments"

// PageIterator walks the task pages of one list lazily, following
// server-supplied continuation links until exhausted. It is finite and
// non-restartable: once Next returns false, the iterator is done and Err
// reports whether it stopped on exhaustion or on failure.
//
// Usage follows the bufio.Scanner shape:
//
//	it := client.Pages(listID)
//	for it.Next(ctx) {
//	    tasks := it.Page()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type PageIterator struct {
	client  *Client
	listID  string
	nextURL string
	page    []Task
	err     error
	done    bool
}

// Pages returns a lazy iterator over the task pages of a list.
func (c *Client) Pages(listID string) *PageIterator {
	first := c.tasksURL(listID) + "?$top=" + strconv.Itoa(pageSize) + "&$expand=" + url.QueryEscape(taskExpand)
	return &PageIterator{
		client:  c,
		listID:  listID,
		nextURL: first,
	}
}

// Next fetches the next page. It returns false when the sequence is exhausted
// or a fetch failed; Err distinguishes the two.
func (it *PageIterator) Next(ctx context.Context) bool {
	if it.done || it.err != nil {
		return false
	}
	if it.nextURL == "" {
		it.done = true
		return false
	}

	var resp taskPage
	if err := it.client.getJSON(ctx, it.nextURL, &resp); err != nil {
		it.err = err
		it.done = true
		return false
	}

	it.client.backfillAttachments(ctx, it.listID, resp.Value)

	it.page = resp.Value
	it.nextURL = resp.NextLink
	if it.nextURL == "" && len(resp.Value) == 0 {
		// Empty final page: nothing to yield.
		it.done = true
		return false
	}
	return true
}

// Page returns the most recently fetched page of tasks.
func (it *PageIterator) Page() []Task {
	return it.page
}

// Err returns the error that terminated iteration, if any.
func (it *PageIterator) Err() error {
	return it.err
}

// backfillAttachments issues one supplementary fetch per task whose
// hasAttachments flag is set without an inline attachment payload. Most tasks
// have no attachments, so the per-task fetch is cheaper than forcing eager
// expansion on every page. Backfill failures leave the task without
// attachments rather than failing the page.
func (c *Client) backfillAttachments(ctx context.Context, listID string, tasks []Task) {
	for i := range tasks {
		t := &tasks[i]
		if !t.HasAttachments || len(t.Attachments) > 0 {
			continue
		}

		var resp attachmentList
		attURL := c.tasksURL(listID) + "/" + t.ID + "/attachments"
		if err := c.getJSON(ctx, attURL, &resp); err != nil {
			utils.Warnf("failed to backfill attachments for task %s: %v", t.ID, err)
			continue
		}
		t.Attachments = resp.Value
	}
}

// TaskCount returns the total number of tasks in a list. It probes the
// $count annotation first and falls back to a manual ID-only page walk when
// the annotation is unavailable. Errors degrade to 0: the count only feeds
// progress reporting and is never load-bearing.
func (c *Client) TaskCount(ctx context.Context, listID string) int {
	var resp taskPage
	countURL := c.tasksURL(listID) + "?$top=1&$count=true"
	if err := c.getJSON(ctx, countURL, &resp); err == nil && resp.Count != nil {
		return int(*resp.Count)
	}

	return c.countTasksManually(ctx, listID)
}

// countTasksManually walks ID-only pages and sums their lengths.
func (c *Client) countTasksManually(ctx context.Context, listID string) int {
	count := 0
	next := c.tasksURL(listID) + "?$top=" + strconv.Itoa(pageSize) + "&$select=id"
	for next != "" {
		var resp taskPage
		if err := c.getJSON(ctx, next, &resp); err != nil {
			utils.Debugf("manual task count aborted for list %s: %v", listID, err)
			return 0
		}
		count += len(resp.Value)
		next = resp.NextLink
	}
	return count
}
