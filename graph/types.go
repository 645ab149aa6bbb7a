package graph

// =============================================================================
// Microsoft Graph API Wire Types
// =============================================================================

// Task is a To Do task record as returned by the Graph API. Tasks are only
// ever mutated by whole-record replacement; the API does not emit partial
// patches.
type Task struct {
	ID                   string           `json:"id"`
	Title                string           `json:"title"`
	Body                 *TaskBody        `json:"body,omitempty"`
	Status               string           `json:"status,omitempty"`     // notStarted, inProgress, completed
	Importance           string           `json:"importance,omitempty"` // low, normal, high
	DueDateTime          *DateTimeZone    `json:"dueDateTime,omitempty"`
	ReminderDateTime     *DateTimeZone    `json:"reminderDateTime,omitempty"`
	CompletedDateTime    *DateTimeZone    `json:"completedDateTime,omitempty"`
	CreatedDateTime      string           `json:"createdDateTime,omitempty"`
	LastModifiedDateTime string           `json:"lastModifiedDateTime,omitempty"`
	HasAttachments       bool             `json:"hasAttachments,omitempty"`
	ChecklistItems       []ChecklistItem  `json:"checklistItems,omitempty"`
	LinkedResources      []LinkedResource `json:"linkedResources,omitempty"`
	Attachments          []Attachment     `json:"attachments,omitempty"`
}

// TaskBody holds the free-form notes of a task.
type TaskBody struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType"` // text or html
}

// DateTimeZone is the Graph dateTimeTimeZone pair.
type DateTimeZone struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// ChecklistItem is a subtask entry.
type ChecklistItem struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	IsChecked   bool   `json:"isChecked"`
}

// LinkedResource is an external resource attached to a task.
type LinkedResource struct {
	ID            string `json:"id"`
	DisplayName   string `json:"displayName"`
	WebURL        string `json:"webUrl"`
	ApplicationID string `json:"applicationName,omitempty"`
}

// Attachment is attachment metadata plus base64 content as returned by the
// attachments sub-resource.
type Attachment struct {
	ODataType    string `json:"@odata.type,omitempty"`
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	Size         int64  `json:"size,omitempty"`
	ContentBytes string `json:"contentBytes,omitempty"`
}

// Tombstone marks a change record as a deletion in a delta feed.
type Tombstone struct {
	Reason string `json:"reason"` // "changed" or "deleted"
}

// ChangeRecord is one entry of a delta response: either a whole replacement
// record or a tombstone for a removed task.
type ChangeRecord struct {
	Task
	Removed *Tombstone `json:"@removed,omitempty"`
}

// IsTombstone reports whether the record signals deletion rather than update.
func (c *ChangeRecord) IsTombstone() bool {
	return c.Removed != nil
}

// taskPage is one page of a paginated task listing.
type taskPage struct {
	Value    []Task `json:"value"`
	NextLink string `json:"@odata.nextLink"`
	Count    *int64 `json:"@odata.count"`
}

// deltaPage is one page of a delta response. DeltaLink appears only on the
// final page.
type deltaPage struct {
	Value     []ChangeRecord `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

// attachmentList is the attachments sub-resource response.
type attachmentList struct {
	Value []Attachment `json:"value"`
}
