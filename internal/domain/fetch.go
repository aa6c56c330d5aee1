package domain

import "context"

// GroupFetcher resolves group metadata by group id. A failed or timed-out
// fetch returns an error; callers degrade to absent metadata instead of
// failing the message.
type GroupFetcher interface {
	GroupMetadata(ctx context.Context, groupID string) (*GroupMetadata, error)
}

// AttachmentFetcher retrieves an attachment binary and returns a
// consumer-addressable URL for it.
type AttachmentFetcher interface {
	FetchAttachment(ctx context.Context, attachmentID, filename string) (string, error)
}
