// Package solution holds remediation documents resolved for an error code.
package solution

import "time"

// Origin tells where a document's content came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
	OriginCached Origin = "cached"
)

// Document is the markdown remediation text for one error code.
type Document struct {
	Code      string    `json:"code"`
	Content   string    `json:"content"`
	Origin    Origin    `json:"origin"`
	FetchedAt time.Time `json:"fetched_at"`
}
