package model

import "time"

// Document is a file uploaded into a conversation. Text holds the extracted
// text used as assistant context; it is empty for binary files.
type Document struct {
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Text        string    `json:"-"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
