// Package gateway implements the webhook adapter: normalizes three
// input shapes into a fixed upstream chat-webhook envelope and
// dispatches it, including the upload-then-send path for files/images.
package gateway

import "errors"

var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind is the message shape sent upstream.
type Kind string

const (
	KindText         Kind = "text"
	KindMarkdown     Kind = "markdown"
	KindImage        Kind = "image"
	KindNews         Kind = "news"
	KindFile         Kind = "file"
	KindTemplateCard Kind = "template_card"
)

// Article is one entry of a news/link message.
type Article struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	PicURL      string `json:"picurl,omitempty"`
}

// Message is the normalized, typed descriptor produced by the Request
// Normalizer and consumed by the Payload Builder.
type Message struct {
	Kind Kind

	Content             string
	MentionedList       []string
	MentionedMobileList []string

	Base64 string
	MD5    string

	Articles []Article

	MediaID      string
	FileBytes    []byte
	FileName     string
	FileMIMEType string

	TemplateCard map[string]any
}

// DispatchResult is the structured response returned to the client.
type DispatchResult struct {
	OK             bool   `json:"ok"`
	UpstreamStatus int    `json:"upstream_status"`
	ErrCode        int    `json:"errcode"`
	ErrMsg         string `json:"errmsg"`

	MediaID       string `json:"media_id,omitempty"`
	UploadStatus  int    `json:"upload_status,omitempty"`
	UploadErrCode int    `json:"upload_errcode,omitempty"`
	UploadErrMsg  string `json:"upload_errmsg,omitempty"`
	SendStatus    int    `json:"send_status,omitempty"`
	SendErrCode   int    `json:"send_errcode,omitempty"`
	SendErrMsg    string `json:"send_errmsg,omitempty"`
}
