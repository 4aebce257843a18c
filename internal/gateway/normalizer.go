package gateway

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

const maxUploadBytes = 20 << 20

// Normalize reduces one of the three accepted request shapes to a typed
// Message. The caller still must run Validate before dispatch.
func Normalize(r *http.Request) (Message, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case mediaType == "application/json":
		return normalizeJSON(r)
	case mediaType == "multipart/form-data":
		return normalizeMultipart(r)
	default:
		return normalizeRawText(r)
	}
}

func normalizeJSON(r *http.Request) (Message, error) {
	var raw struct {
		Type                string         `json:"type"`
		Content             string         `json:"content"`
		MentionedList       []string       `json:"mentioned_list"`
		MentionedMobileList []string       `json:"mentioned_mobile_list"`
		Base64              string         `json:"base64"`
		MD5                 string         `json:"md5"`
		Articles            []Article      `json:"articles"`
		Title               string         `json:"title"`
		URL                 string         `json:"url"`
		Description         string         `json:"description"`
		PicURL              string         `json:"picurl"`
		MediaID             string         `json:"media_id"`
		TemplateCard        map[string]any `json:"template_card"`
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes+4096))
	if err != nil {
		return Message{}, fmt.Errorf("%w: failed to read body", ErrValidation)
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return Message{}, fmt.Errorf("%w: invalid JSON body", ErrValidation)
	}

	kind := Kind(strings.ToLower(strings.TrimSpace(raw.Type)))
	if kind == "" {
		kind = KindText
	}
	if kind == "link" {
		kind = KindNews
	}

	msg := Message{
		Kind:                kind,
		Content:             raw.Content,
		MentionedList:       raw.MentionedList,
		MentionedMobileList: raw.MentionedMobileList,
		Base64:              raw.Base64,
		MD5:                 raw.MD5,
		Articles:            raw.Articles,
		MediaID:             raw.MediaID,
		TemplateCard:        raw.TemplateCard,
	}
	if len(msg.Articles) == 0 && raw.Title != "" && raw.URL != "" {
		msg.Articles = []Article{{Title: raw.Title, URL: raw.URL, Description: raw.Description, PicURL: raw.PicURL}}
	}
	if msg.Kind == KindImage && msg.Base64 != "" && msg.MD5 == "" {
		decoded, err := base64.StdEncoding.DecodeString(msg.Base64)
		if err != nil {
			return Message{}, fmt.Errorf("%w: invalid base64 image payload", ErrValidation)
		}
		msg.MD5 = hex.EncodeToString(md5Sum(decoded))
	}
	return msg, nil
}

func normalizeMultipart(r *http.Request) (Message, error) {
	if err := r.ParseMultipartForm(maxUploadBytes + (1 << 20)); err != nil {
		return Message{}, fmt.Errorf("%w: invalid multipart body", ErrValidation)
	}
	defer r.MultipartForm.RemoveAll()

	kind := KindFile
	if strings.EqualFold(r.FormValue("type"), "image") {
		kind = KindImage
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return Message{}, fmt.Errorf("%w: missing form field \"file\"", ErrValidation)
	}
	defer file.Close()

	if header.Size <= 5 || header.Size > maxUploadBytes {
		return Message{}, fmt.Errorf("%w: file size out of bounds", ErrValidation)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return Message{}, fmt.Errorf("%w: failed to read uploaded file", ErrValidation)
	}

	msg := Message{
		Kind:         kind,
		FileBytes:    data,
		FileName:     header.Filename,
		FileMIMEType: header.Header.Get("Content-Type"),
	}
	if kind == KindImage {
		msg.MD5 = hex.EncodeToString(md5Sum(data))
		msg.Base64 = base64.StdEncoding.EncodeToString(data)
	}
	return msg, nil
}

func normalizeRawText(r *http.Request) (Message, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		return Message{}, fmt.Errorf("%w: failed to read body", ErrValidation)
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(r.URL.Query().Get("type"))))
	if kind != KindMarkdown {
		kind = KindText
	}
	return Message{Kind: kind, Content: string(data)}, nil
}

func md5Sum(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}
