package gateway

// BuildEnvelope assembles the fixed upstream JSON shape
// {msgtype, <kind>: {...}} for a validated Message. The file envelope
// carries only msg.MediaID; when a file message arrives without one, the
// Dispatcher uploads the bytes first and fills MediaID in before calling
// BuildEnvelope.
func BuildEnvelope(msg Message) map[string]any {
	switch msg.Kind {
	case KindText:
		body := map[string]any{"content": msg.Content}
		if len(msg.MentionedList) > 0 {
			body["mentioned_list"] = msg.MentionedList
		} else {
			body["mentioned_list"] = []string{}
		}
		if len(msg.MentionedMobileList) > 0 {
			body["mentioned_mobile_list"] = msg.MentionedMobileList
		} else {
			body["mentioned_mobile_list"] = []string{}
		}
		return map[string]any{"msgtype": "text", "text": body}
	case KindMarkdown:
		return map[string]any{"msgtype": "markdown", "markdown": map[string]any{"content": msg.Content}}
	case KindImage:
		return map[string]any{"msgtype": "image", "image": map[string]any{
			"base64": msg.Base64,
			"md5":    msg.MD5,
		}}
	case KindNews:
		articles := make([]map[string]any, 0, len(msg.Articles))
		for _, a := range msg.Articles {
			if a.Title == "" || a.URL == "" {
				continue
			}
			if len(articles) == 8 {
				break
			}
			articles = append(articles, map[string]any{
				"title":       a.Title,
				"url":         a.URL,
				"description": a.Description,
				"picurl":      a.PicURL,
			})
		}
		return map[string]any{"msgtype": "news", "news": map[string]any{"articles": articles}}
	case KindFile:
		return map[string]any{"msgtype": "file", "file": map[string]any{"media_id": msg.MediaID}}
	case KindTemplateCard:
		return map[string]any{"msgtype": "template_card", "template_card": msg.TemplateCard}
	default:
		return nil
	}
}
