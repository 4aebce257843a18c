package gateway

import "testing"

func TestBuildEnvelopeText(t *testing.T) {
	env := BuildEnvelope(Message{Kind: KindText, Content: "hello"})
	if env["msgtype"] != "text" {
		t.Fatalf("msgtype = %v", env["msgtype"])
	}
	text, ok := env["text"].(map[string]any)
	if !ok || text["content"] != "hello" {
		t.Fatalf("unexpected text body: %+v", env["text"])
	}
}

func TestBuildEnvelopeNewsCapsAtEightArticles(t *testing.T) {
	articles := make([]Article, 10)
	for i := range articles {
		articles[i] = Article{Title: "t", URL: "https://x"}
	}
	env := BuildEnvelope(Message{Kind: KindNews, Articles: articles})
	news, ok := env["news"].(map[string]any)
	if !ok {
		t.Fatalf("missing news body")
	}
	list, ok := news["articles"].([]map[string]any)
	if !ok {
		t.Fatalf("articles not a list: %+v", news["articles"])
	}
	if len(list) != 8 {
		t.Fatalf("got %d articles, want 8", len(list))
	}
}

func TestBuildEnvelopeFileUsesMediaID(t *testing.T) {
	env := BuildEnvelope(Message{Kind: KindFile, MediaID: "media-123"})
	file, ok := env["file"].(map[string]any)
	if !ok || file["media_id"] != "media-123" {
		t.Fatalf("unexpected file body: %+v", env["file"])
	}
}

func TestBuildEnvelopeUnknownKindReturnsNil(t *testing.T) {
	if env := BuildEnvelope(Message{Kind: Kind("bogus")}); env != nil {
		t.Fatalf("expected nil, got %+v", env)
	}
}
