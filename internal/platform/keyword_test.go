package platform

import "testing"

func TestKeywordPlatformMatchesCaseInsensitive(t *testing.T) {
	p := &KeywordPlatform{}
	err := p.Initialize(map[string]any{
		"keywords": []any{
			map[string]any{"keyword": "Refund", "response": "Please contact billing."},
		},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	reply, err := p.ProcessMessage(t.Context(), Envelope{Content: "I need a REFUND please"})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if reply.NoReply || reply.Content != "Please contact billing." {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestKeywordPlatformNoMatchIsNoReply(t *testing.T) {
	p := &KeywordPlatform{}
	if err := p.Initialize(map[string]any{"keywords": []any{}}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	reply, err := p.ProcessMessage(t.Context(), Envelope{Content: "hello"})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !reply.NoReply {
		t.Fatalf("expected NoReply, got %+v", reply)
	}
}

func TestKeywordPlatformCaseSensitive(t *testing.T) {
	p := &KeywordPlatform{}
	err := p.Initialize(map[string]any{
		"case_sensitive": true,
		"keywords": []any{
			map[string]any{"keyword": "HELP", "response": "escalating"},
		},
	})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	reply, err := p.ProcessMessage(t.Context(), Envelope{Content: "help"})
	if err != nil {
		t.Fatalf("ProcessMessage: %v", err)
	}
	if !reply.NoReply {
		t.Fatalf("expected no match under case-sensitive mode, got %+v", reply)
	}
}
