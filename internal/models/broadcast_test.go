package models

import (
	"encoding/json"
	"testing"
)

func TestNormalize_LegacyTranslationShape(t *testing.T) {
	raw := []byte(`{"type":"translation","payload":"God is love.","lang":"en","meta":{"seq":5,"is_final":true,"source_text":"하나님은 사랑이십니다."}}`)

	seg, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected ok")
	}
	if seg.Seq == nil || *seg.Seq != 5 {
		t.Errorf("expected seq 5, got %v", seg.Seq)
	}
	if seg.Text != "God is love." {
		t.Errorf("unexpected text %q", seg.Text)
	}
	if !seg.IsFinal {
		t.Error("expected final")
	}
	if seg.SourceEcho != "하나님은 사랑이십니다." {
		t.Errorf("unexpected source echo %q", seg.SourceEcho)
	}
}

func TestNormalize_LegacyPartialFlag(t *testing.T) {
	raw := []byte(`{"type":"translation","payload":"God is","meta":{"seq":5,"partial":true}}`)

	seg, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected ok")
	}
	if seg.IsFinal {
		t.Error("partial:true must normalize to non-final")
	}
}

func TestNormalize_LegacyNoMeta_DefaultsNonFinal(t *testing.T) {
	raw := []byte(`{"type":"translation","payload":"hello"}`)

	seg, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected ok")
	}
	if seg.IsFinal {
		t.Error("legacy frame without meta must default to non-final")
	}
	if seg.Seq != nil {
		t.Error("expected nil seq")
	}
}

func TestNormalize_LegacySegmentIDFallback(t *testing.T) {
	raw := []byte(`{"type":"translation","payload":"x","meta":{"segment_id":7,"is_final":true}}`)

	seg, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected ok")
	}
	if seg.Seq == nil || *seg.Seq != 7 {
		t.Errorf("expected segment_id fallback to 7, got %v", seg.Seq)
	}
}

func TestNormalize_LiveShape_DefaultsFinal(t *testing.T) {
	raw := []byte(`{"mode":"live","text":"God is love.","seq":3,"src":{"text":"하나님은 사랑이십니다.","lang":"ko"},"tgt":{"lang":"en"}}`)

	seg, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected ok")
	}
	if !seg.IsFinal {
		t.Error("live mode without flags must default to final")
	}
	if seg.Seq == nil || *seg.Seq != 3 {
		t.Errorf("expected seq 3, got %v", seg.Seq)
	}
	if seg.SourceEcho != "하나님은 사랑이십니다." {
		t.Errorf("unexpected source echo %q", seg.SourceEcho)
	}
}

func TestNormalize_PreShape_DefaultsNonFinal(t *testing.T) {
	raw := []byte(`{"mode":"pre","text":"God is","seq":3}`)

	seg, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected ok")
	}
	if seg.IsFinal {
		t.Error("pre mode must default to non-final")
	}
}

func TestNormalize_Garbage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{{{`},
		{"unknown shape", `{"kind":"other"}`},
		{"empty payload", `{"type":"translation","payload":"   "}`},
		{"empty live text", `{"mode":"live","text":""}`},
		{"empty object", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Normalize([]byte(tt.raw)); ok {
				t.Errorf("expected %s to be dropped", tt.name)
			}
		})
	}
}

func TestLiveMessages_RoundTrip(t *testing.T) {
	live, legacy := LiveMessages(9, "God is love.", "하나님은 사랑이십니다.", "ko", "en")

	for _, env := range []Envelope{live, legacy} {
		raw, err := json.Marshal(env)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		seg, ok := Normalize(raw)
		if !ok {
			t.Fatalf("outbound frame failed to normalize: %s", raw)
		}
		if seg.Seq == nil || *seg.Seq != 9 {
			t.Errorf("expected seq 9, got %v", seg.Seq)
		}
		if !seg.IsFinal {
			t.Error("commit frames must be final")
		}
		if seg.Text != "God is love." {
			t.Errorf("unexpected text %q", seg.Text)
		}
	}
}

func TestPreviewMessage_NormalizesNonFinal(t *testing.T) {
	env := PreviewMessage(4, "God is", "하나님은", "ko", "en")
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	seg, ok := Normalize(raw)
	if !ok {
		t.Fatal("expected ok")
	}
	if seg.IsFinal {
		t.Error("preview frames must never normalize to final")
	}
	if seg.Seq == nil || *seg.Seq != 4 {
		t.Errorf("expected seq 4, got %v", seg.Seq)
	}
}
