package boundary

import (
	"regexp"
	"testing"
)

func TestIsBoundary_Korean(t *testing.T) {
	d := Default()

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"ends with imnida plus period", "오늘 하나님은 사랑이십니다.", true},
		{"ends with imnida no punct", "오늘 하나님은 사랑이십니다", true},
		{"ends with hamnida", "다 같이 기도하겠습니다.", true},
		{"mid-sentence conjunction", "그리고", false},
		{"mid-sentence noun", "오늘 하나", false},
		{"punctuation only", "...", false},
		{"empty", "", false},
		{"whitespace", "   ", false},
		{"ends with haesseoyo", "말씀을 전했어요", true},
		{"full-width punct stripped", "사랑이십니다。", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsBoundary(tt.text, "ko"); got != tt.want {
				t.Errorf("IsBoundary(%q, ko) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestIsBoundary_KoreanRegionSubtag(t *testing.T) {
	d := Default()
	if !d.IsBoundary("사랑이십니다.", "ko-KR") {
		t.Error("expected ko-KR to use the Korean rule")
	}
}

func TestIsBoundary_OtherLanguages(t *testing.T) {
	d := Default()

	tests := []struct {
		name string
		text string
		lang string
		want bool
	}{
		{"english period", "God is love.", "en", true},
		{"english question", "Is God love?", "en", true},
		{"english bang", "Rejoice!", "en", true},
		{"english no punct", "God is love", "en", false},
		{"english ellipsis", "and then…", "en", true},
		{"english ascii ellipsis", "and then...", "en", true},
		{"full-width question", "これは何？", "ja", true},
		{"spanish plain", "buenos dias", "es", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.IsBoundary(tt.text, tt.lang); got != tt.want {
				t.Errorf("IsBoundary(%q, %s) = %v, want %v", tt.text, tt.lang, got, tt.want)
			}
		})
	}
}

func TestIsBoundary_Idempotent(t *testing.T) {
	d := Default()
	text := "오늘 하나님은 사랑이십니다."
	first := d.IsBoundary(text, "ko")
	for i := 0; i < 5; i++ {
		if got := d.IsBoundary(text, "ko"); got != first {
			t.Fatalf("call %d changed result: %v -> %v", i, first, got)
		}
	}
}

func TestNew_CustomRules(t *testing.T) {
	d := New(Config{
		Rules: []LangRule{{
			Lang:     "xx",
			Patterns: []*regexp.Regexp{regexp.MustCompile("end$")},
		}},
	})

	if !d.IsBoundary("the end", "xx") {
		t.Error("expected custom pattern to match")
	}
	if d.IsBoundary("the end.", "yy") == false {
		// yy has no rule, falls back to punctuation.
		t.Error("expected punctuation fallback for unconfigured language")
	}
}

func TestKoreanRule_CustomEndings(t *testing.T) {
	d := New(Config{Rules: []LangRule{KoreanRule([]string{"니다"})}})
	if !d.IsBoundary("사랑이십니다", "ko") {
		t.Error("expected custom ending to match")
	}
	if d.IsBoundary("반가워요", "ko") {
		t.Error("expected non-listed ending to not match")
	}
}
