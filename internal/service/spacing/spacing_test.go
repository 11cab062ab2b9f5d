package spacing

import "testing"

func TestApply_SegmentsUnspacedHangul(t *testing.T) {
	s := New("")

	got := s.Apply("하나님은사랑")
	want := "하나님 은 사랑"
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
}

func TestApply_LeavesSpacedTextAlone(t *testing.T) {
	s := New("")

	in := "오늘 하나님은 사랑이십니다."
	if got := s.Apply(in); got != in {
		t.Errorf("Apply changed already spaced text: %q", got)
	}
}

func TestApply_LeavesNonHangulAlone(t *testing.T) {
	s := New("")

	tests := []string{
		"God-is-love.",
		"hello",
		"",
		"123456",
	}
	for _, in := range tests {
		if got := s.Apply(in); got != in {
			t.Errorf("Apply(%q) = %q, want unchanged", in, got)
		}
	}
}

func TestApply_PreservesPunctuation(t *testing.T) {
	s := New("")

	got := s.Apply("기도합시다.")
	want := "기도합시다 ."
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
}

func TestApply_MissingWordListFallsBack(t *testing.T) {
	s := New("/nonexistent/path/words.txt")

	got := s.Apply("하나님은사랑")
	want := "하나님 은 사랑"
	if got != want {
		t.Errorf("Apply = %q, want %q", got, want)
	}
}
