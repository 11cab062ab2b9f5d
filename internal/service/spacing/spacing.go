// Package spacing restores word spacing in Korean live captions.
//
// Deepgram interim transcripts for Korean often arrive as unspaced Hangul
// runs. This applies greedy longest-match segmentation against a small
// worship-focused word list. It only touches text that has no spaces and
// is mostly Hangul, so already spaced or mixed-language captions pass
// through untouched.
package spacing

import (
	"bufio"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode"
)

const maxWordLen = 8

var tokenSplit = regexp.MustCompile(`([,.;!?·…]|\s+)`)

// fallbackWords seeds the segmenter when no word list file is configured.
var fallbackWords = []string{
	// Core liturgy and worship terms.
	"하나님", "예수님", "성령님", "주님", "말씀", "기도", "찬양", "예배", "봉헌",
	"사도신경", "축도", "찬송", "찬송가", "성경", "복음", "교회", "성도", "형제",
	"자매", "성가대", "헌금", "말씀을", "기도를", "찬양을", "예배를",
	"예배하며", "예배합시다", "예배드리며", "예배드립시다",
	"함께", "같이", "모두", "우리", "우리가", "우리의", "여러분",
	"형제자매", "가족", "주께", "주께서", "주님께", "주님께서",
	"일어나", "일어나서", "일어나셔서", "자리에서", "앉아", "앉아서",
	"축복", "축복합니다", "선포", "선포합니다", "기도합시다", "기도하겠습니다",
	"지금", "오늘", "오늘도", "다시", "임재", "은혜", "사랑", "영광", "감사",
	"회개", "구원",
	// Function words and particles.
	"그리고", "그러나", "또", "또한", "그래서", "그러므로", "왜냐하면", "하지만",
	"때", "때에", "때마다", "것", "것을", "것도", "것은", "것이",
	"모든", "다", "다음에", "서로",
	"에게", "에게서", "께", "께서", "에서", "으로", "로", "까지", "부터",
	"보다", "보다도", "조차", "마저", "도", "만", "만큼", "이나", "나",
	"과", "와", "및", "의", "에", "처럼", "동안", "위해", "위하여", "위해서",
	"안에서", "밖에서",
	// Common verbs in worship context.
	"받으시게", "받으시는", "들으시고", "들으시는", "나갈",
	"고백하며", "선포하며", "찬양하며", "기억하며", "돌아보며", "감사하며",
	// Single-character particles kept separated.
	"을", "를", "이", "가", "은", "는",
}

// Segmenter applies best-effort Korean spacing to unspaced Hangul text.
type Segmenter struct {
	once  sync.Once
	path  string
	words map[string]struct{}
}

// New creates a Segmenter. wordListPath optionally points to a newline
// separated word file ('#' comments allowed); when empty or unreadable
// the built-in list is used.
func New(wordListPath string) *Segmenter {
	return &Segmenter{path: wordListPath}
}

// Apply returns text with best-effort spacing. Only applies when the
// text is mostly Hangul and contains no existing spaces; otherwise the
// input is returned unchanged.
func (s *Segmenter) Apply(text string) string {
	if text == "" || strings.ContainsRune(text, ' ') || !mostlyHangul(text) {
		return text
	}
	s.once.Do(s.load)

	parts := tokenSplit.Split(text, -1)
	seps := tokenSplit.FindAllString(text, -1)
	var out []string
	for i, part := range parts {
		if part != "" {
			if isHangulRun(part) {
				out = append(out, s.segmentRun(part))
			} else {
				out = append(out, part)
			}
		}
		if i < len(seps) {
			sep := strings.TrimSpace(seps[i])
			if sep != "" {
				out = append(out, sep)
			}
		}
	}
	return strings.Join(out, " ")
}

func (s *Segmenter) load() {
	s.words = make(map[string]struct{})
	loaded := false
	if s.path != "" {
		if f, err := os.Open(s.path); err == nil {
			defer f.Close()
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				token := strings.TrimSpace(sc.Text())
				if token == "" || strings.HasPrefix(token, "#") {
					continue
				}
				s.words[token] = struct{}{}
				loaded = true
			}
		}
	}
	if !loaded {
		for _, w := range fallbackWords {
			s.words[w] = struct{}{}
		}
	}
	// Spaced entries also match as their unspaced form.
	for w := range s.words {
		if strings.Contains(w, " ") {
			s.words[strings.ReplaceAll(w, " ", "")] = struct{}{}
		}
	}
}

// segmentRun splits one contiguous Hangul run by greedy longest match.
// Unmatched runes pass through one at a time.
func (s *Segmenter) segmentRun(run string) string {
	runes := []rune(run)
	var out []string
	for i := 0; i < len(runes); {
		matched := ""
		upper := maxWordLen
		if rem := len(runes) - i; rem < upper {
			upper = rem
		}
		for l := upper; l > 0; l-- {
			chunk := string(runes[i : i+l])
			if _, ok := s.words[chunk]; ok {
				matched = chunk
				break
			}
		}
		if matched != "" {
			out = append(out, matched)
			i += len([]rune(matched))
		} else {
			out = append(out, string(runes[i]))
			i++
		}
	}
	return strings.Join(out, " ")
}

func mostlyHangul(text string) bool {
	total := 0
	hangul := 0
	for _, r := range text {
		total++
		if unicode.Is(unicode.Hangul, r) {
			hangul++
		}
	}
	return total > 0 && float64(hangul)/float64(total) >= 0.6
}

func isHangulRun(text string) bool {
	for _, r := range text {
		if !unicode.Is(unicode.Hangul, r) {
			return false
		}
	}
	return text != ""
}
