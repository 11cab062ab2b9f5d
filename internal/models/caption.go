package models

// CaptionPartial is the archival event for a live source-language caption
// update (interim, not yet finalized).
type CaptionPartial struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	SourceLang string `json:"sourceLang"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

// CaptionFinal is the archival event for a committed clause with its
// translation.
type CaptionFinal struct {
	EventType  string `json:"eventType"`
	SessionID  string `json:"sessionId"`
	Seq        int64  `json:"seq"`
	SourceLang string `json:"sourceLang"`
	TargetLang string `json:"targetLang"`
	SourceText string `json:"sourceText"`
	Translated string `json:"translated"`
	Reason     string `json:"reason"`
	Timestamp  int64  `json:"timestamp"`
}
