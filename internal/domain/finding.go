// Package domain holds the value types shared by every stage of a research
// run: findings, source descriptors, and the event stream vocabulary.
package domain

// Finding is one piece of extracted text attributed to the URL it came
// from. Immutable once appended to a Research State.
type Finding struct {
	Text   string `json:"text"`
	Source string `json:"source"`
}

// SourceDescriptor is a weak reference to a search result surfaced to the
// event sink. It is never attached to a Finding.
type SourceDescriptor struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}
