package model

// FAQEntry is a stored question/answer pair. The admin dashboard owns these;
// the call flow only reads them.
type FAQEntry struct {
	ID       string
	Question string
	Answer   string
	Tags     []string
}
