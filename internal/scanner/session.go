package scanner

// session tracks the posts already processed within one scan
// invocation, so the same post fetched from multiple listing endpoints
// is handled once. Titles are tracked alongside URLs to catch reposts.
// A session lives for exactly one Scan call.
type session struct {
	urls   map[string]struct{}
	titles map[string]struct{}
}

func newSession() *session {
	return &session{
		urls:   make(map[string]struct{}),
		titles: make(map[string]struct{}),
	}
}

// Claim records the post and reports whether it was unseen. A false
// return means the post was already processed in this session.
func (s *session) Claim(url, title string) bool {
	if _, ok := s.urls[url]; ok {
		return false
	}
	if _, ok := s.titles[title]; ok {
		return false
	}
	s.urls[url] = struct{}{}
	s.titles[title] = struct{}{}
	return true
}
