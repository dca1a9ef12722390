package queryview

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Location is the shareable page-location state. Write with an empty value
// removes the key.
type Location interface {
	Read(key string) (string, bool)
	Write(key, value string)
}

// URLState is a Location backed by a URL such as /queries/42?fullscreen=true.
type URLState struct {
	mu       sync.Mutex
	u        *url.URL
	onChange func(string)
}

// ParseURLState parses raw into a URLState. An empty raw yields "/".
func ParseURLState(raw string) (*URLState, error) {
	if raw == "" {
		raw = "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("queryview: parse location: %w", err)
	}
	return &URLState{u: u}, nil
}

// QueryLocation returns the canonical location of a query page.
func QueryLocation(queryID int64) *URLState {
	return &URLState{u: &url.URL{Path: fmt.Sprintf("/queries/%d", queryID)}}
}

// QueryID returns the id of a /queries/<id> location.
func (s *URLState) QueryID() (int64, bool) {
	s.mu.Lock()
	path := s.u.Path
	s.mu.Unlock()

	rest, ok := strings.CutPrefix(strings.TrimRight(path, "/"), "/queries/")
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// OnChange registers fn to receive the new location after every write.
func (s *URLState) OnChange(fn func(string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *URLState) Read(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.u.Query()
	if !q.Has(key) {
		return "", false
	}
	return q.Get(key), true
}

func (s *URLState) Write(key, value string) {
	s.mu.Lock()
	q := s.u.Query()
	if value == "" {
		q.Del(key)
	} else {
		q.Set(key, value)
	}
	s.u.RawQuery = q.Encode()
	loc := s.u.String()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(loc)
	}
}

// SetPath changes the path while keeping the query string.
func (s *URLState) SetPath(path string) {
	s.mu.Lock()
	s.u.Path = path
	loc := s.u.String()
	fn := s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(loc)
	}
}

func (s *URLState) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.u.String()
}
