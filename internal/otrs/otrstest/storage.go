package otrstest

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Storage is an in-memory platform storage. Uploads get URLs of the form
// https://storage.test/objects/N.
type Storage struct {
	// FailUpload makes the n-th upload (1-based) fail when non-zero.
	FailUpload int

	mu      sync.Mutex
	objects map[string][]byte
	uploads int
}

// NewStorage returns an empty storage.
func NewStorage() *Storage {
	return &Storage{objects: map[string][]byte{}}
}

func (s *Storage) Upload(ctx context.Context, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads++
	if s.FailUpload != 0 && s.uploads == s.FailUpload {
		return "", errors.New("storage unavailable")
	}
	url := fmt.Sprintf("https://storage.test/objects/%d", s.uploads)
	s.objects[url] = append([]byte(nil), content...)
	return url, nil
}

func (s *Storage) Download(ctx context.Context, url string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[url]
	if !ok {
		return nil, fmt.Errorf("object %s not found", url)
	}
	return data, nil
}

// Put stores content under url directly.
func (s *Storage) Put(url string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[url] = content
}

// Uploads returns the number of upload attempts.
func (s *Storage) Uploads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploads
}
