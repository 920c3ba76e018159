package server

import (
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"bpo-assigner/formatter"
)

type download struct {
	artifact  formatter.Artifact
	expiresAt time.Time
}

// downloadStore keeps rendered artifacts in memory until their token expires.
type downloadStore struct {
	items *xsync.Map[string, download]
	now   func() time.Time
}

func newDownloadStore(now func() time.Time) *downloadStore {
	return &downloadStore{
		items: xsync.NewMap[string, download](),
		now:   now,
	}
}

func (s *downloadStore) put(a formatter.Artifact, ttl time.Duration) (token string) {
	now := s.now()
	s.purgeExpired(now)

	token = uuid.NewString()
	s.items.Store(token, download{artifact: a, expiresAt: now.Add(ttl)})
	return token
}

func (s *downloadStore) get(token string) (formatter.Artifact, bool) {
	v, ok := s.items.Load(token)
	if !ok {
		return formatter.Artifact{}, false
	}
	if s.now().After(v.expiresAt) {
		s.items.Delete(token)
		return formatter.Artifact{}, false
	}
	return v.artifact, true
}

func (s *downloadStore) size() int {
	return s.items.Size()
}

func (s *downloadStore) purgeExpired(now time.Time) {
	s.items.Range(func(token string, v download) bool {
		if now.After(v.expiresAt) {
			s.items.Delete(token)
		}
		return true
	})
}
