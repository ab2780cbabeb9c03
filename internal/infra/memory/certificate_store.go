package memory

import (
	"context"
	"sync"
	"time"
)

// CertificateStore keeps certificate eligibility records in memory, one per
// (userID, quizID) pair.
type CertificateStore struct {
	mu      sync.Mutex
	records map[string]certificateRecord
}

type certificateRecord struct {
	sessionID string
	decidedAt time.Time
}

func NewCertificateStore() *CertificateStore {
	return &CertificateStore{records: make(map[string]certificateRecord)}
}

func (s *CertificateStore) Record(_ context.Context, userID, quizID, sessionID string, decidedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "\x00" + quizID
	if _, ok := s.records[key]; ok {
		return false, nil
	}
	s.records[key] = certificateRecord{sessionID: sessionID, decidedAt: decidedAt}
	return true, nil
}
