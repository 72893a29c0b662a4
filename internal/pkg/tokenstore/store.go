package tokenstore

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

type TokenType int

const (
	TokenTypePairing TokenType = iota
	TokenTypeBearer
	TokenTypeRefresh
)

var tokenTypeNames = []string{"pairing", "bearer", "refresh"}

func (t TokenType) String() string {
	if int(t) < 0 || int(t) >= len(tokenTypeNames) {
		return fmt.Sprintf("unknown (id: %d)", t)
	}
	return tokenTypeNames[t]
}

// Record is one issued token.  Records are values: a refresh replaces the
// stored record, it never edits it.
type Record struct {
	Value     string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresIn time.Duration
}

func NewRecord(tokenType TokenType, value string, issuedAt time.Time, expiresIn time.Duration) Record {
	return Record{
		Value:     value,
		Type:      tokenType,
		IssuedAt:  issuedAt,
		ExpiresIn: expiresIn,
	}
}

// HasLifetime is false for tokens the vendor issues without an expiry
// (pairing and refresh tokens)
func (r Record) HasLifetime() bool {
	return r.ExpiresIn > 0
}

func (r Record) Expiry() time.Time {
	return r.IssuedAt.Add(r.ExpiresIn)
}

// IsExpired reports now >= expiry - margin.  Records without a lifetime
// never expire.
func (r Record) IsExpired(now time.Time, margin time.Duration) bool {
	if !r.HasLifetime() {
		return false
	}
	return !now.Before(r.Expiry().Add(-margin))
}

func hashOf(s string) string {
	if s == "" {
		return ""
	}
	sum := sha1.Sum([]byte(s))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// obfuscate the token value when stringified
func (r Record) String() string {
	if !r.HasLifetime() {
		return fmt.Sprintf("%s token [%s] issued [%s]", r.Type, hashOf(r.Value), r.IssuedAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("%s token [%s] issued [%s] expires [%s]", r.Type, hashOf(r.Value),
		r.IssuedAt.Format(time.RFC3339), r.Expiry().Format(time.RFC3339))
}

// Store holds the current record of each token type
type Store struct {
	mu      sync.RWMutex
	records map[TokenType]Record
	clock   func() time.Time
}

func New() *Store {
	return &Store{
		records: make(map[TokenType]Record),
		clock:   time.Now,
	}
}

// WithClock replaces the time source, used by expiry checks
func (s *Store) WithClock(clock func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
	return s
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock()
}

func (s *Store) Set(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Type] = r
}

// SetAll stores several records under a single lock so readers see either
// all or none of them
func (s *Store) SetAll(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.records[r.Type] = r
	}
}

func (s *Store) Get(t TokenType) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[t]
	if !ok || r.Value == "" {
		return Record{}, false
	}
	return r, true
}

func (s *Store) Clear(t TokenType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, t)
}

// DiscardBearer removes the bearer token only if it still holds value
func (s *Store) DiscardBearer(value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[TokenTypeBearer]; ok && r.Value == value {
		delete(s.records, TokenTypeBearer)
		return true
	}
	return false
}

// ValidBearer returns the bearer token if more than margin remains
func (s *Store) ValidBearer(margin time.Duration) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[TokenTypeBearer]
	if !ok || r.Value == "" || r.IsExpired(s.clock(), margin) {
		return Record{}, false
	}
	return r, true
}

func (s *Store) String() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	str := ""
	for _, t := range []TokenType{TokenTypePairing, TokenTypeBearer, TokenTypeRefresh} {
		if r, ok := s.records[t]; ok {
			if str != "" {
				str += ", "
			}
			str += r.String()
		}
	}
	return "tokens: {" + str + "}"
}
