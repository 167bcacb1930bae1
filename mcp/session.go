package mcp

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// RefKind says what a session reference points at.
type RefKind string

const (
	RefLead        RefKind = "L"
	RefAppointment RefKind = "A"
)

// Session hands out short references (L1, A1, ...) for records surfaced
// during one MCP session so an agent can refer back to them. Each kind has
// its own counter.
type Session struct {
	mu       sync.Mutex
	refs     map[string]uuid.UUID
	reverse  map[string]string
	counters map[RefKind]int
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{
		refs:     make(map[string]uuid.UUID),
		reverse:  make(map[string]string),
		counters: make(map[RefKind]int),
	}
}

// Track returns the reference for id, assigning the next one if id is new.
func (s *Session) Track(kind RefKind, id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := string(kind) + ":" + id.String()
	if ref, ok := s.reverse[key]; ok {
		return ref
	}
	s.counters[kind]++
	ref := fmt.Sprintf("%s%d", kind, s.counters[kind])
	s.refs[ref] = id
	s.reverse[key] = ref
	return ref
}

// Resolve accepts a session reference of the given kind or a raw UUID.
func (s *Session) Resolve(kind RefKind, ref string) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return uuid.Nil, fmt.Errorf("reference is required")
	}
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ref = strings.ToUpper(ref)
	if !strings.HasPrefix(ref, string(kind)) {
		return uuid.Nil, fmt.Errorf("%q does not name %s", ref, kindName(kind))
	}
	id, ok := s.refs[ref]
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown reference %q", ref)
	}
	return id, nil
}

// Clear drops every reference and resets the counters.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs = make(map[string]uuid.UUID)
	s.reverse = make(map[string]string)
	s.counters = make(map[RefKind]int)
}

func kindName(k RefKind) string {
	switch k {
	case RefLead:
		return "a lead"
	case RefAppointment:
		return "an appointment"
	default:
		return string(k)
	}
}
