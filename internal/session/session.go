// Package session represents a saved test session: the on-disk record
// that lets a later invocation fetch results for, resume, or cancel a
// session started earlier.
//
// Saved files decouple the later operations from the engine state — a
// resume run only needs the session URL, the access token, and the
// outstanding vector-set IDs, not the registration that produced them.
package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bfussell/libamvp/util"
)

// Saved is the JSON document written next to a running session and
// consumed by the get-results, resume, cancel, and expected-results
// operations.
type Saved struct {
	// ID is a client-local correlation identifier.
	ID string `json:"id"`
	// URL is the absolute server URL of the test session.
	URL string `json:"url"`
	// AccessToken is the JWT the server issued for this session.
	AccessToken string `json:"accessToken"`
	// VectorSetIDs are the vector sets the session was assigned.
	VectorSetIDs []int `json:"vectorSetIds"`
	// Pending are the vector sets that have not been submitted yet.
	Pending []int `json:"pending,omitempty"`
	// Sample marks a sample session (expected results available).
	Sample bool `json:"isSample,omitempty"`
	// CreatedAt is when the session was registered.
	CreatedAt time.Time `json:"createdAt"`
}

// New creates a Saved record with a fresh local ID.
func New(url, token string, vectorSetIDs []int) *Saved {
	return &Saved{
		ID:           uuid.NewString(),
		URL:          url,
		AccessToken:  token,
		VectorSetIDs: vectorSetIDs,
		Pending:      append([]int(nil), vectorSetIDs...),
		CreatedAt:    time.Now().UTC(),
	}
}

// Load reads and validates a saved session file.
func Load(path string) (*Saved, error) {
	var s Saved
	if err := util.ReadJSONFile(path, &s); err != nil {
		return nil, err
	}
	if s.URL == "" {
		return nil, fmt.Errorf("%s: saved session has no url", path)
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("%s: saved session has no access token", path)
	}
	return &s, nil
}

// Write persists the record to path.
func (s *Saved) Write(path string) error {
	return util.WriteJSONFile(path, s)
}

// MarkSubmitted removes id from the pending list.
func (s *Saved) MarkSubmitted(id int) {
	out := s.Pending[:0]
	for _, p := range s.Pending {
		if p != id {
			out = append(out, p)
		}
	}
	s.Pending = out
}
