// Package review holds the editable review draft a reviewer builds from the
// latest extraction before submitting a decision.
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/ingest"
)

var ErrIndexOutOfRange = errors.New("draft index out of range")

// Draft is owned by the caller; nothing in the service keeps a reference to
// it after submission.
type Draft struct {
	Items []ingest.Candidate
}

// NewDraft copies candidates so edits never alias the extraction payload.
func NewDraft(candidates []ingest.Candidate) *Draft {
	items := make([]ingest.Candidate, len(candidates))
	copy(items, candidates)
	return &Draft{Items: items}
}

// ParseDraft decodes a JSON array of candidates.
func ParseDraft(data []byte) (*Draft, error) {
	var items []ingest.Candidate
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ingest.ErrInvalidPayload, err)
	}
	return &Draft{Items: items}, nil
}

func (d *Draft) Len() int { return len(d.Items) }

// Set replaces the entry at i.
func (d *Draft) Set(i int, c ingest.Candidate) error {
	if i < 0 || i >= len(d.Items) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	d.Items[i] = c
	return nil
}

// Remove deletes the entry at i, preserving order.
func (d *Draft) Remove(i int) error {
	if i < 0 || i >= len(d.Items) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, i)
	}
	d.Items = append(d.Items[:i], d.Items[i+1:]...)
	return nil
}

// Append adds an entry at the end.
func (d *Draft) Append(c ingest.Candidate) {
	d.Items = append(d.Items, c)
}

// Validate checks that every set direction is known and every set date
// parses. Unset fields are allowed; finalization fills defaults.
func (d *Draft) Validate() error {
	for i, c := range d.Items {
		if c.Direction != nil && *c.Direction != "" && !c.Direction.Valid() {
			return fmt.Errorf("%w: item %d has invalid tipo %q", ingest.ErrInvalidPayload, i, string(*c.Direction))
		}
		if c.Date != nil && strings.TrimSpace(*c.Date) != "" {
			if _, ok := c.ParsedDate(); !ok {
				return fmt.Errorf("%w: item %d has invalid data %q", ingest.ErrInvalidPayload, i, *c.Date)
			}
		}
	}
	return nil
}

// MarshalJSON encodes the draft as the bare candidate array.
func (d *Draft) MarshalJSON() ([]byte, error) {
	if d == nil || d.Items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(d.Items)
}
