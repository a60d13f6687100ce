// Package audit keeps the append-only trail of compliance verdicts and
// accepted rebalancing plans.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind identifies what an audit record documents
type Kind string

const (
	KindOnboarding   Kind = "onboarding"
	KindVerdict      Kind = "verdict"
	KindPlanProposed Kind = "plan_proposed"
	KindPlanAccepted Kind = "plan_accepted"
)

// Record is one immutable audit entry. Payload holds the msgpack encoding
// of the documented decision.
type Record struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary"`
	Payload   []byte    `json:"-"`
}

// Decode unpacks the payload into v
func (r Record) Decode(v interface{}) error {
	dec := msgpack.NewDecoder(bytes.NewReader(r.Payload))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("failed to decode audit payload %s: %w", r.ID, err)
	}
	return nil
}

// MarshalJSON renders the record with its payload decoded
func (r Record) MarshalJSON() ([]byte, error) {
	type plain Record
	var payload interface{}
	if len(r.Payload) > 0 {
		if err := r.Decode(&payload); err != nil {
			return nil, err
		}
	}
	return json.Marshal(struct {
		plain
		Payload interface{} `json:"payload"`
	}{plain(r), payload})
}

func encodePayload(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Store is an append-only sink for audit records
type Store interface {
	Append(ctx context.Context, r Record) error
	ListByClient(ctx context.Context, clientID string, limit int) ([]Record, error)
	Unarchived(ctx context.Context, limit int) ([]Record, error)
	MarkArchived(ctx context.Context, ids []string) error
}

// Recorder stamps and persists audit records
type Recorder struct {
	store Store
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, log zerolog.Logger) *Recorder {
	return &Recorder{
		store: store,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
		log:   log.With().Str("component", "audit_recorder").Logger(),
	}
}

// Record encodes payload and appends a new record
func (r *Recorder) Record(ctx context.Context, kind Kind, clientID, summary string, payload interface{}) (Record, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return Record{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}

	rec := Record{
		ID:        r.newID(),
		Kind:      kind,
		ClientID:  clientID,
		Timestamp: r.now().UTC(),
		Summary:   summary,
		Payload:   data,
	}
	if err := r.store.Append(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("failed to append audit record: %w", err)
	}

	r.log.Debug().
		Str("id", rec.ID).
		Str("kind", string(kind)).
		Str("client_id", clientID).
		Int("payload_bytes", len(data)).
		Msg("Audit record written")

	return rec, nil
}

// History returns the newest records for a client, newest first
func (r *Recorder) History(ctx context.Context, clientID string, limit int) ([]Record, error) {
	return r.store.ListByClient(ctx, clientID, limit)
}
