// Package progress defines the event structures emitted by the scrape
// pipeline and the hub that fans them out to sinks.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageRunDone     Stage = "RUN_DONE"
	StageRunError    Stage = "RUN_ERROR"
	StageDiscover    Stage = "DISCOVER"
	StageCacheHit    Stage = "CACHE_HIT"
	StageFetchDone   Stage = "FETCH_DONE"
	StageFetchFailed Stage = "FETCH_FAILED"
	StagePersistDone Stage = "PERSIST_DONE"
)

// Outcome labels how a persist completed.
type Outcome string

// Persist outcomes.
const (
	OutcomeStored Outcome = "stored"
	OutcomeDedup  Outcome = "dedup"
)

// Event captures a single milestone of scraper progress.
type Event struct {
	// RunID uniquely identifies a scrape run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or pipeline milestone occurred.
	Stage Stage
	// Site scopes fetch/persist events to the image host.
	Site string
	// URL is the optional thumbnail or search URL.
	URL string
	// Bytes carries the fetched payload size.
	Bytes int64
	// Count carries the number of new references for DISCOVER events.
	Count int64
	// Outcome labels PERSIST_DONE events as stored or dedup.
	Outcome Outcome
	// Dur captures execution latency where meaningful.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError, StageDiscover, StageCacheHit, StageFetchFailed:
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
	case StagePersistDone:
		if e.Outcome != OutcomeStored && e.Outcome != OutcomeDedup {
			return fmt.Errorf("persist done requires a valid outcome, got %q", e.Outcome)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for logging.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
