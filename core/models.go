package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// HashContent computes the hex-encoded BLAKE2b-256 digest of raw bytes.
// Byte-identical content always produces the same hash, which is what
// makes blob deduplication work.
func HashContent(data []byte) string {
	h, _ := blake2b.New(32, nil)
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// IngestionStatus tracks a knowledge asset through its processing lifecycle.
type IngestionStatus int

const (
	// StatusPending means the asset is registered and waiting for a worker.
	StatusPending IngestionStatus = iota + 1
	// StatusProcessing means a worker is actively analyzing the asset.
	StatusProcessing
	// StatusCompleted means analysis finished and chunks were indexed.
	StatusCompleted
	// StatusStoredNoIndex means extraction succeeded but produced no chunks.
	StatusStoredNoIndex
	// StatusFailed is terminal: attempts were exhausted or validation failed.
	StatusFailed
	// StatusStuck is a diagnostic state set by the recovery loop when a
	// worker appears to have crashed mid-flight. Workers never set it.
	StatusStuck
)

// String returns the status name used in logs and audit events.
func (s IngestionStatus) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusProcessing:
		return "PROCESSING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusStoredNoIndex:
		return "STORED_NO_INDEX"
	case StatusFailed:
		return "FAILED"
	case StatusStuck:
		return "STUCK"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Terminal reports whether the status permits no further transitions.
func (s IngestionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusStoredNoIndex || s == StatusFailed
}

// ChunkStrategy selects how document text is split into retrievable chunks.
type ChunkStrategy int

const (
	// StrategySimple is a fixed-size sliding window with overlap. Deterministic.
	StrategySimple ChunkStrategy = iota + 1
	// StrategySemantic groups text by paragraph and heading boundaries before
	// windowing oversized groups.
	StrategySemantic
	// StrategyLLM delegates boundary detection to a generation model.
	StrategyLLM
)

// String returns the strategy tag persisted on chunks.
func (s ChunkStrategy) String() string {
	switch s {
	case StrategySimple:
		return "SIMPLE"
	case StrategySemantic:
		return "SEMANTIC"
	case StrategyLLM:
		return "LLM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// KnowledgeAsset is one logical document owned by a tenant. It carries the
// ingestion lifecycle state that the state machine and recovery loop mutate.
type KnowledgeAsset struct {
	Id          ID
	Tenant      string
	Environment string
	Filename    string
	ContentHash string // BLAKE2b-256 of the uploaded bytes; points at a Blob
	Status      IngestionStatus
	Progress    int // 0-100
	Attempts    int
	LastError   string
	TotalChunks int
	Deleted     bool // soft delete; GC treats deleted assets as non-referencing
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Blob is the record side of a content-addressable binary. The bytes
// themselves live in a BlobStore; this record carries the reference count
// that the garbage collector relies on.
type Blob struct {
	Hash           string
	Tenant         string
	Location       string // BlobStore location the bytes were uploaded to
	SizeBytes      int64
	RefCount       int
	CreatedAt      time.Time
	UnreferencedAt time.Time // set when RefCount drops to zero, cleared on reuse
}

// DocumentChunk is one retrievable unit of an asset's extracted text.
type DocumentChunk struct {
	Id        ID
	AssetId   ID
	Tenant    string
	Seq       int
	StartIdx  int
	EndIdx    int
	Kind      string // boundary type for LLM chunks (heading, table, list, ...)
	Strategy  ChunkStrategy
	Text      string
	Vector    []float32 // empty when embedding was skipped (quota exhaustion)
	CreatedAt time.Time
}

// ChunkMatch represents a chunk match from vector similarity search.
type ChunkMatch struct {
	Chunk *DocumentChunk
	Score float32
}

// JobStatus tracks a queued ingestion job.
type JobStatus int

const (
	// JobWaiting means the job is enqueued and eligible for pickup.
	JobWaiting JobStatus = iota + 1
	// JobActive means a worker holds the job under a lease.
	JobActive
	// JobDelayed means the job failed and is waiting out its backoff delay.
	JobDelayed
	// JobCompleted means the job finished successfully.
	JobCompleted
	// JobFailed is terminal at the queue level; retained for inspection.
	JobFailed
)

// String returns the queue status name.
func (s JobStatus) String() string {
	switch s {
	case JobWaiting:
		return "waiting"
	case JobActive:
		return "active"
	case JobDelayed:
		return "delayed"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Unresolved reports whether the job still occupies its deterministic key.
// A waiting, active or delayed job suppresses duplicate submissions.
func (s JobStatus) Unresolved() bool {
	return s == JobWaiting || s == JobActive || s == JobDelayed
}

// IngestionJob is the durable queue entity for one unit of ingestion work.
// Its Key is deterministic so that re-submitting the same document while a
// job is still unresolved is a no-op rather than a duplicate.
type IngestionJob struct {
	Key           string
	AssetId       ID
	Tenant        string
	Environment   string
	CorrelationId string
	Strategy      ChunkStrategy // chunking strategy requested for this run
	Status        JobStatus
	Attempts      int
	LastError     string
	NotBefore     time.Time // earliest pickup time; used for retry backoff
	LeaseExpiry   time.Time // set while active; an elapsed lease marks a lost worker
	EnqueuedAt    time.Time
	UpdatedAt     time.Time
}

// JobKey derives the deterministic queue key for a document in an environment.
// At most one unresolved job may exist per key.
func JobKey(assetID ID, environment string) string {
	return fmt.Sprintf("ingest:%s:%d", environment, assetID)
}
