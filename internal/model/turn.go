package model

type TurnState string

const (
	TurnReceived          TurnState = "RECEIVED"
	TurnRetrieving        TurnState = "RETRIEVING"
	TurnRetrieved         TurnState = "RETRIEVED"
	TurnRetrievalDegraded TurnState = "RETRIEVAL_DEGRADED"
	TurnComposing         TurnState = "COMPOSING"
	TurnCompleting        TurnState = "COMPLETING"
	TurnAnswered          TurnState = "ANSWERED"
	TurnFallbackAnswered  TurnState = "FALLBACK_ANSWERED"
)

func (s TurnState) Terminal() bool {
	return s == TurnAnswered || s == TurnFallbackAnswered
}

const FallbackNote = "fallback: no live backend"

// Provenance records which knowledge entries informed an answer.
type Provenance struct {
	EntryIDs          []int  `json:"entry_ids"`
	Fallback          bool   `json:"fallback"`
	RetrievalDegraded bool   `json:"retrieval_degraded"`
	Note              string `json:"note,omitempty"`
	IndexFingerprint  string `json:"index_fingerprint,omitempty"`
}

type Answer struct {
	SessionID  string     `json:"session_id"`
	Response   string     `json:"response"`
	Provenance Provenance `json:"provenance"`
	State      TurnState  `json:"turn_state"`
	Timestamp  int64      `json:"timestamp"`
}
