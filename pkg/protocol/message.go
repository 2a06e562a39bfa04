package protocol

import (
	"encoding/json"
	"fmt"
)

// MessageKind defines type of message
type MessageKind string

const (
	MessageKindCodec MessageKind = "codec"
	MessageKindEvent MessageKind = "event"
)

// Action defines action within a message kind
type Action string

const (
	ActionTokenize   Action = "tokenize"
	ActionDetokenize Action = "detokenize"
	ActionOneHot     Action = "one_hot"
	ActionVocabulary Action = "vocabulary"
	ActionEcho       Action = "echo"
)

// Message represents a protocol message. ID is echoed back so clients can
// match responses to requests.
type Message struct {
	Kind   MessageKind `json:"kind"`
	Action Action      `json:"action,omitempty"`
	ID     string      `json:"id,omitempty"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// TokenizeRequest asks for the code sequences of Texts.
type TokenizeRequest struct {
	Texts []string `json:"texts"`
}

// TokenizeResult carries one code sequence per requested text.
type TokenizeResult struct {
	Sequences [][]int `json:"sequences"`
}

// DetokenizeRequest asks for the texts of Sequences.
type DetokenizeRequest struct {
	Sequences [][]int `json:"sequences"`
}

// DetokenizeResult carries one text per requested sequence.
type DetokenizeResult struct {
	Texts []string `json:"texts"`
}

// OneHotRequest asks for one-hot matrices of Texts. MaxLength 0 means the
// longest text.
type OneHotRequest struct {
	Texts     []string `json:"texts"`
	MaxLength int      `json:"max_length,omitempty"`
}

// OneHotResult carries matrices of shape [len(texts)][max_length][width].
type OneHotResult struct {
	Shape    []int      `json:"shape"`
	Matrices [][][]bool `json:"matrices"`
}

// VocabularyResult describes the codec vocabulary.
type VocabularyResult struct {
	Size      int            `json:"size"`
	Width     int            `json:"width"`
	WordIndex map[string]int `json:"word_index,omitempty"`
}

// DecodeData converts msg.Data into v.
func DecodeData(msg *Message, v interface{}) error {
	if msg == nil || msg.Data == nil {
		return fmt.Errorf("message has no data")
	}
	raw, err := json.Marshal(msg.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("failed to decode data: %w", err)
	}
	return nil
}
