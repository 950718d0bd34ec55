package model

import (
	"fmt"
	"strings"
)

type Conversation struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	Sources    []int  `json:"sources"`
	Ctime      int64  `json:"ctime"`
}

// NewConversation validates a question/answer exchange. Sources keep their order and
// default to an empty slice.
func NewConversation(id, documentID, question, answer string, sources []int, now int64) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("conversation document id is required")
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("conversation question is required")
	}
	if strings.TrimSpace(answer) == "" {
		return nil, fmt.Errorf("conversation answer is required")
	}
	copied := make([]int, len(sources))
	copy(copied, sources)
	return &Conversation{
		ID:         id,
		DocumentID: documentID,
		Question:   question,
		Answer:     answer,
		Sources:    copied,
		Ctime:      now,
	}, nil
}
