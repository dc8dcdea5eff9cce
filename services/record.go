package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ceramicnetwork/go-fanout/models"
)

// signedContent is the canonical encoding that a record's id and signature cover.
type signedContent struct {
	StableKey string    `json:"key"`
	AuthorId  string    `json:"author"`
	CreatedAt time.Time `json:"ts"`
	Payload   []byte    `json:"payload"`
}

// SignRecord assigns a content id to the draft and signs it.
func SignRecord(signer models.Signer, draft models.RecordDraft) (*models.Record, error) {
	if len(draft.AuthorId) == 0 {
		return nil, errors.New("signRecord: missing author id")
	}
	createdAt := draft.CreatedAt.UTC()
	content, err := json.Marshal(signedContent{draft.StableKey, draft.AuthorId, createdAt, draft.Payload})
	if err != nil {
		return nil, fmt.Errorf("signRecord: error encoding record: %w", err)
	}
	if recordId, err := models.ContentId(content); err != nil {
		return nil, fmt.Errorf("signRecord: error computing record id: %w", err)
	} else if signature, err := signer.Sign(content); err != nil {
		return nil, fmt.Errorf("signRecord: error signing record %s: %w", recordId, err)
	} else {
		return &models.Record{
			Id:        recordId,
			StableKey: draft.StableKey,
			AuthorId:  draft.AuthorId,
			CreatedAt: createdAt,
			Payload:   draft.Payload,
			Signature: signature,
		}, nil
	}
}
