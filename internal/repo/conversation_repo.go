package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const insertConversationSQL = "INSERT INTO conversations (id, document_id, question, answer, sources_json, ctime, seq) " +
	"SELECT CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS TEXT), CAST(? AS BIGINT), COALESCE(MAX(seq), 0) + 1 " +
	"FROM conversations WHERE document_id = ?"

type ConversationRepo struct {
	db *sqlx.DB
}

type conversationRow struct {
	ID          string `db:"id"`
	DocumentID  string `db:"document_id"`
	Question    string `db:"question"`
	Answer      string `db:"answer"`
	SourcesJSON string `db:"sources_json"`
	Ctime       int64  `db:"ctime"`
}

func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	sources := conv.Sources
	if sources == nil {
		sources = []int{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	// seq numbers exchanges per document so equal ctimes keep insertion order
	query, args := dbutil.Finalize(r.db.DriverName(), insertConversationSQL, []interface{}{
		conv.ID, conv.DocumentID, conv.Question, conv.Answer, string(sourcesJSON), conv.Ctime, conv.DocumentID,
	})
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// ListByDocument returns the exchanges for a document oldest first.
func (r *ConversationRepo) ListByDocument(ctx context.Context, docID string) ([]model.Conversation, error) {
	where := map[string]interface{}{
		"document_id": docID,
		"_orderby":    "ctime asc, seq asc, id asc",
	}
	sqlStr, args, err := builder.BuildSelect("conversations", where, []string{"id", "document_id", "question", "answer", "sources_json", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(r.db.DriverName(), sqlStr, args)
	rows := make([]conversationRow, 0)
	if err := r.db.SelectContext(ctx, &rows, sqlStr, args...); err != nil {
		return nil, err
	}
	convs := make([]model.Conversation, 0, len(rows))
	for _, row := range rows {
		conv := model.Conversation{
			ID:         row.ID,
			DocumentID: row.DocumentID,
			Question:   row.Question,
			Answer:     row.Answer,
			Sources:    []int{},
			Ctime:      row.Ctime,
		}
		if row.SourcesJSON != "" {
			if err := json.Unmarshal([]byte(row.SourcesJSON), &conv.Sources); err != nil {
				return nil, fmt.Errorf("decode sources of conversation %s: %w", row.ID, err)
			}
		}
		convs = append(convs, conv)
	}
	return convs, nil
}

func (r *ConversationRepo) CountByDocument(ctx context.Context, docID string) (int, error) {
	query, args := dbutil.Finalize(r.db.DriverName(), "SELECT COUNT(1) FROM conversations WHERE document_id = ?", []interface{}{docID})
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}
