package repo

import (
	"context"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

var documentFields = []string{"id", "name", "filename", "filepath", "size", "mime_type", "page_count", "state", "error_detail", "ctime", "mtime"}

type DocumentRepo struct {
	db *sqlx.DB
}

func NewDocumentRepo(db *sqlx.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":           doc.ID,
		"name":         doc.Name,
		"filename":     doc.Filename,
		"filepath":     doc.Filepath,
		"size":         doc.Size,
		"mime_type":    doc.MimeType,
		"page_count":   doc.PageCount,
		"state":        string(doc.State),
		"error_detail": doc.Error,
		"ctime":        doc.Ctime,
		"mtime":        doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(r.db.DriverName(), sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id": docID,
	}
	docs, err := r.selectDocuments(ctx, where)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNotFound
	}
	return &docs[0], nil
}

// List returns documents newest first. A zero limit returns every document.
func (r *DocumentRepo) List(ctx context.Context, limit, offset uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"_orderby": "ctime desc, id desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	return r.selectDocuments(ctx, where)
}

// ListByStateBefore returns documents in state whose last change is older than mtime.
func (r *DocumentRepo) ListByStateBefore(ctx context.Context, state model.DocumentState, mtime int64) ([]model.Document, error) {
	where := map[string]interface{}{
		"state":    string(state),
		"mtime <":  mtime,
		"_orderby": "mtime asc",
	}
	return r.selectDocuments(ctx, where)
}

func (r *DocumentRepo) UpdateState(ctx context.Context, docID string, state model.DocumentState, detail string, mtime int64) error {
	where := map[string]interface{}{
		"id": docID,
	}
	update := map[string]interface{}{
		"state":        string(state),
		"error_detail": detail,
		"mtime":        mtime,
	}
	affected, err := r.update(ctx, where, update)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// UpdateStateIf moves a document from one state to another. It returns false when the
// document is missing or no longer in from.
func (r *DocumentRepo) UpdateStateIf(ctx context.Context, docID string, from, to model.DocumentState, detail string, mtime int64) (bool, error) {
	where := map[string]interface{}{
		"id":    docID,
		"state": string(from),
	}
	update := map[string]interface{}{
		"state":        string(to),
		"error_detail": detail,
		"mtime":        mtime,
	}
	affected, err := r.update(ctx, where, update)
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *DocumentRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, "SELECT COUNT(1) FROM documents"); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DocumentRepo) update(ctx context.Context, where, update map[string]interface{}) (int64, error) {
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(r.db.DriverName(), sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *DocumentRepo) selectDocuments(ctx context.Context, where map[string]interface{}) ([]model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(r.db.DriverName(), sqlStr, args)
	docs := make([]model.Document, 0)
	if err := r.db.SelectContext(ctx, &docs, sqlStr, args...); err != nil {
		return nil, err
	}
	return docs, nil
}
