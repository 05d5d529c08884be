package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gartstein/policydocs/internal/catalog/auth"
	"github.com/gartstein/policydocs/internal/catalog/db"
	e "github.com/gartstein/policydocs/internal/catalog/errors"
	"github.com/gartstein/policydocs/internal/catalog/events"
	"github.com/gartstein/policydocs/internal/catalog/filename"
	"github.com/gartstein/policydocs/internal/catalog/history"
	"github.com/gartstein/policydocs/internal/catalog/models"
	"go.uber.org/zap"
)

const (
	pdfMIME = "application/pdf"
	// sniffLen is the number of leading bytes inspected for the content type.
	sniffLen = 3072
)

// sniff detects the content type of r and returns a reader that still yields
// the whole content.
func sniff(r io.Reader) (*mimetype.MIME, io.Reader, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, nil, err
	}
	head = head[:n]
	return mimetype.Detect(head), io.MultiReader(bytes.NewReader(head), r), nil
}

func (s *Service) GetDocument(ctx context.Context, caller *auth.Caller, id int) (*models.Document, error) {
	if err := auth.Authorize(caller, auth.ViewDocuments, caller.Company.ID); err != nil {
		return nil, err
	}
	doc, err := s.repo.GetDocument(ctx, caller.Company.ID, id)
	if err != nil {
		return nil, wrap(err, "get document")
	}
	return doc, nil
}

// ListDocuments returns one page of the caller's company documents, newest
// first, narrowed by the query.
func (s *Service) ListDocuments(ctx context.Context, caller *auth.Caller, q models.DocumentQuery) (*models.DocumentPage, error) {
	if err := auth.Authorize(caller, auth.ViewDocuments, caller.Company.ID); err != nil {
		return nil, err
	}
	page, err := s.repo.SearchDocuments(ctx, caller.Company.ID, q)
	if err != nil {
		return nil, wrap(err, "list documents")
	}
	return page, nil
}

// DocumentHistory lists the recorded changes of a document, newest first.
func (s *Service) DocumentHistory(ctx context.Context, caller *auth.Caller, id int) ([]models.History, error) {
	doc, err := s.GetDocument(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.ListHistory(ctx, doc.ID)
	if err != nil {
		return nil, wrap(err, "list history")
	}
	return entries, nil
}

// Download opens the stored file of a document.
func (s *Service) Download(ctx context.Context, caller *auth.Caller, id int) (*models.Download, error) {
	doc, err := s.GetDocument(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	body, err := s.store.Get(ctx, doc.File)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			s.logger.Warn("stored file is missing",
				zap.String("file", doc.File),
				zap.String("document", doc.Slug()),
			)
		}
		return nil, wrap(err, "open file")
	}
	mt, r, err := sniff(body)
	if err != nil {
		body.Close()
		return nil, fmt.Errorf("%w: read %s: %v", e.ErrStorage, doc.File, err)
	}
	return &models.Download{
		Body:        readCloser{Reader: r, Closer: body},
		ContentType: mt.String(),
		FileName:    path.Base(doc.File),
	}, nil
}

type readCloser struct {
	io.Reader
	io.Closer
}

// CreateDocument stores an uploaded PDF as a new document. The returned
// notice is set when the file was stored under another name than the one
// sent.
func (s *Service) CreateDocument(ctx context.Context, caller *auth.Caller, in models.NewDocument) (*models.Document, *filename.Notice, error) {
	if err := auth.Authorize(caller, auth.ManageDocuments, caller.Company.ID); err != nil {
		return nil, nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.check(in); err != nil {
		return nil, nil, err
	}
	if in.ValidityStart.IsZero() {
		return nil, nil, e.Invalid("validity_start", "This field is required.")
	}
	if in.File == nil {
		return nil, nil, e.Invalid("file", "This field is required.")
	}
	if filename.Clean(in.FileName) == "" {
		return nil, nil, e.Invalid("file_name", "Enter a valid file name.")
	}
	mt, body, err := sniff(in.File)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if !mt.Is(pdfMIME) {
		return nil, nil, e.Invalid("file", "Only PDF files are accepted.")
	}

	doc := &models.Document{
		CompanyID:     caller.Company.ID,
		CompanyName:   caller.Company.Name,
		ValidityStart: truncateDate(in.ValidityStart),
		Title:         in.Title,
		Description:   in.Description,
		CreatedBy:     caller.User,
		CreatedAt:     s.now(),
	}
	var (
		resolution *filename.Resolution
		written    bool
	)
	err = s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		product, err := tx.GetProduct(ctx, caller.Company.ID, in.ProductID)
		if err != nil {
			return fmt.Errorf("product #%d: %w", in.ProductID, err)
		}
		category, err := tx.GetCategory(ctx, caller.Company.ID, in.CategoryID)
		if err != nil {
			return fmt.Errorf("category #%d: %w", in.CategoryID, err)
		}
		doc.Product, doc.Category = *product, *category

		conflict, err := tx.ConflictingDocument(ctx, caller.Company.ID, product.ID, category.ID, doc.ValidityStart, 0)
		if err != nil {
			return err
		}
		if conflict > 0 {
			return &e.DuplicateDocumentError{CompanyDocumentID: conflict}
		}

		doc.CompanyDocumentID, err = tx.NextID(ctx, caller.Company.ID, db.KindDocument)
		if err != nil {
			return err
		}

		resolution, err = filename.Resolve(ctx, caller.Company.Name, in.FileName, s.keyOwner(tx, caller.Company.ID))
		if err != nil {
			return err
		}
		doc.File = resolution.Key

		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		if err := s.store.Put(ctx, doc.File, body, mt.String()); err != nil {
			return err
		}
		written = true
		return nil
	})
	if err != nil {
		if written {
			if derr := s.store.Delete(context.WithoutCancel(ctx), doc.File); derr != nil {
				s.logger.Error("failed to remove file of rolled back document",
					zap.Error(derr),
					zap.String("file", doc.File),
				)
			}
		}
		return nil, nil, wrap(err, "create document")
	}

	s.logger.Info("document created",
		zap.String("document", doc.Slug()),
		zap.String("file", doc.File),
		zap.Uint("user_id", caller.User.ID),
	)
	s.producer.Produce(events.Event{
		Type:       events.DocumentCreated,
		Company:    caller.Company.Name,
		EntityID:   doc.CompanyDocumentID,
		Title:      doc.Title,
		File:       doc.File,
		ActorID:    caller.User.ID,
		OccurredAt: doc.CreatedAt,
	})
	return doc, resolution.Notice, nil
}

// keyOwner reports storage keys used by a document of the company or by a
// blob left in the store.
func (s *Service) keyOwner(tx *db.Repository, companyID uint) filename.Owner {
	return func(ctx context.Context, key string) (int, bool, error) {
		owner, err := tx.FileOwner(ctx, companyID, key)
		if err != nil {
			return 0, false, err
		}
		if owner > 0 {
			return owner, true, nil
		}
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return 0, false, err
		}
		return 0, exists, nil
	}
}

// EditDocument applies a partial update and records one history entry per
// changed field. The stored file is never replaced.
func (s *Service) EditDocument(ctx context.Context, caller *auth.Caller, upd models.DocumentUpdate) (*models.Document, error) {
	if err := auth.Authorize(caller, auth.ManageDocuments, caller.Company.ID); err != nil {
		return nil, err
	}
	if upd.Title != nil {
		*upd.Title = strings.TrimSpace(*upd.Title)
		if *upd.Title == "" {
			return nil, e.Invalid("title", "This field is required.")
		}
	}
	if upd.Description != nil {
		*upd.Description = strings.TrimSpace(*upd.Description)
	}
	if err := s.check(upd); err != nil {
		return nil, err
	}
	if upd.ValidityStart != nil && upd.ValidityStart.IsZero() {
		return nil, e.Invalid("validity_start", "This field is required.")
	}

	var (
		doc     *models.Document
		changes []history.Change
	)
	at := s.now()
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		doc, err = tx.GetDocument(ctx, caller.Company.ID, upd.CompanyDocumentID)
		if err != nil {
			return err
		}
		before := history.Take(doc)
		oldProduct, oldCategory, oldStart := doc.Product.ID, doc.Category.ID, doc.ValidityStart

		if upd.ProductID != nil {
			product, err := tx.GetProduct(ctx, caller.Company.ID, *upd.ProductID)
			if err != nil {
				return fmt.Errorf("product #%d: %w", *upd.ProductID, err)
			}
			doc.Product = *product
		}
		if upd.CategoryID != nil {
			category, err := tx.GetCategory(ctx, caller.Company.ID, *upd.CategoryID)
			if err != nil {
				return fmt.Errorf("category #%d: %w", *upd.CategoryID, err)
			}
			doc.Category = *category
		}
		if upd.ValidityStart != nil {
			doc.ValidityStart = truncateDate(*upd.ValidityStart)
		}
		if upd.Title != nil {
			doc.Title = *upd.Title
		}
		if upd.Description != nil {
			doc.Description = *upd.Description
		}

		if doc.Product.ID != oldProduct || doc.Category.ID != oldCategory || !doc.ValidityStart.Equal(oldStart) {
			conflict, err := tx.ConflictingDocument(ctx, caller.Company.ID,
				doc.Product.ID, doc.Category.ID, doc.ValidityStart, doc.ID)
			if err != nil {
				return err
			}
			if conflict > 0 {
				return &e.DuplicateDocumentError{CompanyDocumentID: conflict}
			}
		}

		if err := tx.UpdateDocument(ctx, doc); err != nil {
			return err
		}
		changes = history.Diff(before, history.Take(doc))
		return tx.CreateHistory(ctx, history.Entries(doc.ID, changes, caller.User, at))
	})
	if err != nil {
		if errors.Is(err, e.ErrDuplicate) && !errors.As(err, new(*e.DuplicateDocumentError)) {
			err = &e.DuplicateDocumentError{}
		}
		return nil, wrap(err, "edit document")
	}

	s.logger.Info("document edited",
		zap.String("document", doc.Slug()),
		zap.Int("changes", len(changes)),
		zap.Uint("user_id", caller.User.ID),
	)
	payload := make([]events.Change, 0, len(changes))
	for _, c := range changes {
		payload = append(payload, events.Change{Element: c.Element, From: c.From, To: c.To})
	}
	s.producer.Produce(events.Event{
		Type:       events.DocumentUpdated,
		Company:    caller.Company.Name,
		EntityID:   doc.CompanyDocumentID,
		Title:      doc.Title,
		File:       doc.File,
		Changes:    payload,
		ActorID:    caller.User.ID,
		OccurredAt: at,
	})
	return doc, nil
}

// DeleteDocument removes a document with its history and stored file.
func (s *Service) DeleteDocument(ctx context.Context, caller *auth.Caller, id int) error {
	if err := auth.Authorize(caller, auth.ManageDocuments, caller.Company.ID); err != nil {
		return err
	}

	var doc *models.Document
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		var err error
		doc, err = tx.GetDocument(ctx, caller.Company.ID, id)
		if err != nil {
			return err
		}
		return s.removeDocuments(ctx, tx, []models.Document{*doc})
	})
	if err != nil {
		return wrap(err, "delete document")
	}

	s.logger.Info("document deleted",
		zap.String("document", doc.Slug()),
		zap.Uint("user_id", caller.User.ID),
	)
	s.producer.Produce(events.Event{
		Type:       events.DocumentDeleted,
		Company:    caller.Company.Name,
		EntityID:   doc.CompanyDocumentID,
		Title:      doc.Title,
		File:       doc.File,
		ActorID:    caller.User.ID,
		OccurredAt: s.now(),
	})
	return nil
}

// truncateDate drops the time of day; validity starts are calendar dates.
func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
