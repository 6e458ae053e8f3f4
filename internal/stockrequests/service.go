package stockrequests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

const (
	workflowCreate  = "stock_request_create"
	workflowApprove = "stock_request_approve"
	workflowReject  = "stock_request_reject"

	msgHasStock         = "product has stock"
	msgAlreadyApproved  = "stock request already approved for this product"
	msgAlreadyPending   = "stock request already pending for this product"
	msgAlreadyProcessed = "request already processed"
)

// Service defines the restock request workflow.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateInput) (*StockRequestDTO, error)
	Approve(ctx context.Context, actor authz.Actor, requestID int64, expectedCompletion *time.Time) (*StockRequestDTO, error)
	Reject(ctx context.Context, actor authz.Actor, requestID int64) (*StockRequestDTO, error)
	ListMine(ctx context.Context, actor authz.Actor, params pagination.Params) (*StockRequestList, error)
	ListForSeller(ctx context.Context, actor authz.Actor, params pagination.Params) (*StockRequestList, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ProductLoader reads a single product.
type ProductLoader interface {
	FindByID(ctx context.Context, id int64) (*models.Product, error)
}

type outcomeRecorder interface {
	Observe(workflow string, err error)
}

type noopOutcomes struct{}

func (noopOutcomes) Observe(string, error) {}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	products ProductLoader
	outcomes outcomeRecorder
	logg     *logger.Logger
}

// NewService builds the stock request workflow. outcomes and logg may be nil.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, products ProductLoader, outcomes outcomeRecorder, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("stock request repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if outcomes == nil {
		outcomes = noopOutcomes{}
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, tx: tx, outbox: outbox, products: products, outcomes: outcomes, logg: logg}, nil
}

func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (*StockRequestDTO, error) {
	dto, err := s.create(ctx, actor, input)
	s.outcomes.Observe(workflowCreate, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"stock_request_id": dto.ID,
		"product_id":       dto.ProductID,
	}), "stock_request.created")
	return dto, nil
}

func (s *service) create(ctx context.Context, actor authz.Actor, input CreateInput) (*StockRequestDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
	}
	p, err := s.products.FindByID(ctx, input.ProductID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load product")
	}
	if p.Status != enums.ProductStatusApproved {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product is not available")
	}
	if p.Stock > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgHasStock)
	}

	existing, err := s.repo.FindActive(ctx, p.ID, actor.AccountID)
	switch {
	case err == nil && existing.Status == enums.RequestStatusApproved:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyApproved)
	case err == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyPending)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load stock requests")
	}

	request := &models.StockRequest{
		ProductID: p.ID,
		UserID:    actor.AccountID,
		Quantity:  input.Quantity,
		Status:    enums.RequestStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyPending)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: insert stock request")
		}
		return s.emit(ctx, tx, actor, enums.EventStockRequested, request)
	})
	if err != nil {
		return nil, err
	}
	request.Product = p
	dto := NewStockRequestDTO(request)
	return &dto, nil
}

func (s *service) Approve(ctx context.Context, actor authz.Actor, requestID int64, expectedCompletion *time.Time) (*StockRequestDTO, error) {
	dto, err := s.approve(ctx, actor, requestID, expectedCompletion)
	s.outcomes.Observe(workflowApprove, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithUserID(ctx, actor.AccountID), "stock_request_id", requestID), "stock_request.approved")
	return dto, nil
}

func (s *service) approve(ctx context.Context, actor authz.Actor, requestID int64, expectedCompletion *time.Time) (*StockRequestDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if expectedCompletion == nil || expectedCompletion.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected completion date is required")
	}
	return s.decide(ctx, actor, requestID, enums.RequestStatusApproved, expectedCompletion)
}

func (s *service) Reject(ctx context.Context, actor authz.Actor, requestID int64) (*StockRequestDTO, error) {
	dto, err := s.decide(ctx, actor, requestID, enums.RequestStatusRejected, nil)
	s.outcomes.Observe(workflowReject, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithUserID(ctx, actor.AccountID), "stock_request_id", requestID), "stock_request.rejected")
	return dto, nil
}

// decide is shared by approve and reject. Only the product's seller may
// decide and stock is left unchanged.
func (s *service) decide(ctx context.Context, actor authz.Actor, requestID int64, to enums.RequestStatus, expected *time.Time) (*StockRequestDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Product == nil || !authz.IsOwner(actor, request.Product.SellerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the product's seller can decide this stock request")
	}
	if request.Status != enums.RequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyProcessed)
	}

	eventType := enums.EventStockRequestRejected
	if to == enums.RequestStatusApproved {
		eventType = enums.EventStockRequestApproved
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionFromPending(ctx, request.ID, to, expected)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: update stock request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyProcessed)
		}
		request.Status = to
		request.ExpectedCompletionDate = expected
		return s.emit(ctx, tx, actor, eventType, request)
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decide stock request")
		}
		return nil, err
	}
	reloaded, err := s.load(ctx, request.ID)
	if err != nil {
		return nil, err
	}
	dto := NewStockRequestDTO(reloaded)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, actor authz.Actor, params pagination.Params) (*StockRequestList, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByUser(ctx, actor.AccountID, params)
	return toList(rows, params.Limit, err)
}

func (s *service) ListForSeller(ctx context.Context, actor authz.Actor, params pagination.Params) (*StockRequestList, error) {
	if err := authz.RequireSeller(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForSeller(ctx, actor.AccountID, params)
	return toList(rows, params.Limit, err)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor authz.Actor, eventType enums.OutboxEventType, request *models.StockRequest) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateStockRequest,
		AggregateID:   request.ID,
		Actor:         outbox.Actor(actor.AccountID, actor.Role.String()),
		Data: payloads.StockRequestEvent{
			StockRequestID:         request.ID,
			ProductID:              request.ProductID,
			UserID:                 request.UserID,
			Quantity:               request.Quantity,
			Status:                 request.Status,
			ExpectedCompletionDate: request.ExpectedCompletionDate,
		},
	})
}

func (s *service) load(ctx context.Context, requestID int64) (*models.StockRequest, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "stock request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load stock request")
	}
	return request, nil
}

func toList(rows []models.StockRequest, limit int, err error) (*StockRequestList, error) {
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list stock requests")
	}
	rows, next := pagination.Trim(rows, limit, func(r models.StockRequest) int64 { return r.ID })
	out := make([]StockRequestDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewStockRequestDTO(&rows[i]))
	}
	return &StockRequestList{Requests: out, NextCursor: next}, nil
}
