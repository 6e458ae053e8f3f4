package refunds

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/db"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/money"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

const (
	workflowCreate  = "refund_create"
	workflowApprove = "refund_approve"
	workflowReject  = "refund_reject"

	msgAlreadyApproved  = "refund already approved for this order"
	msgAlreadyPending   = "refund request already pending for this order"
	msgAlreadyProcessed = "request already processed"
)

// Service defines the refund workflow.
type Service interface {
	Create(ctx context.Context, actor authz.Actor, input CreateInput) (*RefundRequestDTO, error)
	Approve(ctx context.Context, actor authz.Actor, requestID int64) (*RefundRequestDTO, error)
	Reject(ctx context.Context, actor authz.Actor, requestID int64) (*RefundRequestDTO, error)
	Get(ctx context.Context, actor authz.Actor, requestID int64) (*RefundRequestDTO, error)
	ListMine(ctx context.Context, actor authz.Actor, params pagination.Params) (*RefundRequestList, error)
	ListForSeller(ctx context.Context, actor authz.Actor, params pagination.Params) (*RefundRequestList, error)
	ListAll(ctx context.Context, actor authz.Actor, params pagination.Params) (*RefundRequestList, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OrderLoader reads an order with its items and products.
type OrderLoader interface {
	FindOrder(ctx context.Context, orderID int64) (*models.Order, error)
}

// WalletCrediter credits a wallet inside the approval transaction.
type WalletCrediter interface {
	Credit(ctx context.Context, tx *gorm.DB, in wallet.EntryInput) (*models.WalletTransaction, error)
}

type outcomeRecorder interface {
	Observe(workflow string, err error)
}

// ServiceParams groups the collaborators of the refund workflow.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Orders   OrderLoader
	Wallets  wallet.Repository
	Ledger   WalletCrediter
	Outcomes outcomeRecorder
	Logger   *logger.Logger
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	orders   OrderLoader
	wallets  wallet.Repository
	ledger   WalletCrediter
	outcomes outcomeRecorder
	logg     *logger.Logger
}

// NewService builds the refund workflow.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("refund repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	outcomes := params.Outcomes
	if outcomes == nil {
		outcomes = noopOutcomes{}
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		orders:   params.Orders,
		wallets:  params.Wallets,
		ledger:   params.Ledger,
		outcomes: outcomes,
		logg:     logg,
	}, nil
}

type noopOutcomes struct{}

func (noopOutcomes) Observe(string, error) {}

func (s *service) Create(ctx context.Context, actor authz.Actor, input CreateInput) (*RefundRequestDTO, error) {
	dto, err := s.create(ctx, actor, input)
	s.outcomes.Observe(workflowCreate, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"refund_request_id": dto.ID,
		"order_id":          dto.OrderID,
		"amount_cents":      dto.AmountCents,
	}), "refund.requested")
	return dto, nil
}

func (s *service) create(ctx context.Context, actor authz.Actor, input CreateInput) (*RefundRequestDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	order, err := s.orders.FindOrder(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load order")
	}
	if !authz.IsOwner(actor, order.BuyerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the buyer can request a refund for this order")
	}
	if order.Status == enums.OrderStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancelled orders cannot be refunded")
	}
	amountCents, err := money.FromDecimal(input.Amount)
	if err != nil {
		return nil, err
	}
	if amountCents <= 0 || amountCents > order.TotalCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be greater than zero and at most the order total")
	}

	existing, err := s.repo.FindActiveForOrder(ctx, order.ID)
	switch {
	case err == nil && existing.Status == enums.RequestStatusApproved:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyApproved)
	case err == nil:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyPending)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load refund requests")
	}

	request := &models.RefundRequest{
		OrderID:     order.ID,
		UserID:      actor.AccountID,
		Reason:      input.Reason,
		AmountCents: amountCents,
		Status:      enums.RequestStatusPending,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyPending)
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: insert refund request")
		}
		return s.emit(ctx, tx, actor, enums.EventRefundRequested, request, false)
	})
	if err != nil {
		return nil, err
	}
	request.Order = order
	dto := NewRefundRequestDTO(request)
	return &dto, nil
}

// Approve marks a pending request approved and credits the requester's
// wallet when they have one. Both happen in one transaction.
func (s *service) Approve(ctx context.Context, actor authz.Actor, requestID int64) (*RefundRequestDTO, error) {
	var credited bool
	dto, err := s.decide(ctx, actor, requestID, enums.RequestStatusApproved, func(tx *gorm.DB, request *models.RefundRequest) error {
		w, err := s.wallets.WithTx(tx).FindByUserID(ctx, request.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load wallet")
		}
		orderID := request.OrderID
		if _, err := s.ledger.Credit(ctx, tx, wallet.EntryInput{
			WalletID:    w.ID,
			UserID:      request.UserID,
			AmountCents: request.AmountCents,
			Type:        enums.WalletTransactionRefund,
			Description: fmt.Sprintf("refund for order #%d", request.OrderID),
			OrderID:     &orderID,
			Actor:       actor,
		}); err != nil {
			return err
		}
		credited = true
		return nil
	}, &credited)
	s.outcomes.Observe(workflowApprove, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"refund_request_id": requestID,
		"credited":          credited,
	}), "refund.approved")
	return dto, nil
}

func (s *service) Reject(ctx context.Context, actor authz.Actor, requestID int64) (*RefundRequestDTO, error) {
	dto, err := s.decide(ctx, actor, requestID, enums.RequestStatusRejected, nil, nil)
	s.outcomes.Observe(workflowReject, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithUserID(ctx, actor.AccountID), "refund_request_id", requestID), "refund.rejected")
	return dto, nil
}

// decide runs the shared approve/reject path. effect runs inside the
// transaction after the status change; credited is read when the event is
// written.
func (s *service) decide(ctx context.Context, actor authz.Actor, requestID int64, to enums.RequestStatus, effect func(tx *gorm.DB, request *models.RefundRequest) error, credited *bool) (*RefundRequestDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Order == nil || !authz.CanManageOrder(actor, request.Order.Items) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to decide this refund request")
	}
	if request.Status != enums.RequestStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyProcessed)
	}

	eventType := enums.EventRefundRejected
	if to == enums.RequestStatusApproved {
		eventType = enums.EventRefundApproved
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := s.repo.WithTx(tx).TransitionFromPending(ctx, request.ID, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: update refund request")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, msgAlreadyProcessed)
		}
		request.Status = to
		if effect != nil {
			if err := effect(tx, request); err != nil {
				return err
			}
		}
		return s.emit(ctx, tx, actor, eventType, request, credited != nil && *credited)
	})
	if err != nil {
		if pkgerrors.As(err) == nil {
			err = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decide refund request")
		}
		return nil, err
	}
	return s.dto(ctx, request.ID)
}

func (s *service) Get(ctx context.Context, actor authz.Actor, requestID int64) (*RefundRequestDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	var items []models.OrderItem
	if request.Order != nil {
		items = request.Order.Items
	}
	if !authz.IsOwner(actor, request.UserID) && !authz.CanManageOrder(actor, items) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this refund request")
	}
	dto := NewRefundRequestDTO(request)
	return &dto, nil
}

func (s *service) ListMine(ctx context.Context, actor authz.Actor, params pagination.Params) (*RefundRequestList, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByUser(ctx, actor.AccountID, params)
	return toList(rows, params.Limit, err)
}

func (s *service) ListForSeller(ctx context.Context, actor authz.Actor, params pagination.Params) (*RefundRequestList, error) {
	if err := authz.RequireSeller(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListForSeller(ctx, actor.AccountID, params)
	return toList(rows, params.Limit, err)
}

func (s *service) ListAll(ctx context.Context, actor authz.Actor, params pagination.Params) (*RefundRequestList, error) {
	if err := authz.RequireAdmin(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListAll(ctx, params)
	return toList(rows, params.Limit, err)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, actor authz.Actor, eventType enums.OutboxEventType, request *models.RefundRequest, credited bool) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateRefundRequest,
		AggregateID:   request.ID,
		Actor:         outbox.Actor(actor.AccountID, actor.Role.String()),
		Data: payloads.RefundEvent{
			RefundRequestID: request.ID,
			OrderID:         request.OrderID,
			UserID:          request.UserID,
			AmountCents:     request.AmountCents,
			Status:          request.Status,
			Credited:        credited,
		},
	})
}

func (s *service) load(ctx context.Context, requestID int64) (*models.RefundRequest, error) {
	request, err := s.repo.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "refund request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load refund request")
	}
	return request, nil
}

func (s *service) dto(ctx context.Context, requestID int64) (*RefundRequestDTO, error) {
	request, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	dto := NewRefundRequestDTO(request)
	return &dto, nil
}

func toList(rows []models.RefundRequest, limit int, err error) (*RefundRequestList, error) {
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list refund requests")
	}
	rows, next := pagination.Trim(rows, limit, func(r models.RefundRequest) int64 { return r.ID })
	out := make([]RefundRequestDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewRefundRequestDTO(&rows[i]))
	}
	return &RefundRequestList{Requests: out, NextCursor: next}, nil
}
