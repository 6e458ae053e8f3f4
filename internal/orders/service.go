package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/handmade-market/internal/authz"
	"github.com/angelmondragon/handmade-market/internal/wallet"
	"github.com/angelmondragon/handmade-market/pkg/db/models"
	"github.com/angelmondragon/handmade-market/pkg/enums"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/money"
	"github.com/angelmondragon/handmade-market/pkg/logger"
	"github.com/angelmondragon/handmade-market/pkg/outbox"
	"github.com/angelmondragon/handmade-market/pkg/outbox/payloads"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

const (
	workflowPurchase     = "purchase"
	workflowCreateOrder  = "create_order"
	workflowUpdateStatus = "update_order_status"

	paidWithWallet   = "wallet"
	paidWithExternal = "external"

	purchaseSucceededMessage = "order placed"
	purchaseFailedMessage    = "purchase failed, please try again"
)

// Service defines the order workflow.
type Service interface {
	Purchase(ctx context.Context, actor authz.Actor, input PlaceOrderInput) PurchaseResult
	CreateOrder(ctx context.Context, actor authz.Actor, input PlaceOrderInput) (*OrderDTO, error)
	UpdateStatus(ctx context.Context, actor authz.Actor, orderID int64, status enums.OrderStatus) (*OrderDTO, error)
	GetOrder(ctx context.Context, actor authz.Actor, orderID int64) (*OrderDTO, error)
	ListBuyerOrders(ctx context.Context, actor authz.Actor, params pagination.Params) (*OrderList, error)
	ListSellerOrders(ctx context.Context, actor authz.Actor, params pagination.Params) (*OrderList, error)
}

// ServiceParams groups the collaborators of the order workflow.
type ServiceParams struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Products  ProductLoader
	Wallets   WalletReader
	Ledger    WalletDebiter
	Inventory StockDecrementer
	Outcomes  outcomeRecorder
	Logger    *logger.Logger
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	products  ProductLoader
	wallets   WalletReader
	ledger    WalletDebiter
	inventory StockDecrementer
	outcomes  outcomeRecorder
	logg      *logger.Logger
}

// NewService builds the order workflow with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product loader required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet reader required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("wallet ledger required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory engine required")
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
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		products:  params.Products,
		wallets:   params.Wallets,
		ledger:    params.Ledger,
		inventory: params.Inventory,
		outcomes:  outcomes,
		logg:      logg,
	}, nil
}

type noopOutcomes struct{}

func (noopOutcomes) Observe(string, error) {}

// pricedLine is a cart line resolved against its product.
type pricedLine struct {
	product  models.Product
	quantity int
}

// Purchase places an order paid from the buyer's wallet. Validation runs
// first without holding any transaction; the order, its items, the stock
// decrements and the wallet debit then commit or roll back together.
func (s *service) Purchase(ctx context.Context, actor authz.Actor, input PlaceOrderInput) PurchaseResult {
	order, err := s.purchase(ctx, actor, input)
	s.outcomes.Observe(workflowPurchase, err)

	logCtx := s.logg.WithUserID(ctx, actor.AccountID)
	if err != nil {
		message := purchaseFailedMessage
		if typed := pkgerrors.As(err); typed != nil && typed.Code() != pkgerrors.CodeInternal {
			message = typed.Message()
			s.logg.Info(s.logg.WithField(logCtx, "reason", message), "order.purchase.rejected")
		} else {
			s.logg.Error(logCtx, "order.purchase.failed", err)
		}
		return PurchaseResult{Success: false, Message: message}
	}

	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"order_id":    order.ID,
		"total_cents": order.TotalCents,
	}), "order.purchase.completed")
	return PurchaseResult{Success: true, Message: purchaseSucceededMessage, Order: order}
}

func (s *service) purchase(ctx context.Context, actor authz.Actor, input PlaceOrderInput) (*OrderDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	cart, err := normalizeCart(input.Items)
	if err != nil {
		return nil, err
	}

	buyerWallet, err := s.wallets.FindByUserID(ctx, actor.AccountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load wallet")
	}

	lines, total, err := s.priceCart(ctx, cart)
	if err != nil {
		return nil, err
	}
	if buyerWallet.BalanceCents < total {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientBalance, "insufficient balance")
	}

	var orderID int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.place(ctx, tx, actor, lines, total, input)
		if err != nil {
			return err
		}
		orderID = order.ID
		_, err = s.ledger.Debit(ctx, tx, wallet.EntryInput{
			WalletID:    buyerWallet.ID,
			UserID:      actor.AccountID,
			AmountCents: total,
			Type:        enums.WalletTransactionPurchase,
			Description: fmt.Sprintf("order #%d", order.ID),
			OrderID:     &order.ID,
			Actor:       actor,
		})
		if err != nil {
			return err
		}
		return s.emitPlaced(ctx, tx, actor, order, lines, paidWithWallet)
	})
	if err != nil {
		return nil, asInternal(err, "purchase")
	}
	return s.loadDTO(ctx, orderID)
}

// CreateOrder places an order without touching the wallet, for payments
// settled out of band. Stock is still decremented atomically with the order.
func (s *service) CreateOrder(ctx context.Context, actor authz.Actor, input PlaceOrderInput) (*OrderDTO, error) {
	order, err := s.createOrder(ctx, actor, input)
	s.outcomes.Observe(workflowCreateOrder, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"order_id":    order.ID,
		"total_cents": order.TotalCents,
	}), "order.create.completed")
	return order, nil
}

func (s *service) createOrder(ctx context.Context, actor authz.Actor, input PlaceOrderInput) (*OrderDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	cart, err := normalizeCart(input.Items)
	if err != nil {
		return nil, err
	}
	lines, total, err := s.priceCart(ctx, cart)
	if err != nil {
		return nil, err
	}

	var orderID int64
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.place(ctx, tx, actor, lines, total, input)
		if err != nil {
			return err
		}
		orderID = order.ID
		return s.emitPlaced(ctx, tx, actor, order, lines, paidWithExternal)
	})
	if err != nil {
		return nil, asInternal(err, "create order")
	}
	return s.loadDTO(ctx, orderID)
}

// place writes the order, snapshots item prices and decrements stock.
func (s *service) place(ctx context.Context, tx *gorm.DB, actor authz.Actor, lines []pricedLine, total int64, input PlaceOrderInput) (*models.Order, error) {
	order := &models.Order{
		BuyerID:         actor.AccountID,
		TotalCents:      total,
		Status:          enums.OrderStatusPending,
		ShippingAddress: trimPtr(&input.ShippingAddress),
		Phone:           trimPtr(input.Phone),
		Notes:           trimPtr(input.Notes),
		Items:           make([]models.OrderItem, 0, len(lines)),
	}
	for _, line := range lines {
		order.Items = append(order.Items, models.OrderItem{
			ProductID:  line.product.ID,
			Quantity:   line.quantity,
			PriceCents: line.product.PriceCents,
		})
	}
	if err := s.repo.WithTx(tx).CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: insert order")
	}
	for _, line := range lines {
		if err := s.inventory.Decrement(ctx, tx, line.product.ID, line.quantity); err != nil {
			return nil, err
		}
	}
	return order, nil
}

func (s *service) emitPlaced(ctx context.Context, tx *gorm.DB, actor authz.Actor, order *models.Order, lines []pricedLine, paidWith string) error {
	rows := make([]payloads.OrderPlacedRow, 0, len(lines))
	for _, line := range lines {
		rows = append(rows, payloads.OrderPlacedRow{
			ProductID:  line.product.ID,
			SellerID:   line.product.SellerID,
			Quantity:   line.quantity,
			PriceCents: line.product.PriceCents,
		})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         outbox.Actor(actor.AccountID, actor.Role.String()),
		Data: payloads.OrderPlacedEvent{
			OrderID:    order.ID,
			BuyerID:    order.BuyerID,
			TotalCents: order.TotalCents,
			PaidWith:   paidWith,
			Items:      rows,
		},
	})
}

// UpdateStatus sets any order status on behalf of a seller of one of the
// order's items or an admin. Transitions are not restricted.
func (s *service) UpdateStatus(ctx context.Context, actor authz.Actor, orderID int64, status enums.OrderStatus) (*OrderDTO, error) {
	dto, err := s.updateStatus(ctx, actor, orderID, status)
	s.outcomes.Observe(workflowUpdateStatus, err)
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, actor.AccountID), map[string]any{
		"order_id": orderID,
		"status":   status,
	}), "order.status.updated")
	return dto, nil
}

func (s *service) updateStatus(ctx context.Context, actor authz.Actor, orderID int64, status enums.OrderStatus) (*OrderDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	if !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid order status %q", status)
	}
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !authz.CanManageOrder(actor, order.Items) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to update this order")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).UpdateOrderStatus(ctx, order.ID, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: update order status")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         outbox.Actor(actor.AccountID, actor.Role.String()),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:    order.ID,
				BuyerID:    order.BuyerID,
				From:       order.Status,
				To:         status,
				TotalCents: order.TotalCents,
			},
		})
	})
	if err != nil {
		return nil, asInternal(err, "update order status")
	}
	return s.loadDTO(ctx, order.ID)
}

func (s *service) GetOrder(ctx context.Context, actor authz.Actor, orderID int64) (*OrderDTO, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !authz.CanViewOrder(actor, order) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to view this order")
	}
	dto := NewOrderDTO(order)
	return &dto, nil
}

func (s *service) ListBuyerOrders(ctx context.Context, actor authz.Actor, params pagination.Params) (*OrderList, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListBuyerOrders(ctx, actor.AccountID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list orders")
	}
	return toOrderList(rows, params.Limit), nil
}

func (s *service) ListSellerOrders(ctx context.Context, actor authz.Actor, params pagination.Params) (*OrderList, error) {
	if err := authz.RequireAuthenticated(actor); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListSellerOrders(ctx, actor.AccountID, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "list seller orders")
	}
	return toOrderList(rows, params.Limit), nil
}

func (s *service) findOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "db: load order")
	}
	return order, nil
}

func (s *service) loadDTO(ctx context.Context, orderID int64) (*OrderDTO, error) {
	order, err := s.findOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	dto := NewOrderDTO(order)
	return &dto, nil
}

// normalizeCart merges repeated products so stock is checked against the
// total quantity requested. First-seen order is kept.
func normalizeCart(items []CartLine) ([]CartLine, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	index := make(map[int64]int, len(items))
	merged := make([]CartLine, 0, len(items))
	for _, item := range items {
		if item.ProductID <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be greater than zero")
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged, nil
}

// priceCart loads every product in one query, checks that each is sellable
// and in stock, and sums the total in cents.
func (s *service) priceCart(ctx context.Context, cart []CartLine) ([]pricedLine, int64, error) {
	ids := make([]int64, 0, len(cart))
	for _, line := range cart {
		ids = append(ids, line.ProductID)
	}
	products, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load products")
	}
	byID := make(map[int64]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	if len(byID) != len(ids) {
		return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "some products were not found")
	}

	var total int64
	lines := make([]pricedLine, 0, len(cart))
	for _, line := range cart {
		product := byID[line.ProductID]
		if product.Status != enums.ProductStatusApproved {
			return nil, 0, pkgerrors.Newf(pkgerrors.CodeValidation, "product %q is not available for sale", product.Name)
		}
		if product.Stock < line.Quantity {
			return nil, 0, pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock")
		}
		next, ok := money.AddLine(total, product.PriceCents, int64(line.Quantity))
		if !ok {
			return nil, 0, pkgerrors.New(pkgerrors.CodeValidation, "order total is too large").
				WithDetails(map[string]any{"max": money.Format(money.MaxCents)})
		}
		total = next
		lines = append(lines, pricedLine{product: product, quantity: line.Quantity})
	}
	return lines, total, nil
}

func toOrderList(rows []models.Order, limit int) *OrderList {
	rows, next := pagination.Trim(rows, limit, func(o models.Order) int64 { return o.ID })
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewOrderDTO(&rows[i]))
	}
	return &OrderList{Orders: out, NextCursor: next}
}

// asInternal keeps typed errors raised inside a transaction and wraps
// anything else as INTERNAL_ERROR.
func asInternal(err error, op string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, op)
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
