package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/handmade-market/api/middleware"
	"github.com/angelmondragon/handmade-market/api/responses"
	"github.com/angelmondragon/handmade-market/api/validators"
	"github.com/angelmondragon/handmade-market/internal/refunds"
	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/logger"
)

type createRefundRequest struct {
	OrderID int64           `json:"order_id" validate:"required,min=1"`
	Reason  *string         `json:"reason,omitempty"`
	Amount  decimal.Decimal `json:"amount"`
}

func CreateRefundRequest(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		var body createRefundRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if body.Reason != nil {
			reason := validators.CleanText(*body.Reason, 2000)
			body.Reason = &reason
		}
		request, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), refunds.CreateInput{
			OrderID: body.OrderID,
			Reason:  body.Reason,
			Amount:  body.Amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, request)
	}
}

func RefundRequestDetail(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

// ApproveRefundRequest credits the buyer's wallet when one exists.
func ApproveRefundRequest(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return decideRefund(logg, svc, func(r *http.Request, id int64) (*refunds.RefundRequestDTO, error) {
		return svc.Approve(r.Context(), middleware.ActorFromContext(r.Context()), id)
	})
}

func RejectRefundRequest(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return decideRefund(logg, svc, func(r *http.Request, id int64) (*refunds.RefundRequestDTO, error) {
		return svc.Reject(r.Context(), middleware.ActorFromContext(r.Context()), id)
	})
}

func decideRefund(logg *logger.Logger, svc refunds.Service, decide func(r *http.Request, id int64) (*refunds.RefundRequestDTO, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		requestID, err := validators.ParsePathID(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := decide(r, requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func MyRefundRequests(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return listRefunds(logg, svc, func(r *http.Request, svc refunds.Service) (*refunds.RefundRequestList, error) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return nil, err
		}
		return svc.ListMine(r.Context(), middleware.ActorFromContext(r.Context()), params)
	})
}

func SellerRefundRequests(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return listRefunds(logg, svc, func(r *http.Request, svc refunds.Service) (*refunds.RefundRequestList, error) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return nil, err
		}
		return svc.ListForSeller(r.Context(), middleware.ActorFromContext(r.Context()), params)
	})
}

func AdminRefundRequests(svc refunds.Service, logg *logger.Logger) http.HandlerFunc {
	return listRefunds(logg, svc, func(r *http.Request, svc refunds.Service) (*refunds.RefundRequestList, error) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			return nil, err
		}
		return svc.ListAll(r.Context(), middleware.ActorFromContext(r.Context()), params)
	})
}

func listRefunds(logg *logger.Logger, svc refunds.Service, list func(*http.Request, refunds.Service) (*refunds.RefundRequestList, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		result, err := list(r, svc)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
