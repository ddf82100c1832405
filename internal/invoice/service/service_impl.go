package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/accountctx"
	catalogdomain "github.com/smallbiznis/facturo/internal/catalog/domain"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	"github.com/smallbiznis/facturo/internal/clock"
	"github.com/smallbiznis/facturo/internal/invoice/domain"
	"github.com/smallbiznis/facturo/internal/plan"
	sequencedomain "github.com/smallbiznis/facturo/internal/sequence/domain"
	"github.com/smallbiznis/facturo/internal/tax"
	"github.com/smallbiznis/facturo/internal/usagegate"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Repo        domain.Repository
	AccountRepo accountdomain.Repository
	ClientRepo  clientdomain.Repository
	CatalogRepo catalogdomain.Repository
	Allocator   sequencedomain.Allocator
	Gate        *usagegate.Gate
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	repo        domain.Repository
	accountRepo accountdomain.Repository
	clientRepo  clientdomain.Repository
	catalogRepo catalogdomain.Repository
	allocator   sequencedomain.Allocator
	gate        *usagegate.Gate
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("invoice.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		accountRepo: p.AccountRepo,
		clientRepo:  p.ClientRepo,
		catalogRepo: p.CatalogRepo,
		allocator:   p.Allocator,
		gate:        p.Gate,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateInvoiceRequest) (domain.Invoice, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Invoice{}, accountdomain.ErrInvalidAccount
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.Invoice{}, clientdomain.ErrInvalidID
	}

	client, err := s.clientRepo.FindByID(ctx, s.db, accountID, clientID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if client == nil {
		return domain.Invoice{}, clientdomain.ErrNotFound
	}

	rawLines, err := s.buildTaxLines(ctx, accountID, req.Lines)
	if err != nil {
		return domain.Invoice{}, err
	}

	computed, totals, err := tax.Compute(rawLines)
	if err != nil {
		return domain.Invoice{}, err
	}

	if err := s.gate.CheckLimit(ctx, plan.ResourceInvoice); err != nil {
		return domain.Invoice{}, err
	}

	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if account == nil {
		return domain.Invoice{}, accountdomain.ErrNotFound
	}

	now := s.clock.Now()
	dueDate := s.resolveDueDate(req.DueDate, now, account, client)
	if dueDate.Before(now.Truncate(24 * time.Hour)) {
		return domain.Invoice{}, domain.ErrInvalidDueDate
	}

	invoice := domain.Invoice{
		ID:         s.genID.Generate(),
		AccountID:  accountID,
		ClientID:   clientID,
		Status:     domain.StatusDraft,
		IssueDate:  now,
		DueDate:    dueDate,
		TotalHT:    totals.TotalHT,
		TotalTax:   totals.TotalTax,
		TotalTTC:   totals.TotalTTC,
		AmountPaid: decimal.Zero,
		AmountDue:  totals.TotalTTC,
		Metadata:   req.Metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// Number allocation and document persistence run in one
	// transaction so creation fails atomically when either does.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.allocator.NextNumber(ctx, tx, accountID, sequencedomain.PrefixInvoice)
		if err != nil {
			return err
		}
		invoice.Number = number

		if err := s.repo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}

		lines := buildInvoiceLines(s.genID, invoice.ID, computed)
		if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
			return err
		}
		invoice.Lines = lines
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return invoice, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Invoice, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Invoice{}, accountdomain.ErrInvalidAccount
	}

	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.Invoice{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	if item == nil {
		return domain.Invoice{}, domain.ErrNotFound
	}

	lines, err := s.repo.FindLines(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	item.Lines = lines

	payments, err := s.repo.FindPayments(ctx, s.db, invoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}
	item.Payments = payments

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.ListInvoiceResponse{}, accountdomain.ErrInvalidAccount
	}

	filter := domain.ListInvoiceFilter{
		Status: domain.Status(strings.TrimSpace(req.Status)),
	}
	if raw := strings.TrimSpace(req.ClientID); raw != "" {
		clientID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListInvoiceResponse{}, clientdomain.ErrInvalidID
		}
		filter.ClientID = clientID
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}

	items, err := s.repo.List(ctx, s.db, accountID, filter, pagination.Pagination{
		PageToken: req.PageToken,
		PageSize:  int(pageSize),
	})
	if err != nil {
		return domain.ListInvoiceResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(invoice *domain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        invoice.ID.String(),
			CreatedAt: invoice.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	invoices := make([]domain.Invoice, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		invoices = append(invoices, *item)
	}

	resp := domain.ListInvoiceResponse{Invoices: invoices}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (domain.Invoice, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Invoice{}, accountdomain.ErrInvalidAccount
	}

	invoiceID, err := s.parseID(req.ID)
	if err != nil {
		return domain.Invoice{}, err
	}

	// CREDITED has its own entry point with different eligibility
	// rules; payment-driven states only move through ApplyPayment,
	// and OVERDUE is only ever written by the dunning sweep.
	switch req.Status {
	case domain.StatusCredited, domain.StatusPaid, domain.StatusPartiallyPaid, domain.StatusOverdue, domain.StatusDraft:
		return domain.Invoice{}, domain.ErrIllegalTransition
	}

	var updated domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, accountID, invoiceID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		if !domain.CanTransition(item.Status, req.Status) {
			if req.Status == domain.StatusCancelled {
				return domain.ErrNotCancellable
			}
			return domain.ErrIllegalTransition
		}

		if req.Status == domain.StatusSent {
			client, err := s.clientRepo.FindByID(ctx, tx, accountID, item.ClientID)
			if err != nil {
				return err
			}
			if client == nil {
				return clientdomain.ErrNotFound
			}
			if strings.TrimSpace(client.Email) == "" {
				return domain.ErrClientEmailEmpty
			}
		}

		item.Status = req.Status
		item.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, item); err != nil {
			return err
		}
		updated = *item
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return updated, nil
}

func (s *Service) ApplyPayment(ctx context.Context, req domain.ApplyPaymentRequest) (domain.Invoice, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Invoice{}, accountdomain.ErrInvalidAccount
	}

	invoiceID, err := s.parseID(req.InvoiceID)
	if err != nil {
		return domain.Invoice{}, err
	}

	if !req.Amount.IsPositive() {
		return domain.Invoice{}, domain.ErrInvalidPayment
	}
	if !req.Method.Valid() {
		return domain.Invoice{}, domain.ErrInvalidMethod
	}

	now := s.clock.Now()
	paidAt := now
	if req.PaidAt != nil {
		paidAt = *req.PaidAt
	}

	var updated domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, accountID, invoiceID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		if !item.Status.Payable() {
			return domain.ErrNotPayable
		}
		if req.Amount.GreaterThan(item.AmountDue) {
			return domain.ErrOverpayment
		}

		reference := strings.TrimSpace(req.Reference)
		if reference == "" {
			// Every ledger entry carries a reference, caller supplied
			// or generated.
			reference = ulid.Make().String()
		}

		payment := domain.Payment{
			ID:        s.genID.Generate(),
			InvoiceID: item.ID,
			Amount:    req.Amount,
			Method:    req.Method,
			Reference: reference,
			PaidAt:    paidAt,
			Notes:     strings.TrimSpace(req.Notes),
			CreatedAt: now,
		}
		if err := s.repo.InsertPayment(ctx, tx, &payment); err != nil {
			return err
		}

		item.AmountPaid = item.AmountPaid.Add(req.Amount)
		item.AmountDue = item.TotalTTC.Sub(item.AmountPaid)
		if item.AmountDue.IsZero() {
			item.Status = domain.StatusPaid
		} else {
			item.Status = domain.StatusPartiallyPaid
		}
		item.UpdatedAt = now

		if err := s.repo.UpdateBalance(ctx, tx, item); err != nil {
			return err
		}
		updated = *item
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return updated, nil
}

func (s *Service) ConvertToCreditNote(ctx context.Context, id string) (domain.Invoice, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Invoice{}, accountdomain.ErrInvalidAccount
	}

	invoiceID, err := s.parseID(id)
	if err != nil {
		return domain.Invoice{}, err
	}

	var updated domain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, accountID, invoiceID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		if !item.Status.Creditable() {
			return domain.ErrNotCreditable
		}

		item.Status = domain.StatusCredited
		item.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateStatus(ctx, tx, item); err != nil {
			return err
		}
		updated = *item
		return nil
	})
	if err != nil {
		return domain.Invoice{}, err
	}

	return updated, nil
}

func (s *Service) resolveDueDate(requested *time.Time, now time.Time, account *accountdomain.Account, client *clientdomain.Client) time.Time {
	if requested != nil {
		return *requested
	}
	termDays := account.PaymentTermDays
	if client.PaymentTermDays > 0 {
		termDays = client.PaymentTermDays
	}
	return now.AddDate(0, 0, termDays)
}

func (s *Service) buildTaxLines(ctx context.Context, accountID snowflake.ID, inputs []domain.LineInput) ([]tax.Line, error) {
	lines := make([]tax.Line, 0, len(inputs))
	for _, input := range inputs {
		line := tax.Line{
			Description: strings.TrimSpace(input.Description),
			Quantity:    input.Quantity,
			Unit:        strings.TrimSpace(input.Unit),
			UnitPrice:   input.UnitPrice,
			TaxRate:     input.TaxRate,
		}

		if raw := strings.TrimSpace(input.PrestationID); raw != "" {
			prestationID, err := snowflake.ParseString(raw)
			if err != nil || prestationID == 0 {
				return nil, catalogdomain.ErrInvalidID
			}
			prestation, err := s.catalogRepo.FindByID(ctx, s.db, accountID, prestationID)
			if err != nil {
				return nil, err
			}
			if prestation == nil {
				return nil, catalogdomain.ErrNotFound
			}
			if line.Description == "" {
				line.Description = prestation.Label
			}
			if line.Unit == "" {
				line.Unit = prestation.PricingMode.Unit()
			}
			if line.UnitPrice.IsZero() {
				line.UnitPrice = prestation.DefaultRate
			}
			if line.TaxRate.IsZero() {
				line.TaxRate = prestation.DefaultTaxRate
			}
		}

		lines = append(lines, line)
	}
	return lines, nil
}

func buildInvoiceLines(genID *snowflake.Node, invoiceID snowflake.ID, computed []tax.ComputedLine) []domain.InvoiceLine {
	lines := make([]domain.InvoiceLine, 0, len(computed))
	for i, line := range computed {
		lines = append(lines, domain.InvoiceLine{
			ID:          genID.Generate(),
			InvoiceID:   invoiceID,
			Position:    i + 1,
			Description: line.Description,
			Quantity:    line.Quantity,
			Unit:        line.Unit,
			UnitPrice:   line.UnitPrice,
			TaxRate:     line.TaxRate,
			TotalHT:     line.TotalHT,
			TotalTax:    line.TotalTax,
			TotalTTC:    line.TotalTTC,
		})
	}
	return lines
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
