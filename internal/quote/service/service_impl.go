package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/facturo/internal/account/domain"
	"github.com/smallbiznis/facturo/internal/accountctx"
	catalogdomain "github.com/smallbiznis/facturo/internal/catalog/domain"
	clientdomain "github.com/smallbiznis/facturo/internal/client/domain"
	"github.com/smallbiznis/facturo/internal/clock"
	invoicedomain "github.com/smallbiznis/facturo/internal/invoice/domain"
	"github.com/smallbiznis/facturo/internal/plan"
	"github.com/smallbiznis/facturo/internal/quote/domain"
	sequencedomain "github.com/smallbiznis/facturo/internal/sequence/domain"
	"github.com/smallbiznis/facturo/internal/tax"
	"github.com/smallbiznis/facturo/internal/usagegate"
	"github.com/smallbiznis/facturo/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Repo        domain.Repository
	InvoiceRepo invoicedomain.Repository
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
	invoiceRepo invoicedomain.Repository
	accountRepo accountdomain.Repository
	clientRepo  clientdomain.Repository
	catalogRepo catalogdomain.Repository
	allocator   sequencedomain.Allocator
	gate        *usagegate.Gate
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("quote.service"),
		clock:       p.Clock,
		genID:       p.GenID,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		accountRepo: p.AccountRepo,
		clientRepo:  p.ClientRepo,
		catalogRepo: p.CatalogRepo,
		allocator:   p.Allocator,
		gate:        p.Gate,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateQuoteRequest) (domain.Quote, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Quote{}, accountdomain.ErrInvalidAccount
	}

	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID == 0 {
		return domain.Quote{}, clientdomain.ErrInvalidID
	}

	client, err := s.clientRepo.FindByID(ctx, s.db, accountID, clientID)
	if err != nil {
		return domain.Quote{}, err
	}
	if client == nil {
		return domain.Quote{}, clientdomain.ErrNotFound
	}

	if req.DepositPercent.IsNegative() || req.DepositPercent.GreaterThan(hundred) {
		return domain.Quote{}, domain.ErrInvalidDeposit
	}

	rawLines, err := s.buildTaxLines(ctx, accountID, req.Lines)
	if err != nil {
		return domain.Quote{}, err
	}

	computed, totals, err := tax.Compute(rawLines)
	if err != nil {
		return domain.Quote{}, err
	}

	if err := s.gate.CheckLimit(ctx, plan.ResourceQuote); err != nil {
		return domain.Quote{}, err
	}

	now := s.clock.Now()
	validity := req.ValidityDate
	if validity.IsZero() {
		validity = now.AddDate(0, 1, 0)
	}
	if validity.Before(now) {
		return domain.Quote{}, domain.ErrInvalidValidityDate
	}

	quote := domain.Quote{
		ID:             s.genID.Generate(),
		AccountID:      accountID,
		ClientID:       clientID,
		Status:         domain.StatusDraft,
		IssueDate:      now,
		ValidityDate:   validity,
		TotalHT:        totals.TotalHT,
		TotalTax:       totals.TotalTax,
		TotalTTC:       totals.TotalTTC,
		DepositPercent: req.DepositPercent,
		DepositAmount:  totals.TotalTTC.Mul(req.DepositPercent).Div(hundred).Round(2),
		Metadata:       req.Metadata,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	// Number allocation and document persistence run in one
	// transaction so creation fails atomically when either does.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.allocator.NextNumber(ctx, tx, accountID, sequencedomain.PrefixQuote)
		if err != nil {
			return err
		}
		quote.Number = number

		if err := s.repo.Insert(ctx, tx, &quote); err != nil {
			return err
		}

		lines := buildQuoteLines(s.genID, quote.ID, computed)
		if err := s.repo.InsertLines(ctx, tx, lines); err != nil {
			return err
		}
		quote.Lines = lines
		return nil
	})
	if err != nil {
		return domain.Quote{}, err
	}

	return quote, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (domain.Quote, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Quote{}, accountdomain.ErrInvalidAccount
	}

	quoteID, err := s.parseID(id)
	if err != nil {
		return domain.Quote{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, accountID, quoteID)
	if err != nil {
		return domain.Quote{}, err
	}
	if item == nil {
		return domain.Quote{}, domain.ErrNotFound
	}

	lines, err := s.repo.FindLines(ctx, s.db, quoteID)
	if err != nil {
		return domain.Quote{}, err
	}
	item.Lines = lines

	return *item, nil
}

func (s *Service) List(ctx context.Context, req domain.ListQuoteRequest) (domain.ListQuoteResponse, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.ListQuoteResponse{}, accountdomain.ErrInvalidAccount
	}

	filter := domain.ListQuoteFilter{
		Status: domain.Status(strings.TrimSpace(req.Status)),
	}
	if raw := strings.TrimSpace(req.ClientID); raw != "" {
		clientID, err := snowflake.ParseString(raw)
		if err != nil {
			return domain.ListQuoteResponse{}, clientdomain.ErrInvalidID
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
		return domain.ListQuoteResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(quote *domain.Quote) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        quote.ID.String(),
			CreatedAt: quote.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo != nil && pageInfo.HasMore && len(items) > int(pageSize) {
		items = items[:pageSize]
	}

	quotes := make([]domain.Quote, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		quotes = append(quotes, *item)
	}

	resp := domain.ListQuoteResponse{Quotes: quotes}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}

	return resp, nil
}

func (s *Service) UpdateStatus(ctx context.Context, req domain.UpdateStatusRequest) (domain.Quote, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return domain.Quote{}, accountdomain.ErrInvalidAccount
	}

	quoteID, err := s.parseID(req.ID)
	if err != nil {
		return domain.Quote{}, err
	}

	// Conversion has its own entry point and transaction.
	if req.Status == domain.StatusConverted {
		return domain.Quote{}, domain.ErrIllegalTransition
	}

	var updated domain.Quote
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, accountID, quoteID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}

		if !domain.CanTransition(item.Status, req.Status) {
			return domain.ErrIllegalTransition
		}

		// Sending needs a recipient, and acceptance does too: the
		// client email may have been cleared since the quote went out.
		if req.Status == domain.StatusSent || req.Status == domain.StatusAccepted {
			client, err := s.clientRepo.FindByID(ctx, tx, accountID, item.ClientID)
			if err != nil {
				return err
			}
			if client == nil {
				return clientdomain.ErrNotFound
			}
			if strings.TrimSpace(client.Email) == "" {
				return invoicedomain.ErrClientEmailEmpty
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
		return domain.Quote{}, err
	}

	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return accountdomain.ErrInvalidAccount
	}

	quoteID, err := s.parseID(id)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := s.repo.FindByIDForUpdate(ctx, tx, accountID, quoteID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		if item.Status != domain.StatusDraft {
			return domain.ErrNotDraft
		}
		return s.repo.Delete(ctx, tx, accountID, quoteID)
	})
}

// ConvertToInvoice materializes an accepted quote into a new invoice.
// Lines are copied verbatim, the due date comes from the account (or
// client) payment term, and the two documents link both ways. A second
// attempt is rejected by the CONVERTED status check under the row lock.
func (s *Service) ConvertToInvoice(ctx context.Context, id string) (invoicedomain.Invoice, error) {
	accountID, ok := accountctx.AccountIDFromContext(ctx)
	if !ok || accountID == 0 {
		return invoicedomain.Invoice{}, accountdomain.ErrInvalidAccount
	}

	quoteID, err := s.parseID(id)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	if err := s.gate.CheckLimit(ctx, plan.ResourceInvoice); err != nil {
		return invoicedomain.Invoice{}, err
	}

	account, err := s.accountRepo.FindByID(ctx, s.db, accountID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if account == nil {
		return invoicedomain.Invoice{}, accountdomain.ErrNotFound
	}

	var invoice invoicedomain.Invoice
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		quote, err := s.repo.FindByIDForUpdate(ctx, tx, accountID, quoteID)
		if err != nil {
			return err
		}
		if quote == nil {
			return domain.ErrNotFound
		}
		if quote.Status == domain.StatusConverted || quote.InvoiceID != nil {
			return domain.ErrAlreadyConverted
		}
		if quote.Status != domain.StatusAccepted {
			return domain.ErrNotAccepted
		}

		client, err := s.clientRepo.FindByID(ctx, tx, accountID, quote.ClientID)
		if err != nil {
			return err
		}
		if client == nil {
			return clientdomain.ErrNotFound
		}

		quoteLines, err := s.repo.FindLines(ctx, tx, quote.ID)
		if err != nil {
			return err
		}

		number, err := s.allocator.NextNumber(ctx, tx, accountID, sequencedomain.PrefixInvoice)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		termDays := account.PaymentTermDays
		if client.PaymentTermDays > 0 {
			termDays = client.PaymentTermDays
		}

		invoice = invoicedomain.Invoice{
			ID:         s.genID.Generate(),
			AccountID:  accountID,
			ClientID:   quote.ClientID,
			Number:     number,
			Status:     invoicedomain.StatusDraft,
			IssueDate:  now,
			DueDate:    now.AddDate(0, 0, termDays),
			TotalHT:    quote.TotalHT,
			TotalTax:   quote.TotalTax,
			TotalTTC:   quote.TotalTTC,
			AmountPaid: decimal.Zero,
			AmountDue:  quote.TotalTTC,
			QuoteID:    &quote.ID,
			Metadata:   quote.Metadata,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.invoiceRepo.Insert(ctx, tx, &invoice); err != nil {
			return err
		}

		invoiceLines := make([]invoicedomain.InvoiceLine, 0, len(quoteLines))
		for _, line := range quoteLines {
			invoiceLines = append(invoiceLines, invoicedomain.InvoiceLine{
				ID:          s.genID.Generate(),
				InvoiceID:   invoice.ID,
				Position:    line.Position,
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
		if err := s.invoiceRepo.InsertLines(ctx, tx, invoiceLines); err != nil {
			return err
		}
		invoice.Lines = invoiceLines

		return s.repo.MarkConverted(ctx, tx, quote, invoice.ID, now)
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	return invoice, nil
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

func buildQuoteLines(genID *snowflake.Node, quoteID snowflake.ID, computed []tax.ComputedLine) []domain.QuoteLine {
	lines := make([]domain.QuoteLine, 0, len(computed))
	for i, line := range computed {
		lines = append(lines, domain.QuoteLine{
			ID:          genID.Generate(),
			QuoteID:     quoteID,
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
