package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// CreateInvoiceUseCase crea una factura y descuenta el inventario en una sola transacción del núcleo.
type CreateInvoiceUseCase struct {
	sales    SaleRecorder
	txRunner inventory.TxRunner // solo lecturas (cliente, productos, factura)
	log      *logger.Logger
	now      func() time.Time
}

// NewCreateInvoiceUseCase construye el caso de uso.
func NewCreateInvoiceUseCase(sales SaleRecorder, txRunner inventory.TxRunner, log *logger.Logger) *CreateInvoiceUseCase {
	if log == nil {
		log = logger.Nop()
	}
	return &CreateInvoiceUseCase{
		sales:    sales,
		txRunner: txRunner,
		log:      log.Component("billing"),
		now:      time.Now,
	}
}

// CreateInvoice valida cliente y productos, calcula subtotales e IVA y registra la venta.
// Reintentar con la misma referencia devuelve la factura ya creada.
func (uc *CreateInvoiceUseCase) CreateInvoice(ctx context.Context, ownerID, userID string, in dto.CreateInvoiceRequest) (*dto.InvoiceResponse, error) {
	if in.CustomerID == "" {
		return nil, domain.Invalid("customer_id", "es obligatorio")
	}
	if strings.TrimSpace(in.Prefix) == "" {
		return nil, domain.Invalid("prefix", "es obligatorio")
	}
	if len(in.Items) == 0 {
		return nil, domain.Invalid("items", "la factura no tiene ítems")
	}

	// Validar cliente y productos (solo lectura)
	var customer *entity.Customer
	productsByID := make(map[string]*entity.Product)
	err := uc.txRunner.Run(ctx, func(repos repository.Repos) error {
		var err error
		customer, err = repos.Customers.GetByID(ctx, in.CustomerID)
		if err != nil {
			return err
		}
		if customer == nil {
			return fmt.Errorf("%w: cliente %s", domain.ErrNotFound, in.CustomerID)
		}
		if customer.OwnerID != ownerID {
			return domain.ErrForbidden
		}
		for i, item := range in.Items {
			if item.ProductID == "" || !item.Quantity.GreaterThan(decimal.Zero) {
				return domain.Invalid(fmt.Sprintf("items[%d]", i), "producto y cantidad positiva son obligatorios")
			}
			if item.UnitPrice.IsNegative() {
				return domain.Invalid(fmt.Sprintf("items[%d].unit_price", i), "no puede ser negativo")
			}
			if _, ok := productsByID[item.ProductID]; ok {
				continue
			}
			product, err := repos.Products.GetByID(ctx, item.ProductID)
			if err != nil {
				return err
			}
			if product == nil {
				return fmt.Errorf("%w: producto %s", domain.ErrNotFound, item.ProductID)
			}
			if product.OwnerID != ownerID {
				return domain.ErrForbidden
			}
			productsByID[item.ProductID] = product
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Calcular impuestos (IVA 19% o 5% según el producto) y totales
	var netTotal, taxTotal decimal.Decimal
	lines := make([]inventory.LineItem, 0, len(in.Items))
	for _, item := range in.Items {
		product := productsByID[item.ProductID]
		unitPrice := item.UnitPrice
		if unitPrice.IsZero() {
			unitPrice = product.Price
		}
		rate := entity.NormalizeTaxRate(product.TaxRate)
		subtotal := item.Quantity.Mul(unitPrice)
		netTotal = netTotal.Add(subtotal)
		taxTotal = taxTotal.Add(subtotal.Mul(rate))
		lines = append(lines, inventory.LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: unitPrice,
			TaxRate:   rate,
		})
	}

	now := uc.now()
	number := strings.TrimSpace(in.Number)
	if number == "" {
		// Sin número explícito cada solicitud es una venta distinta.
		number = uuid.New().String()
	}
	reference := in.Reference
	if reference == "" {
		reference = strings.TrimSpace(in.Prefix) + "-" + strings.TrimSpace(number)
	}

	res, err := uc.sales.RecordSale(ctx, inventory.SaleCommand{
		OwnerID:    ownerID,
		Actor:      userID,
		Lines:      lines,
		CustomerID: in.CustomerID,
		InvoiceRef: reference,
		Document: &inventory.DocumentDraft{
			Number:     strings.TrimSpace(in.Prefix) + strings.TrimSpace(number),
			NetTotal:   netTotal,
			TaxTotal:   taxTotal,
			GrandTotal: netTotal.Add(taxTotal),
			OnCredit:   in.OnCredit,
			Date:       now,
		},
		AllowBackorder: in.AllowBackorder,
	})
	if err != nil {
		return nil, err
	}
	if res.Document == nil {
		return nil, fmt.Errorf("%w: la venta %s no tiene factura asociada", domain.ErrConflict, reference)
	}

	uc.log.Info().
		Str("owner_id", ownerID).
		Str("reference", reference).
		Bool("replayed", res.Replayed).
		Str("grand_total", res.Document.GrandTotal.String()).
		Msg("factura registrada")

	resp := toResponse(res.Document, customer.Name)
	resp.Replayed = res.Replayed
	return resp, nil
}

// GetInvoice obtiene una factura por ID con su detalle completo.
func (uc *CreateInvoiceUseCase) GetInvoice(ctx context.Context, ownerID, id string) (*dto.InvoiceResponse, error) {
	var doc *entity.BusinessDocument
	var customerName string
	err := uc.txRunner.Run(ctx, func(repos repository.Repos) error {
		var err error
		doc, err = repos.Documents.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if doc == nil || doc.Kind != entity.DocumentInvoice {
			return domain.ErrNotFound
		}
		if doc.OwnerID != ownerID {
			return domain.ErrForbidden
		}
		if doc.CustomerID != "" {
			customer, err := repos.Customers.GetByID(ctx, doc.CustomerID)
			if err != nil {
				return err
			}
			if customer != nil {
				customerName = customer.Name
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toResponse(doc, customerName), nil
}

func toResponse(doc *entity.BusinessDocument, customerName string) *dto.InvoiceResponse {
	resp := &dto.InvoiceResponse{
		ID:           doc.ID,
		OwnerID:      doc.OwnerID,
		CustomerID:   doc.CustomerID,
		CustomerName: customerName,
		Reference:    doc.Reference,
		Number:       doc.Number,
		Date:         doc.Date.Format("2006-01-02"),
		NetTotal:     doc.NetTotal,
		TaxTotal:     doc.TaxTotal,
		GrandTotal:   doc.GrandTotal,
		OnCredit:     doc.OnCredit,
		Details:      make([]dto.InvoiceDetailResponse, 0, len(doc.Lines)),
	}
	for _, d := range doc.Lines {
		resp.Details = append(resp.Details, dto.InvoiceDetailResponse{
			ID:        d.ID,
			ProductID: d.ProductID,
			EntryID:   d.EntryID,
			Quantity:  d.Quantity,
			UnitPrice: d.UnitPrice,
			TaxRate:   d.TaxRate,
			Subtotal:  d.Subtotal,
		})
	}
	return resp
}
