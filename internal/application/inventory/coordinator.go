package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
	"github.com/jhoicas/stock-ledger/pkg/tracing"
)

// CoordinatorConfig parámetros del coordinador.
type CoordinatorConfig struct {
	LockTimeout    time.Duration // espera máxima por el bloqueo de cada operación
	AllowBackorder bool          // permite que una operación pida explícitamente saldo negativo
}

// Coordinator es el único punto de entrada para mutar stock. Cada operación de negocio
// (venta, compra, devolución, ajuste, anulación) se ejecuta como una unidad atómica:
// bloqueo por (owner, producto) en orden, una transacción para asientos + saldos + entidades
// correlacionadas, y reevaluación de alertas antes de liberar los bloqueos.
type Coordinator struct {
	txRunner     TxRunner
	locker       Locker
	ledger       *LedgerStore
	materializer *BalanceMaterializer
	alerts       *AlertEngine
	publisher    EventPublisher
	log          *logger.Logger
	cfg          CoordinatorConfig
	now          func() time.Time
}

// NewCoordinator construye el coordinador. publisher puede ser nil.
func NewCoordinator(
	txRunner TxRunner,
	locker Locker,
	ledger *LedgerStore,
	materializer *BalanceMaterializer,
	alerts *AlertEngine,
	publisher EventPublisher,
	log *logger.Logger,
	cfg CoordinatorConfig,
) *Coordinator {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	return &Coordinator{
		txRunner:     txRunner,
		locker:       locker,
		ledger:       ledger,
		materializer: materializer,
		alerts:       alerts,
		publisher:    publisher,
		log:          log.Component("coordinator"),
		cfg:          cfg,
		now:          time.Now,
	}
}

// RecordSale registra una venta: una salida por producto con reference_type=sale.
func (c *Coordinator) RecordSale(ctx context.Context, cmd SaleCommand) (*OperationResult, error) {
	return c.Execute(ctx, Operation{
		Kind:           OperationSale,
		OwnerID:        cmd.OwnerID,
		Actor:          cmd.Actor,
		Reference:      cmd.InvoiceRef,
		Lines:          cmd.Lines,
		Correlated:     Correlated{CustomerID: cmd.CustomerID, Document: cmd.Document},
		AllowBackorder: cmd.AllowBackorder,
	})
}

// RecordPurchase registra una compra: una entrada por producto con reference_type=purchase.
func (c *Coordinator) RecordPurchase(ctx context.Context, cmd PurchaseCommand) (*OperationResult, error) {
	return c.Execute(ctx, Operation{
		Kind:       OperationPurchase,
		OwnerID:    cmd.OwnerID,
		Actor:      cmd.Actor,
		Reference:  cmd.PurchaseRef,
		Lines:      cmd.Lines,
		Correlated: Correlated{VendorID: cmd.VendorID, Document: cmd.Document},
	})
}

// RecordReturn registra una devolución de cliente (entrada) o a proveedor (salida).
func (c *Coordinator) RecordReturn(ctx context.Context, cmd ReturnCommand) (*OperationResult, error) {
	return c.Execute(ctx, Operation{
		Kind:            OperationReturn,
		OwnerID:         cmd.OwnerID,
		Actor:           cmd.Actor,
		Reference:       cmd.ReturnRef,
		ReturnDirection: cmd.Direction,
		Lines:           cmd.Lines,
		Correlated:      Correlated{CustomerID: cmd.CustomerID, VendorID: cmd.VendorID, Document: cmd.Document},
		Notes:           notesForReturn(cmd.OriginalRef),
	})
}

func notesForReturn(originalRef string) string {
	if originalRef == "" {
		return ""
	}
	return "devolución de " + originalRef
}

// plan es una operación validada y normalizada.
type plan struct {
	op           Operation
	refType      entity.ReferenceType
	movement     entity.MovementType
	direction    entity.Direction
	docKind      entity.DocumentKind
	customerSign int64 // efecto sobre el saldo del cliente si es a crédito (+1, -1 o 0)
	vendorSign   int64
	stockLines   []LineItem // una por producto, ordenadas por producto
}

func (c *Coordinator) plan(op Operation) (*plan, error) {
	p := &plan{op: op}
	switch op.Kind {
	case OperationSale:
		p.refType, p.movement, p.docKind, p.customerSign = entity.ReferenceSale, entity.MovementTypeOUT, entity.DocumentInvoice, 1
	case OperationPurchase:
		p.refType, p.movement, p.docKind, p.vendorSign = entity.ReferencePurchase, entity.MovementTypeIN, entity.DocumentGRN, 1
	case OperationReturn:
		// Una factura admite varias devoluciones parciales: cada una lleva su propia referencia.
		if strings.TrimSpace(op.Reference) == "" {
			return nil, domain.Invalid("return_ref", "es obligatoria")
		}
		p.refType = entity.ReferenceReturn
		switch op.ReturnDirection {
		case ReturnFromCustomer:
			p.movement, p.docKind, p.customerSign = entity.MovementTypeIN, entity.DocumentCreditNote, -1
		case ReturnToVendor:
			p.movement, p.docKind, p.vendorSign = entity.MovementTypeOUT, entity.DocumentDebitNote, -1
		default:
			return nil, domain.Invalid("direction", fmt.Sprintf("devolución desconocida %q", op.ReturnDirection))
		}
	default:
		return nil, domain.Invalid("kind", fmt.Sprintf("operación desconocida %q", op.Kind))
	}
	p.direction, _ = entity.DirectionOf(p.movement)

	if op.OwnerID == "" {
		return nil, domain.Invalid("owner_id", "es obligatorio")
	}
	if strings.TrimSpace(op.Reference) == "" {
		return nil, domain.Invalid("reference", "es obligatoria")
	}
	if len(op.Lines) == 0 {
		return nil, domain.Invalid("lines", "la operación no tiene líneas")
	}
	if op.AllowBackorder && (!c.cfg.AllowBackorder || p.direction != entity.DirectionDecrease) {
		return nil, domain.Invalid("allow_backorder", "no habilitado para esta operación")
	}

	merged := make(map[string]decimal.Decimal, len(op.Lines))
	for i, line := range op.Lines {
		if line.ProductID == "" {
			return nil, domain.Invalid(fmt.Sprintf("lines[%d].product_id", i), "es obligatorio")
		}
		if !line.Quantity.GreaterThan(decimal.Zero) {
			return nil, domain.Invalid(fmt.Sprintf("lines[%d].quantity", i), "debe ser mayor que cero")
		}
		if line.UnitPrice.IsNegative() {
			return nil, domain.Invalid(fmt.Sprintf("lines[%d].unit_price", i), "no puede ser negativo")
		}
		if err := domaininv.CheckQuantityPrecision(fmt.Sprintf("lines[%d].quantity", i), line.Quantity); err != nil {
			return nil, err
		}
		merged[line.ProductID] = merged[line.ProductID].Add(line.Quantity)
	}
	for productID, qty := range merged {
		if err := domaininv.CheckQuantityPrecision("quantity", qty); err != nil {
			return nil, err
		}
		p.stockLines = append(p.stockLines, LineItem{ProductID: productID, Quantity: qty})
	}
	sort.Slice(p.stockLines, func(i, j int) bool { return p.stockLines[i].ProductID < p.stockLines[j].ProductID })

	if doc := op.Correlated.Document; doc != nil && doc.OnCredit {
		if p.customerSign != 0 && op.Correlated.CustomerID == "" {
			return nil, domain.Invalid("customer_id", "obligatorio en operaciones a crédito")
		}
		if p.vendorSign != 0 && op.Correlated.VendorID == "" {
			return nil, domain.Invalid("vendor_id", "obligatorio en operaciones a crédito")
		}
	}
	return p, nil
}

func (p *plan) productIDs() []string {
	ids := make([]string, len(p.stockLines))
	for i, l := range p.stockLines {
		ids[i] = l.ProductID
	}
	return ids
}

// Execute ejecuta una venta, compra o devolución como unidad atómica.
// Estados: VALIDATING -> RESERVING -> COMMITTING -> DONE; cualquier error deja ABORTED sin escrituras.
// Un ajuste se delega en AdjustStock: una sola línea cuya Quantity es el saldo objetivo, Notes el motivo.
func (c *Coordinator) Execute(ctx context.Context, op Operation) (res *OperationResult, err error) {
	if op.Kind == OperationAdjustment {
		if len(op.Lines) != 1 {
			return nil, c.abort(op.Kind, op.Reference, StateValidating, domain.Invalid("lines", "un ajuste lleva exactamente una línea"))
		}
		return c.AdjustStock(ctx, AdjustCommand{
			OwnerID:     op.OwnerID,
			ProductID:   op.Lines[0].ProductID,
			NewQuantity: op.Lines[0].Quantity,
			Reason:      op.Notes,
			Actor:       op.Actor,
			Reference:   op.Reference,
		})
	}

	ctx, span := tracing.StartSpan(ctx, "inventory.coordinator.execute",
		attribute.String("operation.kind", string(op.Kind)),
		attribute.String("owner.id", op.OwnerID),
		attribute.String("operation.reference", op.Reference),
	)
	start := time.Now()
	defer func() {
		observe(op.Kind, start, res, err)
		tracing.EndSpan(span, err)
	}()

	p, err := c.plan(op)
	if err != nil {
		return nil, c.abort(op.Kind, op.Reference, StateValidating, err)
	}

	release, err := c.lockProducts(ctx, op.OwnerID, p.productIDs())
	if err != nil {
		return nil, c.abort(op.Kind, op.Reference, StateValidating, err)
	}
	defer release()

	res = &OperationResult{
		Kind:      op.Kind,
		State:     StateValidating,
		Reference: op.Reference,
		Balances:  make(map[string]decimal.Decimal, len(p.stockLines)),
	}
	state := StateValidating

	err = c.txRunner.Run(ctx, func(repos repository.Repos) error {
		replayed, err := c.replay(ctx, repos, p, res)
		if err != nil || replayed {
			return err
		}

		// VALIDATING: todas las líneas se verifican antes de cualquier escritura.
		if err := c.checkCorrelated(ctx, repos, p); err != nil {
			return err
		}
		available := make(map[string]decimal.Decimal, len(p.stockLines))
		for _, line := range p.stockLines {
			bal, err := c.materializer.CurrentForUpdate(ctx, repos, line.ProductID, op.OwnerID)
			if err != nil {
				return err
			}
			available[line.ProductID] = bal
			if p.direction == entity.DirectionDecrease && line.Quantity.GreaterThan(bal) && !op.AllowBackorder {
				return &domain.InsufficientStockError{ProductID: line.ProductID, Available: bal, Requested: line.Quantity}
			}
		}

		// RESERVING: asiento + saldo por línea.
		state = StateReserving
		for _, line := range p.stockLines {
			entry, _, err := c.ledger.Append(ctx, repos.Entries, AppendInput{
				OwnerID:       op.OwnerID,
				ProductID:     line.ProductID,
				MovementType:  p.movement,
				Quantity:      line.Quantity,
				ReferenceType: p.refType,
				ReferenceID:   op.Reference,
				Notes:         op.Notes,
				Actor:         op.Actor,
				Backorder:     p.direction == entity.DirectionDecrease && line.Quantity.GreaterThan(available[line.ProductID]),
			})
			if err != nil {
				return err
			}
			bal, err := c.materializer.ApplyDelta(ctx, repos, line.ProductID, op.OwnerID, entry.SignedQuantity())
			if err != nil {
				return err
			}
			res.Entries = append(res.Entries, entry)
			res.Balances[line.ProductID] = bal
		}

		// COMMITTING: entidades correlacionadas y documento.
		state = StateCommitting
		doc, err := c.commitCorrelated(ctx, repos, p, res.Entries)
		if err != nil {
			return err
		}
		res.Document = doc
		return nil
	})
	if err != nil {
		return nil, c.abort(op.Kind, op.Reference, state, err)
	}

	res.State = StateDone
	if !res.Replayed {
		c.afterCommit(ctx, op.OwnerID, res)
	}
	c.log.Info().
		Str("kind", string(op.Kind)).
		Str("owner_id", op.OwnerID).
		Str("reference", op.Reference).
		Int("entries", len(res.Entries)).
		Bool("replayed", res.Replayed).
		Msg("operación confirmada")
	return res, nil
}

// replay devuelve el resultado previo si la referencia ya tiene asientos activos (reintento idempotente).
// Un reintento solo es válido con los mismos productos y cantidades; cualquier diferencia es ErrConflict.
func (c *Coordinator) replay(ctx context.Context, repos repository.Repos, p *plan, res *OperationResult) (bool, error) {
	existing, err := repos.Entries.ListActiveByReference(ctx, p.op.OwnerID, p.refType, p.op.Reference)
	if err != nil {
		return false, err
	}
	if len(existing) == 0 {
		return false, nil
	}
	byProduct := make(map[string]*entity.StockEntry, len(existing))
	for _, e := range existing {
		byProduct[e.ProductID] = e
	}
	if len(byProduct) != len(p.stockLines) {
		return false, fmt.Errorf("%w: la referencia %s ya está registrada con otros productos", domain.ErrConflict, p.op.Reference)
	}
	for _, line := range p.stockLines {
		e, ok := byProduct[line.ProductID]
		if !ok {
			return false, fmt.Errorf("%w: la referencia %s ya está registrada con otros productos", domain.ErrConflict, p.op.Reference)
		}
		if !e.Quantity.Equal(line.Quantity) {
			return false, fmt.Errorf("%w: la referencia %s ya está registrada con %s de %s (se pidió %s)",
				domain.ErrConflict, p.op.Reference, e.Quantity, line.ProductID, line.Quantity)
		}
		bal, err := c.materializer.Current(ctx, repos, line.ProductID, p.op.OwnerID)
		if err != nil {
			return false, err
		}
		res.Entries = append(res.Entries, e)
		res.Balances[line.ProductID] = bal
	}
	doc, err := repos.Documents.GetByReference(ctx, p.op.OwnerID, p.docKind, p.op.Reference)
	if err != nil {
		return false, err
	}
	res.Document = doc
	res.Replayed = true
	return true, nil
}

func (c *Coordinator) checkCorrelated(ctx context.Context, repos repository.Repos, p *plan) error {
	if id := p.op.Correlated.CustomerID; id != "" {
		customer, err := repos.Customers.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if customer == nil || customer.OwnerID != p.op.OwnerID {
			return fmt.Errorf("%w: cliente %s", domain.ErrNotFound, id)
		}
	}
	if id := p.op.Correlated.VendorID; id != "" {
		vendor, err := repos.Vendors.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if vendor == nil || vendor.OwnerID != p.op.OwnerID {
			return fmt.Errorf("%w: proveedor %s", domain.ErrNotFound, id)
		}
	}
	return nil
}

func (c *Coordinator) commitCorrelated(ctx context.Context, repos repository.Repos, p *plan, entries []*entity.StockEntry) (*entity.BusinessDocument, error) {
	draft := p.op.Correlated.Document
	if draft == nil {
		return nil, nil
	}
	doc := c.buildDocument(p, draft, entries)

	if draft.OnCredit && !doc.GrandTotal.IsZero() {
		if p.customerSign != 0 {
			delta := doc.GrandTotal.Mul(decimal.NewFromInt(p.customerSign))
			if err := repos.Customers.AddBalance(ctx, p.op.Correlated.CustomerID, p.op.OwnerID, delta); err != nil {
				return nil, err
			}
		}
		if p.vendorSign != 0 {
			delta := doc.GrandTotal.Mul(decimal.NewFromInt(p.vendorSign))
			if err := repos.Vendors.AddPayable(ctx, p.op.Correlated.VendorID, p.op.OwnerID, delta); err != nil {
				return nil, err
			}
		}
	}
	if err := repos.Documents.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *Coordinator) buildDocument(p *plan, draft *DocumentDraft, entries []*entity.StockEntry) *entity.BusinessDocument {
	now := c.now().UTC()
	entryByProduct := make(map[string]string, len(entries))
	for _, e := range entries {
		entryByProduct[e.ProductID] = e.ID
	}
	doc := &entity.BusinessDocument{
		ID:         uuid.New().String(),
		OwnerID:    p.op.OwnerID,
		Kind:       p.docKind,
		Reference:  p.op.Reference,
		Number:     draft.Number,
		CustomerID: p.op.Correlated.CustomerID,
		VendorID:   p.op.Correlated.VendorID,
		OnCredit:   draft.OnCredit,
		Date:       draft.Date,
		CreatedBy:  p.op.Actor,
		CreatedAt:  now,
	}
	if doc.Number == "" {
		doc.Number = p.op.Reference
	}
	if doc.Date.IsZero() {
		doc.Date = now
	}

	var net, tax decimal.Decimal
	for _, line := range p.op.Lines {
		subtotal := line.Quantity.Mul(line.UnitPrice)
		rate := entity.NormalizeTaxRate(line.TaxRate)
		net = net.Add(subtotal)
		tax = tax.Add(subtotal.Mul(rate))
		doc.Lines = append(doc.Lines, &entity.DocumentLine{
			ID:         uuid.New().String(),
			DocumentID: doc.ID,
			ProductID:  line.ProductID,
			EntryID:    entryByProduct[line.ProductID],
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
			TaxRate:    rate,
			Subtotal:   subtotal,
		})
	}
	if draft.GrandTotal.IsZero() {
		doc.NetTotal, doc.TaxTotal, doc.GrandTotal = net, tax, net.Add(tax)
	} else {
		doc.NetTotal, doc.TaxTotal, doc.GrandTotal = draft.NetTotal, draft.TaxTotal, draft.GrandTotal
	}
	return doc
}

// AdjustStock fija el saldo del producto en NewQuantity con un asiento ADJUSTMENT de abs(diferencia)
// y su AdjustmentRecord. Si el saldo ya es NewQuantity no escribe nada y devuelve éxito.
func (c *Coordinator) AdjustStock(ctx context.Context, cmd AdjustCommand) (res *OperationResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "inventory.coordinator.adjust",
		attribute.String("owner.id", cmd.OwnerID),
		attribute.String("product.id", cmd.ProductID),
	)
	start := time.Now()
	defer func() {
		observe(OperationAdjustment, start, res, err)
		tracing.EndSpan(span, err)
	}()

	switch {
	case cmd.OwnerID == "":
		err = domain.Invalid("owner_id", "es obligatorio")
	case cmd.ProductID == "":
		err = domain.Invalid("product_id", "es obligatorio")
	case cmd.NewQuantity.IsNegative():
		err = domain.Invalid("new_quantity", "no puede ser negativa")
	case strings.TrimSpace(cmd.Reason) == "":
		err = domain.Invalid("reason", "es obligatorio")
	default:
		err = domaininv.CheckQuantityPrecision("new_quantity", cmd.NewQuantity)
	}
	if err != nil {
		return nil, c.abort(OperationAdjustment, cmd.Reference, StateValidating, err)
	}
	ref := cmd.Reference
	if ref == "" {
		ref = uuid.New().String()
	}

	release, err := c.lockProducts(ctx, cmd.OwnerID, []string{cmd.ProductID})
	if err != nil {
		return nil, c.abort(OperationAdjustment, ref, StateValidating, err)
	}
	defer release()

	res = &OperationResult{
		Kind:      OperationAdjustment,
		State:     StateValidating,
		Reference: ref,
		Balances:  make(map[string]decimal.Decimal, 1),
	}
	state := StateValidating

	err = c.txRunner.Run(ctx, func(repos repository.Repos) error {
		existing, err := repos.Entries.FindActiveByReference(ctx, entity.ReferenceAdjustment, ref, cmd.ProductID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.OwnerID != cmd.OwnerID {
				return fmt.Errorf("%w: referencia %s", domain.ErrDuplicate, ref)
			}
			record, err := repos.Adjustments.GetByEntryID(ctx, existing.ID)
			if err != nil {
				return err
			}
			bal, err := c.materializer.Current(ctx, repos, cmd.ProductID, cmd.OwnerID)
			if err != nil {
				return err
			}
			res.Entries = []*entity.StockEntry{existing}
			res.Adjustment = record
			res.Balances[cmd.ProductID] = bal
			res.Replayed = true
			return nil
		}

		current, err := c.materializer.CurrentForUpdate(ctx, repos, cmd.ProductID, cmd.OwnerID)
		if err != nil {
			return err
		}
		diff := cmd.NewQuantity.Sub(current)
		if diff.IsZero() {
			res.Balances[cmd.ProductID] = current
			res.NoOp = true
			return nil
		}
		direction := entity.DirectionIncrease
		if diff.IsNegative() {
			direction = entity.DirectionDecrease
		}

		state = StateReserving
		entry, _, err := c.ledger.Append(ctx, repos.Entries, AppendInput{
			OwnerID:       cmd.OwnerID,
			ProductID:     cmd.ProductID,
			MovementType:  entity.MovementTypeADJUSTMENT,
			Direction:     direction,
			Quantity:      diff.Abs(),
			ReferenceType: entity.ReferenceAdjustment,
			ReferenceID:   ref,
			Notes:         cmd.Reason,
			Actor:         cmd.Actor,
		})
		if err != nil {
			return err
		}
		bal, err := c.materializer.ApplyDelta(ctx, repos, cmd.ProductID, cmd.OwnerID, entry.SignedQuantity())
		if err != nil {
			return err
		}

		state = StateCommitting
		record := &entity.AdjustmentRecord{
			ID:          uuid.New().String(),
			EntryID:     entry.ID,
			OwnerID:     cmd.OwnerID,
			ProductID:   cmd.ProductID,
			OldQuantity: current,
			NewQuantity: cmd.NewQuantity,
			Difference:  diff,
			Reason:      cmd.Reason,
			CreatedBy:   cmd.Actor,
			CreatedAt:   c.now().UTC(),
		}
		if err := repos.Adjustments.Create(ctx, record); err != nil {
			return err
		}
		res.Entries = []*entity.StockEntry{entry}
		res.Balances[cmd.ProductID] = bal
		res.Adjustment = record
		return nil
	})
	if err != nil {
		return nil, c.abort(OperationAdjustment, ref, state, err)
	}

	res.State = StateDone
	if !res.Replayed && !res.NoOp {
		c.afterCommit(ctx, cmd.OwnerID, res)
	}
	c.log.Info().
		Str("owner_id", cmd.OwnerID).
		Str("product_id", cmd.ProductID).
		Str("reference", ref).
		Bool("no_op", res.NoOp).
		Bool("replayed", res.Replayed).
		Msg("ajuste confirmado")
	return res, nil
}

// ReverseEntry anula un asiento bajo el bloqueo de su producto. Rechaza la anulación si dejaría
// el saldo negativo.
func (c *Coordinator) ReverseEntry(ctx context.Context, cmd ReverseCommand) (res *OperationResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "inventory.coordinator.reverse",
		attribute.String("owner.id", cmd.OwnerID),
		attribute.String("entry.id", cmd.EntryID),
	)
	start := time.Now()
	defer func() {
		observe(OperationReversal, start, res, err)
		tracing.EndSpan(span, err)
	}()

	if cmd.OwnerID == "" || cmd.EntryID == "" {
		return nil, c.abort(OperationReversal, cmd.EntryID, StateValidating, domain.Invalid("entry_id", "asiento y propietario son obligatorios"))
	}

	// Ubicar el producto para tomar su bloqueo antes de la transacción de escritura.
	var productID string
	err = c.txRunner.Run(ctx, func(repos repository.Repos) error {
		e, err := repos.Entries.GetByID(ctx, cmd.EntryID)
		if err != nil {
			return err
		}
		if e == nil || e.OwnerID != cmd.OwnerID {
			return fmt.Errorf("%w: asiento %s", domain.ErrNotFound, cmd.EntryID)
		}
		productID = e.ProductID
		return nil
	})
	if err != nil {
		return nil, c.abort(OperationReversal, cmd.EntryID, StateValidating, err)
	}

	release, err := c.lockProducts(ctx, cmd.OwnerID, []string{productID})
	if err != nil {
		return nil, c.abort(OperationReversal, cmd.EntryID, StateValidating, err)
	}
	defer release()

	res = &OperationResult{
		Kind:      OperationReversal,
		State:     StateValidating,
		Reference: cmd.EntryID,
		Balances:  make(map[string]decimal.Decimal, 1),
	}
	state := StateValidating

	err = c.txRunner.Run(ctx, func(repos repository.Repos) error {
		current, err := c.materializer.CurrentForUpdate(ctx, repos, productID, cmd.OwnerID)
		if err != nil {
			return err
		}
		original, err := repos.Entries.GetByID(ctx, cmd.EntryID)
		if err != nil {
			return err
		}
		if original != nil && original.IsActive {
			after := current.Sub(original.SignedQuantity())
			if after.IsNegative() && !original.Backorder {
				return &domain.InsufficientStockError{ProductID: productID, Available: current, Requested: original.Quantity}
			}
		}

		state = StateReserving
		compensating, reversed, err := c.ledger.Reverse(ctx, repos.Entries, ReverseInput{
			EntryID: cmd.EntryID,
			OwnerID: cmd.OwnerID,
			Actor:   cmd.Actor,
			Reason:  cmd.Reason,
		})
		if err != nil {
			return err
		}
		state = StateCommitting
		bal, err := c.materializer.ApplyDelta(ctx, repos, productID, cmd.OwnerID, reversed.SignedQuantity().Neg())
		if err != nil {
			return err
		}
		// Todo asiento ADJUSTMENT lleva su registro de ajuste, también el compensatorio.
		if compensating.MovementType == entity.MovementTypeADJUSTMENT {
			record := &entity.AdjustmentRecord{
				ID:          uuid.New().String(),
				EntryID:     compensating.ID,
				OwnerID:     cmd.OwnerID,
				ProductID:   productID,
				OldQuantity: current,
				NewQuantity: bal,
				Difference:  bal.Sub(current),
				Reason:      compensating.Notes,
				CreatedBy:   cmd.Actor,
				CreatedAt:   c.now().UTC(),
			}
			if err := repos.Adjustments.Create(ctx, record); err != nil {
				return err
			}
			res.Adjustment = record
		}
		res.Reference = reversed.ReferenceID
		res.Entries = []*entity.StockEntry{compensating}
		res.Balances[productID] = bal
		return nil
	})
	if err != nil {
		return nil, c.abort(OperationReversal, cmd.EntryID, state, err)
	}

	res.State = StateDone
	c.afterCommit(ctx, cmd.OwnerID, res)
	c.log.Info().Str("owner_id", cmd.OwnerID).Str("entry_id", cmd.EntryID).Msg("asiento anulado")
	return res, nil
}

// RebuildBalance recalcula la caché de un producto desde el libro bajo su bloqueo.
func (c *Coordinator) RebuildBalance(ctx context.Context, ownerID, productID string) (decimal.Decimal, error) {
	if ownerID == "" || productID == "" {
		return decimal.Zero, domain.Invalid("product_id", "producto y propietario son obligatorios")
	}
	release, err := c.lockProducts(ctx, ownerID, []string{productID})
	if err != nil {
		return decimal.Zero, err
	}
	defer release()

	var total decimal.Decimal
	err = c.txRunner.Run(ctx, func(repos repository.Repos) error {
		var err error
		total, err = c.materializer.Rebuild(ctx, repos, productID, ownerID)
		return err
	})
	if err != nil {
		return decimal.Zero, wrapPersistence(err)
	}
	return total, nil
}

// GetCurrentStock devuelve el saldo actual del producto.
func (c *Coordinator) GetCurrentStock(ctx context.Context, ownerID, productID string) (decimal.Decimal, error) {
	if ownerID == "" || productID == "" {
		return decimal.Zero, domain.Invalid("product_id", "producto y propietario son obligatorios")
	}
	var qty decimal.Decimal
	err := c.txRunner.Run(ctx, func(repos repository.Repos) error {
		var err error
		qty, err = c.materializer.Current(ctx, repos, productID, ownerID)
		return err
	})
	if err != nil {
		return decimal.Zero, wrapPersistence(err)
	}
	return qty, nil
}

// GetLowStockAlerts devuelve los productos en stock bajo o agotados.
func (c *Coordinator) GetLowStockAlerts(ctx context.Context, ownerID string) ([]*entity.StockAlert, error) {
	return c.alerts.ListActiveAlerts(ctx, ownerID)
}

// ListMovements historial del libro para un producto (incluye anulados).
func (c *Coordinator) ListMovements(ctx context.Context, ownerID, productID string, limit, offset int) ([]*entity.StockEntry, error) {
	if ownerID == "" || productID == "" {
		return nil, domain.Invalid("product_id", "producto y propietario son obligatorios")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var list []*entity.StockEntry
	err := c.txRunner.Run(ctx, func(repos repository.Repos) error {
		var err error
		list, err = repos.Entries.ListByProduct(ctx, productID, ownerID, limit, offset)
		return err
	})
	if err != nil {
		return nil, wrapPersistence(err)
	}
	return list, nil
}

// Reconcile compara la caché con el libro para un producto sin corregir nada.
func (c *Coordinator) Reconcile(ctx context.Context, ownerID, productID string) (*ReconcileResult, error) {
	if ownerID == "" || productID == "" {
		return nil, domain.Invalid("product_id", "producto y propietario son obligatorios")
	}
	var out *ReconcileResult
	err := c.txRunner.Run(ctx, func(repos repository.Repos) error {
		var err error
		out, err = c.materializer.Reconcile(ctx, repos, productID, ownerID)
		return err
	})
	if err != nil {
		return nil, wrapPersistence(err)
	}
	if !out.Match {
		c.log.Error().
			Str("owner_id", ownerID).
			Str("product_id", productID).
			Str("cached", out.Cached.String()).
			Str("ledger", out.Ledger.String()).
			Msg("caché de stock diverge del libro")
	}
	return out, nil
}

// lockProducts toma los bloqueos en orden de producto (sin interbloqueos) con un plazo total de
// LockTimeout. Devuelve la función que los libera en orden inverso.
func (c *Coordinator) lockProducts(ctx context.Context, ownerID string, productIDs []string) (func(), error) {
	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)

	start := time.Now()
	deadline := start.Add(c.cfg.LockTimeout)
	unlocks := make([]func(), 0, len(ids))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for i, id := range ids {
		if i > 0 && id == ids[i-1] {
			continue
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			release()
			metrics.LockConflictsTotal.Inc()
			return nil, fmt.Errorf("%w: producto %s", domain.ErrConcurrencyConflict, id)
		}
		unlock, err := c.locker.Lock(ctx, lockKey(ownerID, id), remaining)
		if err != nil {
			release()
			metrics.LockConflictsTotal.Inc()
			if !errors.Is(err, domain.ErrConcurrencyConflict) {
				err = fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, err)
			}
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	metrics.LockWaitSeconds.Observe(time.Since(start).Seconds())
	return release, nil
}

func lockKey(ownerID, productID string) string {
	return "stock:" + ownerID + ":" + productID
}

// afterCommit reevalúa alertas y publica eventos mientras los bloqueos siguen tomados, de modo que
// la siguiente lectura del producto ya ve el estado nuevo. Los fallos aquí no deshacen la operación.
func (c *Coordinator) afterCommit(ctx context.Context, ownerID string, res *OperationResult) {
	products := make([]string, 0, len(res.Balances))
	for productID := range res.Balances {
		products = append(products, productID)
	}
	sort.Strings(products)

	if c.alerts != nil {
		res.Alerts = make(map[string]entity.AlertState, len(products))
		for _, productID := range products {
			state, err := c.alerts.Evaluate(ctx, productID, ownerID)
			if err != nil {
				c.log.Warn().Err(err).Str("product_id", productID).Msg("no se pudo evaluar la alerta")
				continue
			}
			res.Alerts[productID] = state
		}
	}

	if c.publisher == nil {
		return
	}
	for _, e := range res.Entries {
		event := StockMovedEvent{
			EventType:     EventStockMoved,
			OwnerID:       e.OwnerID,
			ProductID:     e.ProductID,
			EntryID:       e.ID,
			MovementType:  string(e.MovementType),
			Direction:     string(e.Direction),
			Quantity:      e.Quantity,
			ReferenceType: string(e.ReferenceType),
			ReferenceID:   e.ReferenceID,
			Balance:       res.Balances[e.ProductID],
			OccurredAt:    e.CreatedAt,
		}
		if err := c.publisher.Publish(ctx, e.OwnerID+":"+e.ProductID, event); err != nil {
			metrics.EventsPublishFailedTotal.Inc()
			c.log.Warn().Err(err).Str("entry_id", e.ID).Msg("no se pudo publicar el movimiento")
		}
	}
}

func (c *Coordinator) abort(kind OperationKind, reference string, state OperationState, err error) error {
	err = wrapPersistence(err)
	ev := c.log.Warn()
	if errors.Is(err, domain.ErrPersistence) {
		ev = c.log.Error()
	}
	ev.Err(err).
		Str("kind", string(kind)).
		Str("reference", reference).
		Str("state", string(StateAborted)).
		Str("aborted_at", string(state)).
		Msg("operación abortada")
	return err
}

// wrapPersistence clasifica como ErrPersistence (reintentable) cualquier error que no sea de dominio.
func wrapPersistence(err error) error {
	if err == nil || domain.IsDomainError(err) {
		return err
	}
	return domain.Persistence(err)
}

func observe(kind OperationKind, start time.Time, res *OperationResult, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = errorClass(err)
	case res != nil && res.Replayed:
		outcome = "replayed"
	case res != nil && res.NoOp:
		outcome = "noop"
	}
	metrics.OperationsTotal.WithLabelValues(string(kind), outcome).Inc()
	metrics.OperationLatency.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
}

func errorClass(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return "validation"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPersistence):
		return "persistence"
	}
	return "error"
}
