package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/stock-ledger/internal/application/dto"
	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

// InventoryHandler expone el núcleo de stock a los colaboradores (protegido).
type InventoryHandler struct {
	coord     *inventory.Coordinator
	migration *inventory.MigrationEngine
	log       *logger.Logger
}

// NewInventoryHandler construye el handler.
func NewInventoryHandler(coord *inventory.Coordinator, migration *inventory.MigrationEngine, log *logger.Logger) *InventoryHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &InventoryHandler{coord: coord, migration: migration, log: log.Component("http")}
}

// RecordSale godoc
// @Summary      Registrar venta
// @Description  Salidas de stock por línea y factura en una sola transacción. Reintentar con el mismo invoice_ref no duplica.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RecordSaleRequest  true  "invoice_ref, lines, customer_id, document"
// @Success      201   {object}  dto.OperationResponse
// @Success      200   {object}  dto.OperationResponse  "referencia ya registrada"
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Failure      503   {object}  dto.ErrorResponse
// @Router       /api/inventory/sales [post]
func (h *InventoryHandler) RecordSale(c *fiber.Ctx) error {
	ownerID, userID := GetOwnerID(c), GetUserID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	var in dto.RecordSaleRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.coord.RecordSale(c.UserContext(), inventory.SaleCommand{
		OwnerID:        ownerID,
		Actor:          userID,
		Lines:          toLineItems(in.Lines),
		CustomerID:     in.CustomerID,
		InvoiceRef:     in.InvoiceRef,
		Document:       toDraft(in.Document),
		AllowBackorder: in.AllowBackorder,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return writeOperation(c, res)
}

// RecordPurchase godoc
// @Summary      Registrar compra
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RecordPurchaseRequest  true  "purchase_ref, lines, vendor_id, document"
// @Success      201   {object}  dto.OperationResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/purchases [post]
func (h *InventoryHandler) RecordPurchase(c *fiber.Ctx) error {
	ownerID, userID := GetOwnerID(c), GetUserID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	var in dto.RecordPurchaseRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.coord.RecordPurchase(c.UserContext(), inventory.PurchaseCommand{
		OwnerID:     ownerID,
		Actor:       userID,
		Lines:       toLineItems(in.Lines),
		VendorID:    in.VendorID,
		PurchaseRef: in.PurchaseRef,
		Document:    toDraft(in.Document),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return writeOperation(c, res)
}

// RecordReturn godoc
// @Summary      Registrar devolución
// @Description  FROM_CUSTOMER ingresa stock (nota crédito); TO_VENDOR lo retira (nota débito).
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.RecordReturnRequest  true  "direction, return_ref (obligatoria), original_ref, lines"
// @Success      201   {object}  dto.OperationResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/returns [post]
func (h *InventoryHandler) RecordReturn(c *fiber.Ctx) error {
	ownerID, userID := GetOwnerID(c), GetUserID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	var in dto.RecordReturnRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.coord.RecordReturn(c.UserContext(), inventory.ReturnCommand{
		OwnerID:     ownerID,
		Actor:       userID,
		Lines:       toLineItems(in.Lines),
		Direction:   inventory.ReturnDirection(in.Direction),
		OriginalRef: in.OriginalRef,
		ReturnRef:   in.ReturnRef,
		CustomerID:  in.CustomerID,
		VendorID:    in.VendorID,
		Document:    toDraft(in.Document),
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return writeOperation(c, res)
}

// AdjustStock godoc
// @Summary      Ajustar stock a un conteo físico
// @Description  Fija el saldo en new_quantity. Si ya coincide no escribe nada (no_op=true).
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body  body  dto.AdjustStockRequest  true  "product_id, new_quantity, reason"
// @Success      201   {object}  dto.OperationResponse
// @Success      200   {object}  dto.OperationResponse  "sin cambios o referencia ya registrada"
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/adjustments [post]
func (h *InventoryHandler) AdjustStock(c *fiber.Ctx) error {
	ownerID, userID := GetOwnerID(c), GetUserID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	var in dto.AdjustStockRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.coord.AdjustStock(c.UserContext(), inventory.AdjustCommand{
		OwnerID:     ownerID,
		ProductID:   in.ProductID,
		NewQuantity: in.NewQuantity,
		Reason:      in.Reason,
		Actor:       userID,
		Reference:   in.Reference,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return writeOperation(c, res)
}

// ReverseEntry godoc
// @Summary      Anular asiento
// @Description  Desactiva el asiento y registra su compensatorio; el saldo vuelve al valor previo.
// @Tags         inventory
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string                   true  "ID del asiento"
// @Param        body  body  dto.ReverseEntryRequest  false "reason"
// @Success      201   {object}  dto.OperationResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.ErrorResponse
// @Router       /api/inventory/entries/{id}/reverse [post]
func (h *InventoryHandler) ReverseEntry(c *fiber.Ctx) error {
	ownerID, userID := GetOwnerID(c), GetUserID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	var in dto.ReverseEntryRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return badBody(c)
		}
	}
	res, err := h.coord.ReverseEntry(c.UserContext(), inventory.ReverseCommand{
		OwnerID: ownerID,
		EntryID: c.Params("id"),
		Actor:   userID,
		Reason:  in.Reason,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return writeOperation(c, res)
}

// GetCurrentStock godoc
// @Summary      Saldo actual de un producto
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  path  string  true  "ID del producto"
// @Success      200  {object}  dto.StockResponse
// @Router       /api/inventory/stock/{product_id} [get]
func (h *InventoryHandler) GetCurrentStock(c *fiber.Ctx) error {
	ownerID := GetOwnerID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	productID := c.Params("product_id")
	qty, err := h.coord.GetCurrentStock(c.UserContext(), ownerID, productID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.StockResponse{ProductID: productID, Quantity: qty})
}

// Reconcile godoc
// @Summary      Comparar caché de saldo contra el libro
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  path  string  true  "ID del producto"
// @Success      200  {object}  inventory.ReconcileResult
// @Router       /api/inventory/stock/{product_id}/reconcile [get]
func (h *InventoryHandler) Reconcile(c *fiber.Ctx) error {
	ownerID := GetOwnerID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	out, err := h.coord.Reconcile(c.UserContext(), ownerID, c.Params("product_id"))
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(out)
}

// RebuildBalance godoc
// @Summary      Reconstruir la caché de saldo desde el libro
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  path  string  true  "ID del producto"
// @Success      200  {object}  dto.StockResponse
// @Router       /api/inventory/stock/{product_id}/rebuild [post]
func (h *InventoryHandler) RebuildBalance(c *fiber.Ctx) error {
	ownerID := GetOwnerID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	productID := c.Params("product_id")
	qty, err := h.coord.RebuildBalance(c.UserContext(), ownerID, productID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.StockResponse{ProductID: productID, Quantity: qty})
}

// ListMovements godoc
// @Summary      Historial de asientos de un producto
// @Description  Más recientes primero; incluye asientos anulados y compensatorios.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Param        product_id  path   string  true   "ID del producto"
// @Param        limit       query  int     false  "máximo 500 (por defecto 50)"
// @Param        offset      query  int     false  "desplazamiento"
// @Success      200  {object}  map[string]interface{}
// @Router       /api/inventory/movements/{product_id} [get]
func (h *InventoryHandler) ListMovements(c *fiber.Ctx) error {
	ownerID := GetOwnerID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_QUERY", Message: "limit/offset inválidos"})
	}
	page.DefaultPage()
	list, err := h.coord.ListMovements(c.UserContext(), ownerID, c.Params("product_id"), page.Limit, page.Offset)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(fiber.Map{
		"page":    dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
		"entries": dto.FromStockEntries(list),
	})
}

// GetLowStockAlerts godoc
// @Summary      Productos en stock bajo o agotados
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  dto.AlertResponse
// @Router       /api/inventory/alerts [get]
func (h *InventoryHandler) GetLowStockAlerts(c *fiber.Ctx) error {
	ownerID := GetOwnerID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	list, err := h.coord.GetLowStockAlerts(c.UserContext(), ownerID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(dto.FromAlerts(list))
}

// MigrateLegacyStock godoc
// @Summary      Migrar el contador legado al libro
// @Description  Crea un asiento OPENING por producto; re-ejecutable sin duplicar.
// @Tags         inventory
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  inventory.MigrationReport
// @Router       /api/inventory/migrations/legacy-stock [post]
func (h *InventoryHandler) MigrateLegacyStock(c *fiber.Ctx) error {
	ownerID := GetOwnerID(c)
	if ownerID == "" {
		return unauthorized(c)
	}
	report, err := h.migration.Migrate(c.UserContext(), ownerID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(report)
}

func toLineItems(lines []dto.LineItemRequest) []inventory.LineItem {
	out := make([]inventory.LineItem, 0, len(lines))
	for _, l := range lines {
		out = append(out, inventory.LineItem{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			TaxRate:   l.TaxRate,
		})
	}
	return out
}

func toDraft(d *dto.DocumentRequest) *inventory.DocumentDraft {
	if d == nil {
		return nil
	}
	draft := &inventory.DocumentDraft{
		Number:     d.Number,
		NetTotal:   d.NetTotal,
		TaxTotal:   d.TaxTotal,
		GrandTotal: d.GrandTotal,
		OnCredit:   d.OnCredit,
	}
	if d.Date != nil {
		draft.Date = d.Date.In(time.UTC)
	}
	return draft
}

// writeOperation responde 201 si se escribió algo y 200 si fue repetición o no hubo cambios.
func writeOperation(c *fiber.Ctx, res *inventory.OperationResult) error {
	resp := dto.OperationResponse{
		Kind:      string(res.Kind),
		State:     string(res.State),
		Reference: res.Reference,
		Replayed:  res.Replayed,
		NoOp:      res.NoOp,
		Entries:   dto.FromStockEntries(res.Entries),
		Balances:  res.Balances,
		Document:  dto.FromDocument(res.Document),
	}
	if len(res.Alerts) > 0 {
		resp.Alerts = make(map[string]string, len(res.Alerts))
		for productID, state := range res.Alerts {
			resp.Alerts[productID] = string(state)
		}
	}
	status := fiber.StatusCreated
	if res.Replayed || res.NoOp {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(resp)
}
