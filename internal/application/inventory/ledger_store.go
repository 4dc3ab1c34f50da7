package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// AppendInput datos de un asiento nuevo. Direction solo se informa en ADJUSTMENT;
// para los demás tipos se deriva del tipo de movimiento.
type AppendInput struct {
	OwnerID       string
	ProductID     string
	MovementType  entity.MovementType
	Direction     entity.Direction
	Quantity      decimal.Decimal
	ReferenceType entity.ReferenceType
	ReferenceID   string
	Notes         string
	Actor         string
	Backorder     bool
}

// ReverseInput datos para anular un asiento.
type ReverseInput struct {
	EntryID string
	OwnerID string
	Actor   string
	Reason  string
}

// LedgerStore es el único camino de escritura del libro de stock. No valida suficiencia de saldo:
// eso lo hace el coordinador contra el materializador antes de llamar a Append.
type LedgerStore struct {
	now func() time.Time
}

// NewLedgerStore construye el store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{now: time.Now}
}

// Append valida e inserta un asiento. Si ya existe un asiento activo con la misma
// (reference_type, reference_id, product_id) lo devuelve con created=false sin insertar nada.
func (s *LedgerStore) Append(ctx context.Context, entries repository.StockEntryRepository, in AppendInput) (*entity.StockEntry, bool, error) {
	entry, err := s.build(in)
	if err != nil {
		return nil, false, err
	}

	existing, err := entries.FindActiveByReference(ctx, entry.ReferenceType, entry.ReferenceID, entry.ProductID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		if existing.OwnerID != entry.OwnerID {
			return nil, false, fmt.Errorf("%w: referencia %s/%s pertenece a otro propietario", domain.ErrDuplicate, entry.ReferenceType, entry.ReferenceID)
		}
		return existing, false, nil
	}

	if err := entries.Create(ctx, entry); err != nil {
		if !errors.Is(err, domain.ErrDuplicate) {
			return nil, false, err
		}
		// Otro escritor ganó la llave de idempotencia: devolver el asiento ganador.
		winner, findErr := entries.FindActiveByReference(ctx, entry.ReferenceType, entry.ReferenceID, entry.ProductID)
		if findErr != nil {
			return nil, false, findErr
		}
		if winner == nil {
			return nil, false, err
		}
		return winner, false, nil
	}
	metrics.EntriesAppendedTotal.WithLabelValues(string(entry.MovementType)).Inc()
	return entry, true, nil
}

func (s *LedgerStore) build(in AppendInput) (*entity.StockEntry, error) {
	if in.OwnerID == "" {
		return nil, domain.Invalid("owner_id", "es obligatorio")
	}
	if in.ProductID == "" {
		return nil, domain.Invalid("product_id", "es obligatorio")
	}
	if in.ReferenceID == "" {
		return nil, domain.Invalid("reference_id", "es obligatorio")
	}
	movement, ok := entity.ParseMovementType(string(in.MovementType))
	if !ok {
		return nil, domain.Invalid("movement_type", fmt.Sprintf("desconocido %q", in.MovementType))
	}
	refType, ok := entity.ParseReferenceType(string(in.ReferenceType))
	if !ok {
		return nil, domain.Invalid("reference_type", fmt.Sprintf("desconocido %q", in.ReferenceType))
	}
	if !in.Quantity.GreaterThan(decimal.Zero) {
		return nil, domain.Invalid("quantity", "debe ser mayor que cero")
	}
	if err := domaininv.CheckQuantityPrecision("quantity", in.Quantity); err != nil {
		return nil, err
	}

	direction, implied := entity.DirectionOf(movement)
	switch {
	case implied && in.Direction != "" && in.Direction != direction:
		return nil, domain.Invalid("direction", fmt.Sprintf("no corresponde a %s", movement))
	case !implied:
		if in.Direction != entity.DirectionIncrease && in.Direction != entity.DirectionDecrease {
			return nil, domain.Invalid("direction", "obligatoria en ajustes")
		}
		direction = in.Direction
	}

	return &entity.StockEntry{
		ID:            uuid.New().String(),
		OwnerID:       in.OwnerID,
		ProductID:     in.ProductID,
		MovementType:  movement,
		Direction:     direction,
		Quantity:      in.Quantity,
		ReferenceType: refType,
		ReferenceID:   in.ReferenceID,
		Notes:         in.Notes,
		CreatedBy:     in.Actor,
		CreatedAt:     s.now().UTC(),
		IsActive:      true,
		Backorder:     in.Backorder,
	}, nil
}

// Reverse anula un asiento activo: lo marca is_active=false y registra el asiento compensatorio
// (efecto contrario, ReversalOf = original). El compensatorio se guarda también inactivo, como
// mitad de auditoría del par, de modo que la suma de activos pierde exactamente el efecto del
// original una sola vez. Devuelve el compensatorio y el original.
func (s *LedgerStore) Reverse(ctx context.Context, entries repository.StockEntryRepository, in ReverseInput) (*entity.StockEntry, *entity.StockEntry, error) {
	if in.EntryID == "" {
		return nil, nil, domain.Invalid("entry_id", "es obligatorio")
	}
	original, err := entries.GetByID(ctx, in.EntryID)
	if err != nil {
		return nil, nil, err
	}
	if original == nil || original.OwnerID != in.OwnerID || original.ReversalOf != "" {
		return nil, nil, fmt.Errorf("%w: asiento %s", domain.ErrNotFound, in.EntryID)
	}
	if !original.IsActive {
		return nil, nil, fmt.Errorf("%w: asiento %s ya anulado", domain.ErrNotFound, in.EntryID)
	}

	flipped, err := entries.Deactivate(ctx, original.ID)
	if err != nil {
		return nil, nil, err
	}
	if !flipped {
		return nil, nil, fmt.Errorf("%w: asiento %s ya anulado", domain.ErrNotFound, in.EntryID)
	}
	original.IsActive = false

	notes := in.Reason
	if notes == "" {
		notes = "anulación de " + original.ID
	}
	compensating := &entity.StockEntry{
		ID:            uuid.New().String(),
		OwnerID:       original.OwnerID,
		ProductID:     original.ProductID,
		MovementType:  oppositeMovement(original.MovementType),
		Direction:     original.Direction.Opposite(),
		Quantity:      original.Quantity,
		ReferenceType: original.ReferenceType,
		ReferenceID:   original.ReferenceID,
		Notes:         notes,
		CreatedBy:     in.Actor,
		CreatedAt:     s.now().UTC(),
		IsActive:      false,
		ReversalOf:    original.ID,
	}
	if err := entries.Create(ctx, compensating); err != nil {
		return nil, nil, err
	}
	metrics.EntriesAppendedTotal.WithLabelValues(string(compensating.MovementType)).Inc()
	return compensating, original, nil
}

func oppositeMovement(t entity.MovementType) entity.MovementType {
	switch t {
	case entity.MovementTypeIN, entity.MovementTypeOPENING:
		return entity.MovementTypeOUT
	case entity.MovementTypeOUT:
		return entity.MovementTypeIN
	}
	return entity.MovementTypeADJUSTMENT
}
