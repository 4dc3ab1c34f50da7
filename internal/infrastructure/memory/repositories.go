package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

// Los repositorios solo se obtienen desde Store.Run: asumen el mutex del Store tomado.

var (
	_ repository.StockEntryRepository   = (*entryRepo)(nil)
	_ repository.CurrentStockRepository = (*stockRepo)(nil)
	_ repository.AdjustmentRepository   = (*adjustmentRepo)(nil)
	_ repository.ProductRepository      = (*productRepo)(nil)
	_ repository.CustomerRepository     = (*customerRepo)(nil)
	_ repository.VendorRepository       = (*vendorRepo)(nil)
	_ repository.DocumentRepository     = (*documentRepo)(nil)
	_ repository.AlertRepository        = (*alertRepo)(nil)
)

type entryRepo struct{ s *Store }

func (r *entryRepo) Create(_ context.Context, entry *entity.StockEntry) error {
	if err := r.s.failpoint(OpEntriesCreate); err != nil {
		return err
	}
	d := r.s.data
	if _, ok := d.entryIndex[entry.ID]; ok {
		return fmt.Errorf("%w: asiento %s", domain.ErrDuplicate, entry.ID)
	}
	if entry.IsActive {
		for _, e := range d.entries {
			if e.IsActive && e.ReferenceType == entry.ReferenceType && e.ReferenceID == entry.ReferenceID && e.ProductID == entry.ProductID {
				return fmt.Errorf("%w: referencia %s/%s producto %s", domain.ErrDuplicate, entry.ReferenceType, entry.ReferenceID, entry.ProductID)
			}
		}
	}
	d.entryIndex[entry.ID] = len(d.entries)
	d.entries = append(d.entries, copyEntry(entry))
	return nil
}

func (r *entryRepo) GetByID(_ context.Context, id string) (*entity.StockEntry, error) {
	d := r.s.data
	i, ok := d.entryIndex[id]
	if !ok {
		return nil, nil
	}
	return copyEntry(d.entries[i]), nil
}

func (r *entryRepo) FindActiveByReference(_ context.Context, refType entity.ReferenceType, refID, productID string) (*entity.StockEntry, error) {
	for _, e := range r.s.data.entries {
		if e.IsActive && e.ReferenceType == refType && e.ReferenceID == refID && e.ProductID == productID {
			return copyEntry(e), nil
		}
	}
	return nil, nil
}

func (r *entryRepo) ListActiveByReference(_ context.Context, ownerID string, refType entity.ReferenceType, refID string) ([]*entity.StockEntry, error) {
	var list []*entity.StockEntry
	for _, e := range r.s.data.entries {
		if e.IsActive && e.OwnerID == ownerID && e.ReferenceType == refType && e.ReferenceID == refID {
			list = append(list, copyEntry(e))
		}
	}
	return list, nil
}

func (r *entryRepo) Deactivate(_ context.Context, id string) (bool, error) {
	d := r.s.data
	i, ok := d.entryIndex[id]
	if !ok || !d.entries[i].IsActive {
		return false, nil
	}
	d.entries[i].IsActive = false
	return true, nil
}

func (r *entryRepo) SumActive(_ context.Context, productID, ownerID string) (decimal.Decimal, error) {
	var product []*entity.StockEntry
	for _, e := range r.s.data.entries {
		if e.ProductID == productID && e.OwnerID == ownerID {
			product = append(product, e)
		}
	}
	return domaininv.Balance(product), nil
}

func (r *entryRepo) HasOpening(_ context.Context, productID, ownerID string) (bool, error) {
	for _, e := range r.s.data.entries {
		if e.IsActive && e.MovementType == entity.MovementTypeOPENING && e.ProductID == productID && e.OwnerID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

func (r *entryRepo) ListByProduct(_ context.Context, productID, ownerID string, limit, offset int) ([]*entity.StockEntry, error) {
	var list []*entity.StockEntry
	entries := r.s.data.entries
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.ProductID != productID || e.OwnerID != ownerID {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		list = append(list, copyEntry(e))
		if limit > 0 && len(list) == limit {
			break
		}
	}
	return list, nil
}

type stockRepo struct{ s *Store }

func (r *stockRepo) Get(_ context.Context, productID, ownerID string) (*entity.CurrentStock, error) {
	cs, ok := r.s.data.stock[key(ownerID, productID)]
	if !ok {
		return nil, nil
	}
	cp := *cs
	return &cp, nil
}

// GetForUpdate no necesita bloquear: Run ya serializa las transacciones.
func (r *stockRepo) GetForUpdate(ctx context.Context, productID, ownerID string) (*entity.CurrentStock, error) {
	return r.Get(ctx, productID, ownerID)
}

func (r *stockRepo) Upsert(_ context.Context, cs *entity.CurrentStock) error {
	if err := r.s.failpoint(OpStockUpsert); err != nil {
		return err
	}
	cp := *cs
	r.s.data.stock[key(cs.OwnerID, cs.ProductID)] = &cp
	return nil
}

func (r *stockRepo) ListByOwner(_ context.Context, ownerID string) ([]*entity.CurrentStock, error) {
	var list []*entity.CurrentStock
	for _, cs := range r.s.data.stock {
		if cs.OwnerID == ownerID {
			cp := *cs
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ProductID < list[j].ProductID })
	return list, nil
}

type adjustmentRepo struct{ s *Store }

func (r *adjustmentRepo) Create(_ context.Context, record *entity.AdjustmentRecord) error {
	if err := r.s.failpoint(OpAdjustmentsCreate); err != nil {
		return err
	}
	if _, ok := r.s.data.adjustments[record.EntryID]; ok {
		return fmt.Errorf("%w: ajuste del asiento %s", domain.ErrDuplicate, record.EntryID)
	}
	cp := *record
	r.s.data.adjustments[record.EntryID] = &cp
	return nil
}

func (r *adjustmentRepo) GetByEntryID(_ context.Context, entryID string) (*entity.AdjustmentRecord, error) {
	rec, ok := r.s.data.adjustments[entryID]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

type productRepo struct{ s *Store }

func (r *productRepo) GetByID(_ context.Context, id string) (*entity.Product, error) {
	p, ok := r.s.data.products[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *productRepo) GetThresholds(_ context.Context, productID, ownerID string) (*entity.ProductThresholds, error) {
	p, ok := r.s.data.products[productID]
	if !ok || p.OwnerID != ownerID {
		return nil, nil
	}
	return &entity.ProductThresholds{ProductID: p.ID, OwnerID: p.OwnerID, MinStock: p.MinStock, MaxStock: p.MaxStock}, nil
}

func (r *productRepo) ListThresholdsByOwner(_ context.Context, ownerID string) ([]*entity.ProductThresholds, error) {
	var list []*entity.ProductThresholds
	for _, p := range r.s.data.products {
		if p.OwnerID == ownerID && p.Active {
			list = append(list, &entity.ProductThresholds{ProductID: p.ID, OwnerID: p.OwnerID, MinStock: p.MinStock, MaxStock: p.MaxStock})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ProductID < list[j].ProductID })
	return list, nil
}

func (r *productRepo) ListLegacyStock(_ context.Context, ownerID string) ([]*entity.LegacyStock, error) {
	var list []*entity.LegacyStock
	for _, l := range r.s.data.legacy {
		if ownerID == "" || l.OwnerID == ownerID {
			cp := *l
			list = append(list, &cp)
		}
	}
	return list, nil
}

type customerRepo struct{ s *Store }

func (r *customerRepo) GetByID(_ context.Context, id string) (*entity.Customer, error) {
	c, ok := r.s.data.customers[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *customerRepo) AddBalance(_ context.Context, id, ownerID string, delta decimal.Decimal) error {
	if err := r.s.failpoint(OpCustomersAddBalance); err != nil {
		return err
	}
	c, ok := r.s.data.customers[id]
	if !ok || c.OwnerID != ownerID {
		return fmt.Errorf("%w: cliente %s", domain.ErrNotFound, id)
	}
	c.Balance = c.Balance.Add(delta)
	return nil
}

type vendorRepo struct{ s *Store }

func (r *vendorRepo) GetByID(_ context.Context, id string) (*entity.Vendor, error) {
	v, ok := r.s.data.vendors[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (r *vendorRepo) AddPayable(_ context.Context, id, ownerID string, delta decimal.Decimal) error {
	if err := r.s.failpoint(OpVendorsAddPayable); err != nil {
		return err
	}
	v, ok := r.s.data.vendors[id]
	if !ok || v.OwnerID != ownerID {
		return fmt.Errorf("%w: proveedor %s", domain.ErrNotFound, id)
	}
	v.Payable = v.Payable.Add(delta)
	return nil
}

type documentRepo struct{ s *Store }

func (r *documentRepo) Create(_ context.Context, doc *entity.BusinessDocument) error {
	if err := r.s.failpoint(OpDocumentsCreate); err != nil {
		return err
	}
	for _, d := range r.s.data.documents {
		if d.ID == doc.ID || (d.OwnerID == doc.OwnerID && d.Kind == doc.Kind && d.Reference == doc.Reference) {
			return fmt.Errorf("%w: documento %s %s", domain.ErrDuplicate, doc.Kind, doc.Reference)
		}
	}
	r.s.data.documents[doc.ID] = copyDocument(doc)
	return nil
}

func (r *documentRepo) GetByID(_ context.Context, id string) (*entity.BusinessDocument, error) {
	d, ok := r.s.data.documents[id]
	if !ok {
		return nil, nil
	}
	return copyDocument(d), nil
}

func (r *documentRepo) GetByReference(_ context.Context, ownerID string, kind entity.DocumentKind, reference string) (*entity.BusinessDocument, error) {
	for _, d := range r.s.data.documents {
		if d.OwnerID == ownerID && d.Kind == kind && d.Reference == reference {
			return copyDocument(d), nil
		}
	}
	return nil, nil
}

type alertRepo struct{ s *Store }

func (r *alertRepo) ReplaceForProduct(_ context.Context, alert *entity.StockAlert) error {
	if err := r.s.failpoint(OpAlertsReplace); err != nil {
		return err
	}
	cp := *alert
	r.s.data.alerts[key(alert.OwnerID, alert.ProductID)] = &cp
	return nil
}

func (r *alertRepo) ListByOwner(_ context.Context, ownerID string) ([]*entity.StockAlert, error) {
	var list []*entity.StockAlert
	for _, a := range r.s.data.alerts {
		if a.OwnerID == ownerID {
			cp := *a
			list = append(list, &cp)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ProductID < list[j].ProductID })
	return list, nil
}

func (r *alertRepo) DeleteExcept(_ context.Context, ownerID string, keepProductIDs []string) (int64, error) {
	keep := make(map[string]bool, len(keepProductIDs))
	for _, id := range keepProductIDs {
		keep[id] = true
	}
	var n int64
	for k, a := range r.s.data.alerts {
		if a.OwnerID == ownerID && !keep[a.ProductID] {
			delete(r.s.data.alerts, k)
			n++
		}
	}
	return n, nil
}
