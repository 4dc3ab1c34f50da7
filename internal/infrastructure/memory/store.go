// Package memory implementa los puertos de persistencia en memoria. Cada Run serializa las
// transacciones con un mutex global y restaura una copia del estado si fn devuelve error, de modo
// que la semántica de commit/rollback es la misma que en PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ inventory.TxRunner = (*Store)(nil)

// Puntos de falla inyectables (FailNext).
const (
	OpEntriesCreate       = "entries.create"
	OpStockUpsert         = "stock.upsert"
	OpAdjustmentsCreate   = "adjustments.create"
	OpDocumentsCreate     = "documents.create"
	OpCustomersAddBalance = "customers.add_balance"
	OpVendorsAddPayable   = "vendors.add_payable"
	OpAlertsReplace       = "alerts.replace"
)

type state struct {
	entries     []*entity.StockEntry
	entryIndex  map[string]int
	stock       map[string]*entity.CurrentStock
	adjustments map[string]*entity.AdjustmentRecord // por entry_id
	products    map[string]*entity.Product
	legacy      map[string]*entity.LegacyStock
	customers   map[string]*entity.Customer
	vendors     map[string]*entity.Vendor
	documents   map[string]*entity.BusinessDocument
	alerts      map[string]*entity.StockAlert
}

func newState() *state {
	return &state{
		entryIndex:  make(map[string]int),
		stock:       make(map[string]*entity.CurrentStock),
		adjustments: make(map[string]*entity.AdjustmentRecord),
		products:    make(map[string]*entity.Product),
		legacy:      make(map[string]*entity.LegacyStock),
		customers:   make(map[string]*entity.Customer),
		vendors:     make(map[string]*entity.Vendor),
		documents:   make(map[string]*entity.BusinessDocument),
		alerts:      make(map[string]*entity.StockAlert),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.entries = make([]*entity.StockEntry, len(s.entries))
	for i, e := range s.entries {
		c.entries[i] = copyEntry(e)
	}
	for k, v := range s.entryIndex {
		c.entryIndex[k] = v
	}
	for k, v := range s.stock {
		cp := *v
		c.stock[k] = &cp
	}
	for k, v := range s.adjustments {
		cp := *v
		c.adjustments[k] = &cp
	}
	for k, v := range s.products {
		cp := *v
		c.products[k] = &cp
	}
	for k, v := range s.legacy {
		cp := *v
		c.legacy[k] = &cp
	}
	for k, v := range s.customers {
		cp := *v
		c.customers[k] = &cp
	}
	for k, v := range s.vendors {
		cp := *v
		c.vendors[k] = &cp
	}
	for k, v := range s.documents {
		c.documents[k] = copyDocument(v)
	}
	for k, v := range s.alerts {
		cp := *v
		c.alerts[k] = &cp
	}
	return c
}

// Store almacén en memoria; implementa inventory.TxRunner.
type Store struct {
	mu       sync.Mutex
	data     *state
	failures map[string]error
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{data: newState(), failures: make(map[string]error)}
}

// Run ejecuta fn con repositorios sobre el estado; si fn falla se restaura el estado previo.
func (s *Store) Run(ctx context.Context, fn func(repos repository.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(s.repos()); err != nil {
		s.data = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		s.data = snapshot
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) repos() repository.Repos {
	return repository.Repos{
		Entries:     &entryRepo{s: s},
		Stock:       &stockRepo{s: s},
		Adjustments: &adjustmentRepo{s: s},
		Products:    &productRepo{s: s},
		Customers:   &customerRepo{s: s},
		Vendors:     &vendorRepo{s: s},
		Documents:   &documentRepo{s: s},
		Alerts:      &alertRepo{s: s},
	}
}

// FailNext hace que la próxima llamada a op devuelva err (una sola vez).
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// failpoint se llama con el mutex tomado.
func (s *Store) failpoint(op string) error {
	if err, ok := s.failures[op]; ok {
		delete(s.failures, op)
		return err
	}
	return nil
}

// PutProduct registra o reemplaza un producto del registro maestro.
func (s *Store) PutProduct(p *entity.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.data.products[p.ID] = &cp
}

// PutLegacyStock registra el contador legado de un producto.
func (s *Store) PutLegacyStock(l *entity.LegacyStock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *l
	s.data.legacy[key(l.OwnerID, l.ProductID)] = &cp
}

// PutCustomer registra o reemplaza un cliente.
func (s *Store) PutCustomer(c *entity.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.data.customers[c.ID] = &cp
}

// PutVendor registra o reemplaza un proveedor.
func (s *Store) PutVendor(v *entity.Vendor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *v
	s.data.vendors[v.ID] = &cp
}

// PutCurrentStock sobrescribe la caché de saldo (reparaciones y pruebas de reconciliación).
func (s *Store) PutCurrentStock(cs *entity.CurrentStock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cs
	s.data.stock[key(cs.OwnerID, cs.ProductID)] = &cp
}

// DropCurrentStock elimina la fila de caché de un producto.
func (s *Store) DropCurrentStock(ownerID, productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.stock, key(ownerID, productID))
}

func key(ownerID, productID string) string {
	return ownerID + "|" + productID
}

func copyEntry(e *entity.StockEntry) *entity.StockEntry {
	cp := *e
	return &cp
}

func copyDocument(d *entity.BusinessDocument) *entity.BusinessDocument {
	cp := *d
	cp.Lines = make([]*entity.DocumentLine, len(d.Lines))
	for i, l := range d.Lines {
		lc := *l
		cp.Lines[i] = &lc
	}
	return &cp
}
