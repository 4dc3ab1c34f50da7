package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
)

var _ repository.DocumentRepository = (*DocumentRepo)(nil)

const documentColumns = `id, owner_id, kind, reference, number, customer_id, vendor_id,
		net_total, tax_total, grand_total, on_credit, date, created_by, created_at`

// DocumentRepo facturas, GRN y notas con sus líneas (usable con pool o tx).
type DocumentRepo struct {
	q Querier
}

// NewDocumentRepository construye el adaptador. Pasar pool o tx (Querier).
func NewDocumentRepository(q Querier) *DocumentRepo {
	return &DocumentRepo{q: q}
}

// Create persiste la cabecera y las líneas. Debe llamarse dentro de una tx para que sea atómico.
func (r *DocumentRepo) Create(ctx context.Context, d *entity.BusinessDocument) error {
	query := `
		INSERT INTO business_documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.q.Exec(ctx, query,
		d.ID, d.OwnerID, d.Kind, d.Reference, d.Number, nullIfEmpty(d.CustomerID), nullIfEmpty(d.VendorID),
		d.NetTotal, d.TaxTotal, d.GrandTotal, d.OnCredit, d.Date, d.CreatedBy, d.CreatedAt,
	)
	if err != nil {
		return mapError("insert business document", err)
	}
	for _, l := range d.Lines {
		_, err := r.q.Exec(ctx, `
			INSERT INTO business_document_lines (id, document_id, product_id, entry_id, quantity, unit_price, tax_rate, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			l.ID, d.ID, l.ProductID, nullIfEmpty(l.EntryID), l.Quantity, l.UnitPrice, l.TaxRate, l.Subtotal,
		)
		if err != nil {
			return mapError("insert business document line", err)
		}
	}
	return nil
}

// GetByID obtiene un documento con sus líneas.
func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*entity.BusinessDocument, error) {
	return r.getOne(ctx, `SELECT `+documentColumns+` FROM business_documents WHERE id = $1`, id)
}

// GetByReference obtiene el documento de una operación.
func (r *DocumentRepo) GetByReference(ctx context.Context, ownerID string, kind entity.DocumentKind, reference string) (*entity.BusinessDocument, error) {
	return r.getOne(ctx,
		`SELECT `+documentColumns+` FROM business_documents WHERE owner_id = $1 AND kind = $2 AND reference = $3`,
		ownerID, kind, reference,
	)
}

func (r *DocumentRepo) getOne(ctx context.Context, query string, args ...any) (*entity.BusinessDocument, error) {
	var d entity.BusinessDocument
	var customerID, vendorID *string
	err := r.q.QueryRow(ctx, query, args...).Scan(
		&d.ID, &d.OwnerID, &d.Kind, &d.Reference, &d.Number, &customerID, &vendorID,
		&d.NetTotal, &d.TaxTotal, &d.GrandTotal, &d.OnCredit, &d.Date, &d.CreatedBy, &d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("get business document", err)
	}
	d.CustomerID = stringOrEmpty(customerID)
	d.VendorID = stringOrEmpty(vendorID)

	rows, err := r.q.Query(ctx, `
		SELECT id, document_id, product_id, entry_id, quantity, unit_price, tax_rate, subtotal
		FROM business_document_lines WHERE document_id = $1 ORDER BY product_id, id`, d.ID)
	if err != nil {
		return nil, mapError("list business document lines", err)
	}
	defer rows.Close()
	for rows.Next() {
		var l entity.DocumentLine
		var entryID *string
		if err := rows.Scan(&l.ID, &l.DocumentID, &l.ProductID, &entryID, &l.Quantity, &l.UnitPrice, &l.TaxRate, &l.Subtotal); err != nil {
			return nil, mapError("scan business document line", err)
		}
		l.EntryID = stringOrEmpty(entryID)
		d.Lines = append(d.Lines, &l)
	}
	return &d, rows.Err()
}
