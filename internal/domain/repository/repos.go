package repository

// Repos agrupa los repositorios atados a una misma transacción.
type Repos struct {
	Entries     StockEntryRepository
	Stock       CurrentStockRepository
	Adjustments AdjustmentRepository
	Products    ProductRepository
	Customers   CustomerRepository
	Vendors     VendorRepository
	Documents   DocumentRepository
	Alerts      AlertRepository
}
