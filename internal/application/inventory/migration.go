package inventory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
	"github.com/jhoicas/stock-ledger/pkg/tracing"
)

// Prefijo de reference_id de los saldos iniciales migrados.
const legacyReferencePrefix = "legacy:"

// MigrationItem resultado de migrar un producto.
type MigrationItem struct {
	ProductID      string          `json:"product_id"`
	OwnerID        string          `json:"owner_id"`
	LegacyQuantity decimal.Decimal `json:"legacy_quantity"`
	LedgerBalance  decimal.Decimal `json:"ledger_balance"`
	Match          bool            `json:"match"`
	Migrated       bool            `json:"migrated"`
	Skipped        bool            `json:"skipped"`
	EntryID        string          `json:"entry_id,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// MigrationReport resumen de una corrida de migración.
type MigrationReport struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Items      []*MigrationItem `json:"items"`
	Migrated   int              `json:"migrated"`
	Skipped    int              `json:"skipped"`
	Mismatches int              `json:"mismatches"`
	Failed     int              `json:"failed"`
}

// MigrationEngine siembra el libro con un asiento OPENING por producto a partir del contador
// legado. Es re-ejecutable: un producto que ya tiene OPENING activo se omite.
type MigrationEngine struct {
	txRunner     TxRunner
	locker       Locker
	ledger       *LedgerStore
	materializer *BalanceMaterializer
	alerts       *AlertEngine
	log          *logger.Logger
	lockTimeout  time.Duration
	now          func() time.Time
}

// NewMigrationEngine construye el motor de migración. alerts puede ser nil.
func NewMigrationEngine(
	txRunner TxRunner,
	locker Locker,
	ledger *LedgerStore,
	materializer *BalanceMaterializer,
	alerts *AlertEngine,
	log *logger.Logger,
	lockTimeout time.Duration,
) *MigrationEngine {
	if log == nil {
		log = logger.Nop()
	}
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}
	return &MigrationEngine{
		txRunner:     txRunner,
		locker:       locker,
		ledger:       ledger,
		materializer: materializer,
		alerts:       alerts,
		log:          log.Component("migration"),
		lockTimeout:  lockTimeout,
		now:          time.Now,
	}
}

// Migrate migra los productos activos con contador legado positivo. ownerID vacío migra todos los
// propietarios. Los fallos son por producto: se registran en el reporte y la corrida continúa.
func (m *MigrationEngine) Migrate(ctx context.Context, ownerID string) (*MigrationReport, error) {
	ctx, span := tracing.StartSpan(ctx, "inventory.migration.run", attribute.String("owner.id", ownerID))
	report := &MigrationReport{StartedAt: m.now().UTC()}

	var legacy []*entity.LegacyStock
	err := m.txRunner.Run(ctx, func(repos repository.Repos) error {
		var err error
		legacy, err = repos.Products.ListLegacyStock(ctx, ownerID)
		return err
	})
	if err != nil {
		err = wrapPersistence(err)
		tracing.EndSpan(span, err)
		return nil, err
	}
	sort.Slice(legacy, func(i, j int) bool {
		if legacy[i].OwnerID != legacy[j].OwnerID {
			return legacy[i].OwnerID < legacy[j].OwnerID
		}
		return legacy[i].ProductID < legacy[j].ProductID
	})

	for _, l := range legacy {
		if !l.Active || !l.Quantity.GreaterThan(decimal.Zero) {
			continue
		}
		if err := ctx.Err(); err != nil {
			tracing.EndSpan(span, err)
			return nil, err
		}
		item := m.migrateOne(ctx, l)
		report.Items = append(report.Items, item)
		switch {
		case !item.Migrated && !item.Skipped:
			report.Failed++
			metrics.MigrationItemsTotal.WithLabelValues("failed").Inc()
		case item.Skipped:
			report.Skipped++
			metrics.MigrationItemsTotal.WithLabelValues("skipped").Inc()
		default:
			report.Migrated++
			metrics.MigrationItemsTotal.WithLabelValues("migrated").Inc()
		}
		if item.Migrated && !item.Match {
			report.Mismatches++
			metrics.MigrationItemsTotal.WithLabelValues("mismatch").Inc()
		}
	}
	report.FinishedAt = m.now().UTC()

	m.log.Info().
		Str("owner_id", ownerID).
		Int("migrated", report.Migrated).
		Int("skipped", report.Skipped).
		Int("mismatches", report.Mismatches).
		Int("failed", report.Failed).
		Msg("migración de saldos terminada")
	tracing.EndSpan(span, nil)
	return report, nil
}

func (m *MigrationEngine) migrateOne(ctx context.Context, l *entity.LegacyStock) *MigrationItem {
	item := &MigrationItem{ProductID: l.ProductID, OwnerID: l.OwnerID, LegacyQuantity: l.Quantity}
	log := m.log.With().Str("owner_id", l.OwnerID).Str("product_id", l.ProductID).Logger()

	unlock, err := m.locker.Lock(ctx, lockKey(l.OwnerID, l.ProductID), m.lockTimeout)
	if err != nil {
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			err = fmt.Errorf("%w: %w", domain.ErrConcurrencyConflict, err)
		}
		item.Error = err.Error()
		log.Warn().Err(err).Msg("producto ocupado; no migrado")
		return item
	}
	defer unlock()

	err = m.txRunner.Run(ctx, func(repos repository.Repos) error {
		opened, err := repos.Entries.HasOpening(ctx, l.ProductID, l.OwnerID)
		if err != nil {
			return err
		}
		if opened {
			item.Skipped = true
			balance, err := m.materializer.Current(ctx, repos, l.ProductID, l.OwnerID)
			if err != nil {
				return err
			}
			item.LedgerBalance = balance
			item.Match = balance.Equal(l.Quantity)
			return nil
		}

		entry, _, err := m.ledger.Append(ctx, repos.Entries, AppendInput{
			OwnerID:       l.OwnerID,
			ProductID:     l.ProductID,
			MovementType:  entity.MovementTypeOPENING,
			Quantity:      l.Quantity,
			ReferenceType: entity.ReferenceMigration,
			ReferenceID:   legacyReferencePrefix + l.ProductID,
			Notes:         "saldo inicial migrado",
			Actor:         "migration",
		})
		if err != nil {
			return err
		}
		balance, err := m.materializer.Rebuild(ctx, repos, l.ProductID, l.OwnerID)
		if err != nil {
			return err
		}
		item.Migrated = true
		item.EntryID = entry.ID
		item.LedgerBalance = balance
		item.Match = balance.Equal(l.Quantity)
		return nil
	})
	if err != nil {
		err = wrapPersistence(err)
		item.Migrated, item.Skipped = false, false
		item.Error = err.Error()
		log.Error().Err(err).Msg("no se pudo migrar el producto")
		return item
	}

	if item.Migrated && !item.Match {
		// Hay asientos previos al OPENING: el libro no reproduce el contador legado.
		mismatch := fmt.Errorf("%w: legado %s libro %s", domain.ErrMigrationMismatch, l.Quantity.String(), item.LedgerBalance.String())
		item.Error = mismatch.Error()
		log.Error().Err(mismatch).Msg("diferencia de saldo tras migrar")
	}
	if m.alerts != nil && item.Migrated {
		if _, err := m.alerts.Evaluate(ctx, l.ProductID, l.OwnerID); err != nil {
			log.Warn().Err(err).Msg("no se pudo evaluar la alerta")
		}
	}
	return item
}
