package inventory

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/stock-ledger/internal/domain"
	"github.com/jhoicas/stock-ledger/internal/domain/entity"
	domaininv "github.com/jhoicas/stock-ledger/internal/domain/inventory"
	"github.com/jhoicas/stock-ledger/internal/domain/repository"
	"github.com/jhoicas/stock-ledger/pkg/logger"
	"github.com/jhoicas/stock-ledger/pkg/metrics"
)

// AlertEngine clasifica el estado de stock de los productos a partir del saldo materializado y los
// umbrales del registro de productos. Nunca escribe en el libro ni en la caché de saldos; solo
// reemplaza el registro de alerta de cada producto evaluado.
type AlertEngine struct {
	txRunner     TxRunner
	materializer *BalanceMaterializer
	publisher    EventPublisher
	log          *logger.Logger
	now          func() time.Time
}

// NewAlertEngine construye el motor. publisher puede ser nil.
func NewAlertEngine(txRunner TxRunner, materializer *BalanceMaterializer, publisher EventPublisher, log *logger.Logger) *AlertEngine {
	if log == nil {
		log = logger.Nop()
	}
	return &AlertEngine{
		txRunner:     txRunner,
		materializer: materializer,
		publisher:    publisher,
		log:          log.Component("alerts"),
		now:          time.Now,
	}
}

// Evaluate recalcula el estado de un producto y reemplaza su registro de alerta.
func (a *AlertEngine) Evaluate(ctx context.Context, productID, ownerID string) (entity.AlertState, error) {
	if productID == "" || ownerID == "" {
		return "", domain.Invalid("product_id", "producto y propietario son obligatorios")
	}
	var alert *entity.StockAlert
	err := a.txRunner.Run(ctx, func(repos repository.Repos) error {
		th, err := repos.Products.GetThresholds(ctx, productID, ownerID)
		if err != nil {
			return err
		}
		minStock := decimal.Zero
		if th != nil {
			minStock = th.MinStock
		}
		alert, err = a.evaluate(ctx, repos, productID, ownerID, minStock)
		return err
	})
	if err != nil {
		return "", wrapPersistence(err)
	}
	a.notify(ctx, alert)
	return alert.State, nil
}

// ListActiveAlerts reevalúa todos los productos activos del propietario, descarta los registros de
// productos que ya no lo están y devuelve los que no están en estado normal, agotados primero.
func (a *AlertEngine) ListActiveAlerts(ctx context.Context, ownerID string) ([]*entity.StockAlert, error) {
	if ownerID == "" {
		return nil, domain.Invalid("owner_id", "es obligatorio")
	}
	var evaluated []*entity.StockAlert
	err := a.txRunner.Run(ctx, func(repos repository.Repos) error {
		thresholds, err := repos.Products.ListThresholdsByOwner(ctx, ownerID)
		if err != nil {
			return err
		}
		keep := make([]string, 0, len(thresholds))
		for _, th := range thresholds {
			alert, err := a.evaluate(ctx, repos, th.ProductID, ownerID, th.MinStock)
			if err != nil {
				return err
			}
			evaluated = append(evaluated, alert)
			keep = append(keep, th.ProductID)
		}
		removed, err := repos.Alerts.DeleteExcept(ctx, ownerID, keep)
		if err != nil {
			return err
		}
		if removed > 0 {
			a.log.Debug().Str("owner_id", ownerID).Int64("removed", removed).Msg("alertas de productos inactivos eliminadas")
		}
		return nil
	})
	if err != nil {
		return nil, wrapPersistence(err)
	}

	active := make([]*entity.StockAlert, 0, len(evaluated))
	for _, alert := range evaluated {
		if alert.State != entity.AlertNormal {
			active = append(active, alert)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].State != active[j].State {
			return active[i].State == entity.AlertOutOfStock
		}
		return active[i].ProductID < active[j].ProductID
	})
	return active, nil
}

func (a *AlertEngine) evaluate(ctx context.Context, repos repository.Repos, productID, ownerID string, minStock decimal.Decimal) (*entity.StockAlert, error) {
	current, err := a.materializer.Peek(ctx, repos, productID, ownerID)
	if err != nil {
		return nil, err
	}
	alert := &entity.StockAlert{
		OwnerID:      ownerID,
		ProductID:    productID,
		State:        domaininv.ClassifyStock(current, minStock),
		CurrentStock: current,
		MinStock:     minStock,
		EvaluatedAt:  a.now().UTC(),
	}
	if err := repos.Alerts.ReplaceForProduct(ctx, alert); err != nil {
		return nil, err
	}
	metrics.AlertsEvaluatedTotal.WithLabelValues(string(alert.State)).Inc()
	return alert, nil
}

func (a *AlertEngine) notify(ctx context.Context, alert *entity.StockAlert) {
	if alert == nil || alert.State == entity.AlertNormal || a.publisher == nil {
		return
	}
	event := StockAlertEvent{
		EventType:    EventStockAlert,
		OwnerID:      alert.OwnerID,
		ProductID:    alert.ProductID,
		State:        string(alert.State),
		CurrentStock: alert.CurrentStock,
		MinStock:     alert.MinStock,
		OccurredAt:   alert.EvaluatedAt,
	}
	if err := a.publisher.Publish(ctx, alert.OwnerID+":"+alert.ProductID, event); err != nil {
		metrics.EventsPublishFailedTotal.Inc()
		a.log.Warn().Err(err).Str("product_id", alert.ProductID).Msg("no se pudo publicar la alerta")
	}
}
