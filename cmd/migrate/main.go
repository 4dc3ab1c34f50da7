// migrate siembra el libro de stock con un asiento OPENING por producto a partir del contador
// legado (products.stock) e imprime el reporte en JSON.
//
// Uso: go run ./cmd/migrate [owner_id]
// Sin owner_id migra todos los propietarios. Es re-ejecutable: los productos ya migrados se omiten.
// Código de salida 2 si hubo fallos o diferencias entre contador y libro.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jhoicas/stock-ledger/internal/application/inventory"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/lock"
	"github.com/jhoicas/stock-ledger/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-ledger/pkg/config"
	"github.com/jhoicas/stock-ledger/pkg/logger"
)

func main() {
	ownerID := ""
	if len(os.Args) > 1 {
		ownerID = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cargar configuración: %v\n", err)
		os.Exit(1)
	}
	// stdout queda para el reporte.
	log := logger.New(logger.Config{Env: "development", Level: cfg.App.LogLevel, Out: os.Stderr})

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Conexión a PostgreSQL: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	txRunner := postgres.NewTxRunner(pool, cfg.Ledger.LockTimeout)
	materializer := inventory.NewBalanceMaterializer()
	alerts := inventory.NewAlertEngine(txRunner, materializer, nil, log)
	// Las advisory locks de GetForUpdate serializan contra la API en ejecución; el mutex local
	// solo ordena a este proceso.
	engine := inventory.NewMigrationEngine(txRunner, lock.NewKeyedMutex(), inventory.NewLedgerStore(),
		materializer, alerts, log, cfg.Ledger.LockTimeout)

	report, err := engine.Migrate(ctx, ownerID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Migración: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Escribir reporte: %v\n", err)
		os.Exit(1)
	}
	if report.Failed > 0 || report.Mismatches > 0 {
		os.Exit(2)
	}
}
