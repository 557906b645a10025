package app

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/pedidos/internal/audit"
	"github.com/vladislavdragonenkov/pedidos/internal/composer"
	"github.com/vladislavdragonenkov/pedidos/internal/domain"
	"github.com/vladislavdragonenkov/pedidos/internal/reception"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	deps, err := initRuntimeDependencies(context.Background(), DefaultConfig(), log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	defer deps.Close()

	assert.NotNil(t, deps.Orders)
	assert.NotNil(t, deps.Outbox)
	assert.NotNil(t, deps.Catalog)
	assert.NotNil(t, deps.Reception())
	assert.NotNil(t, deps.NewLookup())
	assert.NoError(t, deps.Ping(context.Background()))
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres

	_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-missing-dsn"))
	assert.Error(t, err)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "sqlite"

	_, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "unsupported-driver"))
	assert.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_InvalidAuditZone(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuditTimeZone = "Mars/Olympus"

	_, err := initRuntimeDependencies(context.Background(), cfg, nil)
	assert.Error(t, err)
}

// Сессия, приёмка и история, собранные из одних и тех же зависимостей.
func TestDependencies_ComposeReceiveAndHistory(t *testing.T) {
	ctx := context.Background()
	deps, err := initRuntimeDependencies(ctx, DefaultConfig(), log.WithField("test", "engine"))
	require.NoError(t, err)
	defer deps.Close()
	actor := domain.Actor{ID: 7, Name: "lucia"}

	session := deps.NewSession()
	session.SelectSupplier(domain.Supplier{ID: 3, Name: "Textiles Sur"})
	session.AddDraftProduct(composer.DraftProductInput{Name: "Gorra", Quantity: 4, UnitPrice: decimal.NewFromInt(5)})
	created, err := session.Submit(ctx, actor)
	require.NoError(t, err)
	assert.Equal(t, "20.00", created.Total.StringFixed(2))

	edit, err := deps.EditSession(ctx, created.ID)
	require.NoError(t, err)
	edit.SetShippingCost(decimal.NewFromInt(10))
	edit.SetReason("flete")
	_, err = edit.Submit(ctx, actor)
	require.NoError(t, err)

	received, _, err := deps.Reception().Receive(ctx, created.ID, reception.Input{
		Promote: []domain.ID{created.DraftProducts[0].ID},
	}, actor)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusReceived, received.Status)

	found, err := deps.Catalog.FindByName(ctx, "gorra", nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)

	history, err := deps.History(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "flete", history[0].Reason)
	assert.Contains(t, history[1].Changes, audit.ChangeEntry{Campo: "Estado", Anterior: "Pendiente", Nuevo: "Recibido"})

	stats, err := deps.Outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.PendingCount)
}
