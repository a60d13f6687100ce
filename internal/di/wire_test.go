package di

import (
	"context"
	"testing"

	"github.com/aristath/advisor/internal/config"
	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/advisory"
	testutil "github.com/aristath/advisor/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:           t.TempDir(),
		Port:              8080,
		ReviewFrequency:   "quarterly",
		ReviewConcurrency: 2,
		Policy:            config.DefaultPolicy(),
	}
}

func TestWire(t *testing.T) {
	cfg := testConfig(t)

	container, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(container.Close)

	assert.NotNil(t, container.PortfolioDB)
	assert.NotNil(t, container.LedgerDB)
	assert.NotNil(t, container.Advisory)
	assert.NotNil(t, container.Classifier)
	assert.Len(t, container.Databases(), 2)

	require.NotNil(t, container.Jobs)
	assert.NotNil(t, container.Jobs.DriftReview)
	assert.NotNil(t, container.Jobs.WALCheckpoint)
	assert.Nil(t, container.Jobs.AuditArchive)
	assert.Equal(t, 2, container.Scheduler.Entries())
}

func TestWireRestoresClients(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	first, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)

	category := domain.Moderate
	subscore := 50.0
	_, err = first.Advisory.Onboard(ctx, advisory.OnboardRequest{
		ClientID:     "client-1",
		RiskCategory: &category,
		Subscore:     &subscore,
		Holdings:     testutil.NewBalancedPortfolio("client-1").Holdings,
	})
	require.NoError(t, err)
	first.Close()

	second, err := Wire(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(second.Close)

	assert.Equal(t, []string{"client-1"}, second.Advisory.ClientIDs())
	history, err := second.Advisory.History(ctx, "client-1", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, history)
}

func TestWireRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t)
	cfg.ReviewSchedule = "not a cron spec"

	_, err := Wire(cfg, zerolog.Nop())
	assert.Error(t, err)
}
