package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadsign/ideas-bot/internal/config"
	"github.com/threadsign/ideas-bot/internal/pipeline"
)

func TestNewService_InvalidTimezone(t *testing.T) {
	cfg := &config.Config{TimeZone: "Mars/Olympus"}

	_, err := NewService(cfg, &pipeline.Service{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid timezone")
}

func TestService_Start_InvalidSchedule(t *testing.T) {
	cfg := &config.Config{
		TimeZone:         "UTC",
		PipelineSchedule: "not a cron spec",
		DigestSchedule:   "0 0 */6 * * *",
	}

	svc, err := NewService(cfg, &pipeline.Service{})
	require.NoError(t, err)

	err = svc.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid pipeline schedule")
}

func TestService_StartAndStop(t *testing.T) {
	cfg := &config.Config{
		TimeZone:         "UTC",
		PipelineSchedule: "0 0 6 * * *",
		DigestSchedule:   "0 0 */6 * * *",
	}

	svc, err := NewService(cfg, &pipeline.Service{})
	require.NoError(t, err)

	require.NoError(t, svc.Start())
	svc.Stop()
}
