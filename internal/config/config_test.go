package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/forecast-prep/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, domain.Accumulation6h, cfg.Accumulation)
	assert.Equal(t, 5, cfg.FirstStep)
	assert.Equal(t, 5, cfg.ValidTimes)
	assert.InDelta(t, 6.0, cfg.WindowHours, 0)
	assert.Equal(t, 500, cfg.HistogramChunkRows)
	assert.Equal(t, 1, cfg.HistogramWorkers)
	assert.Empty(t, cfg.NormConstantsPath)
	assert.False(t, cfg.LedgerEnabled())
	assert.False(t, cfg.NotificationsEnabled())
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
}

func TestLoad_StepDefaultsFollowAccumulation(t *testing.T) {
	tests := []struct {
		accumulation   string
		wantFirstStep  int
		wantValidTimes int
		wantWindow     float64
	}{
		{"6h", 5, 5, 6},
		{"24h", 0, 29, 24},
	}
	for _, tt := range tests {
		t.Run(tt.accumulation, func(t *testing.T) {
			t.Setenv("ACCUMULATION", tt.accumulation)
			cfg, err := Load()
			require.NoError(t, err)
			assert.Equal(t, tt.wantFirstStep, cfg.FirstStep)
			assert.Equal(t, tt.wantValidTimes, cfg.ValidTimes)
			assert.InDelta(t, tt.wantWindow, cfg.WindowHours, 0)
			if cfg.Accumulation == domain.Accumulation24h {
				for _, f := range domain.Fields {
					assert.Positive(t, domain.DailyBlocks(f, cfg.ValidTimes), f.Name)
				}
			}
		})
	}

	// Explicit values still win over the derived defaults.
	t.Setenv("ACCUMULATION", "24h")
	t.Setenv("VALID_TIMES", "9")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.ValidTimes)
	assert.Equal(t, 0, cfg.FirstStep)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("SOURCE_DIR", "/in")
	t.Setenv("OUTPUT_DIR", "/out")
	t.Setenv("FORECAST_DIR", "/gan")
	t.Setenv("COUNTS_DIR", "/counts")
	t.Setenv("ACCUMULATION", "24h")
	t.Setenv("FIRST_STEP", "1")
	t.Setenv("VALID_TIMES", "7")
	t.Setenv("HISTOGRAM_CHUNK_ROWS", "64")
	t.Setenv("HISTOGRAM_WORKERS", "4")
	t.Setenv("LEDGER_PATH", "/var/lib/ledger.db")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "artifacts")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/in", cfg.SourceDir)
	assert.Equal(t, "/out", cfg.OutputDir)
	assert.Equal(t, "/gan", cfg.ForecastDir)
	assert.Equal(t, "/counts", cfg.CountsDir)
	assert.Equal(t, domain.Accumulation24h, cfg.Accumulation)
	assert.InDelta(t, 24.0, cfg.WindowHours, 0, "window follows the accumulation")
	assert.Equal(t, 1, cfg.FirstStep)
	assert.Equal(t, 7, cfg.ValidTimes)
	assert.Equal(t, 64, cfg.HistogramChunkRows)
	assert.Equal(t, 4, cfg.HistogramWorkers)
	assert.True(t, cfg.LedgerEnabled())
	assert.True(t, cfg.NotificationsEnabled())
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "artifacts", cfg.KafkaTopic)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"ACCUMULATION", "12h"},
		{"FIRST_STEP", "-1"},
		{"VALID_TIMES", "0"},
		{"HISTOGRAM_CHUNK_ROWS", "many"},
		{"HISTOGRAM_WORKERS", "0"},
		{"LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadNormConstants_Embedded(t *testing.T) {
	constants, err := LoadNormConstants("")
	require.NoError(t, err)

	assert.InDelta(t, 5000.0, constants["cape"].Max, 0)
	assert.InDelta(t, 95000.0, constants["sp"].Mean, 0)
	assert.NotContains(t, constants, "tp", "log-transformed fields need no constants")

	n := domain.NewNormalizer(constants, 6)
	for _, f := range domain.Fields {
		_, err := n.Normalize(f, domain.FieldPair{Mean: []float64{1}, Std: []float64{1}})
		assert.NoError(t, err, f.Name)
	}
}

func TestLoadNormConstants_File(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	data, err := os.ReadFile("norm_constants.yaml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(good, append(data, []byte("extra: {max: 1}\n")...), 0o600))
	constants, err := LoadNormConstants(good)
	require.NoError(t, err)
	assert.Contains(t, constants, "extra")

	missing := filepath.Join(dir, "missing.yaml")
	require.NoError(t, os.WriteFile(missing, []byte("cape: {max: 5000}\n"), 0o600))
	_, err = LoadNormConstants(missing)
	var unknown *domain.UnknownFieldError
	assert.ErrorAs(t, err, &unknown)

	zero := filepath.Join(dir, "zero.yaml")
	zeroed := strings.Replace(string(data), "t2m:  {mean: 295, std: 6,", "t2m:  {mean: 295, std: 0,", 1)
	require.NotEqual(t, string(data), zeroed)
	require.NoError(t, os.WriteFile(zero, []byte(zeroed), 0o600))
	_, err = LoadNormConstants(zero)
	assert.ErrorContains(t, err, "t2m")

	_, err = LoadNormConstants(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}
