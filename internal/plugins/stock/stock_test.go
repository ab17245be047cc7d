package stock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"infodisplay/internal/config"
	"infodisplay/internal/display"
	"infodisplay/pkg/plugin"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var quotes = map[string]string{
	"AAPL":  `{"c": 190.5, "h": 192, "l": 188, "o": 189, "pc": 189.5}`,
	"MSFT":  `{"c": 410, "h": 415, "l": 405, "o": 412, "pc": 420}`,
	"EMPTY": `{"c": 0, "h": 0, "l": 0, "o": 0, "pc": 0}`,
}

func newServer(t *testing.T, wantToken string) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		assert.Equal(t, wantToken, r.URL.Query().Get("token"))
		body, ok := quotes[r.URL.Query().Get("symbol")]
		if !ok {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPlugin(t *testing.T, settings plugin.Settings, globalKey string) (*Plugin, *display.Memory) {
	t.Helper()
	t.Setenv("FINNHUB_API_KEY", "")
	cfg := config.NewFromMap(map[string]any{"api_keys": map[string]any{"finnhub": globalKey}}, nil)
	mem := display.NewMemory(800, 480)
	p, err := New(plugin.NewContext(cfg, mem, settings, zap.NewNop()))
	require.NoError(t, err)
	p.SetNow(func() time.Time { return time.Date(2024, 6, 21, 10, 0, 0, 0, time.UTC) })
	return p, mem
}

func TestFetch_SkipsBadSymbolsAndSorts(t *testing.T) {
	srv := newServer(t, "global")
	p, _ := newPlugin(t, plugin.Settings{
		"base_url": srv.URL,
		"symbols":  []any{"MSFT", "EMPTY", "NOPE", "AAPL"},
	}, "global")

	rows, err := p.fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "AAPL", rows[0].Symbol)
	assert.Equal(t, "MSFT", rows[1].Symbol)
	assert.InDelta(t, -10.0, rows[1].Quote.Change(), 1e-9)
	assert.InDelta(t, -2.38, rows[1].Quote.ChangePercent(), 0.01)
}

func TestRender_PluginKeyWins(t *testing.T) {
	srv := newServer(t, "own")
	p, mem := newPlugin(t, plugin.Settings{
		"base_url": srv.URL,
		"symbols":  []any{"AAPL"},
		"api_key":  "own",
	}, "global")

	assert.True(t, p.Render(context.Background()))
	assert.Equal(t, 1, mem.Paints())
}

func TestRender_FallbackWhenNothingUsable(t *testing.T) {
	srv := newServer(t, "global")
	p, mem := newPlugin(t, plugin.Settings{"base_url": srv.URL, "symbols": []any{"EMPTY", "NOPE"}}, "global")

	assert.False(t, p.Render(context.Background()))
	assert.Equal(t, 1, mem.Paints())
}

func TestRender_FallbackWithoutKey(t *testing.T) {
	p, mem := newPlugin(t, plugin.Settings{"base_url": "http://127.0.0.1:1"}, "")
	assert.False(t, p.Render(context.Background()))
	assert.Equal(t, 1, mem.Paints())
}

func TestDefaults(t *testing.T) {
	p, _ := newPlugin(t, nil, "")
	assert.Equal(t, DefaultSymbols, p.symbols)
	assert.Equal(t, 30*time.Minute, p.UpdateInterval())
}

func TestMarketOpen(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"friday morning", time.Date(2024, 6, 21, 9, 0, 0, 0, time.UTC), true},
		{"friday before open", time.Date(2024, 6, 21, 8, 59, 0, 0, time.UTC), false},
		{"friday close", time.Date(2024, 6, 21, 16, 0, 0, 0, time.UTC), false},
		{"saturday", time.Date(2024, 6, 22, 11, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2024, 6, 23, 11, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MarketOpen(tt.at))
		})
	}
}

func TestFormatChange(t *testing.T) {
	assert.Equal(t, "$+1.25", FormatChange(1.25))
	assert.Equal(t, "$-0.50", FormatChange(-0.5))
	assert.Equal(t, "$+0.00", FormatChange(0))
}
