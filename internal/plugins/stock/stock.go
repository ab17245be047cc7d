// Package stock renders a table of Finnhub quotes.
package stock

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"infodisplay/internal/plugins/fetch"
	"infodisplay/pkg/plugin"
	"infodisplay/pkg/render"
	"infodisplay/pkg/surface"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	Name            = "stock"
	Description     = "Stock market quotes"
	DefaultInterval = 1800 * time.Second
	DefaultBaseURL  = "https://finnhub.io/api/v1"

	maxRows        = 8
	maxSummaryRows = 5
	maxInFlight    = 4
)

// DefaultSymbols are shown when none are configured.
var DefaultSymbols = []string{"AAPL", "GOOGL", "MSFT"}

var errNoAPIKey = errors.New("no Finnhub API key configured")

// Quote is the Finnhub /quote response.
type Quote struct {
	Current       float64 `json:"c"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
}

// Change returns the absolute change against the previous close.
func (q Quote) Change() float64 {
	return q.Current - q.PreviousClose
}

// ChangePercent returns the relative change, or 0 without a previous close.
func (q Quote) ChangePercent() float64 {
	if q.PreviousClose <= 0 {
		return 0
	}
	return q.Change() / q.PreviousClose * 100
}

// Row is one symbol with its quote.
type Row struct {
	Symbol string
	Quote  Quote
}

// Plugin fetches fresh quotes on every render.
type Plugin struct {
	render.Base

	client  *fetch.Client
	baseURL string
	symbols []string
	apiKey  string
}

// New creates the stock renderer. Settings: symbols, api_key (falls back to
// the global finnhub key), base_url.
func New(ctx *plugin.Context) (*Plugin, error) {
	return &Plugin{
		Base:    render.NewBase(ctx, Name, Description, DefaultInterval),
		client:  fetch.New(fetch.DefaultTimeout),
		baseURL: strings.TrimRight(ctx.Settings.String("base_url", DefaultBaseURL), "/"),
		symbols: ctx.Settings.Strings("symbols", DefaultSymbols),
		apiKey:  ctx.Settings.String("api_key", ""),
	}, nil
}

// Render fetches the quotes and draws them, or paints the error frame.
func (p *Plugin) Render(ctx context.Context) bool {
	return p.Guard(ctx, render.Fallback{
		Title: "Stock Market",
		Lines: []string{"Unable to fetch stock data", "Please check your API key"},
	}, p.draw)
}

func (p *Plugin) key() string {
	if p.apiKey != "" {
		return p.apiKey
	}
	if p.Config == nil {
		return ""
	}
	return p.Config.APIKey("finnhub")
}

// fetch requests every symbol concurrently. Symbols that fail or come back
// empty are logged and left out; no usable quote at all is an error.
func (p *Plugin) fetch(ctx context.Context) ([]Row, error) {
	key := p.key()
	if key == "" {
		return nil, errNoAPIKey
	}

	var mu sync.Mutex
	rows := make([]Row, 0, len(p.symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)
	for _, symbol := range p.symbols {
		g.Go(func() error {
			var q Quote
			params := url.Values{"symbol": {symbol}, "token": {key}}
			if err := p.client.JSON(gctx, p.baseURL+"/quote", params, &q); err != nil {
				p.Logger.Error("Stock API error", zap.String("symbol", symbol), zap.Error(err))
				return nil
			}
			if q.Current <= 0 {
				p.Logger.Warn("No data received", zap.String("symbol", symbol))
				return nil
			}
			mu.Lock()
			rows = append(rows, Row{Symbol: symbol, Quote: q})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("no valid stock data received")
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].Symbol < rows[j].Symbol })
	p.Logger.Info("Stock data fetched", zap.Int("symbols", len(rows)))
	return rows, nil
}

func (p *Plugin) draw(ctx context.Context) error {
	rows, err := p.fetch(ctx)
	if err != nil {
		return err
	}
	now := p.Now()

	c := p.NewCanvas(surface.White)
	y := c.Header("Stock Market", render.DefaultHeaderSize)

	status, statusColor := "Market Closed", surface.Red
	if MarketOpen(now) {
		status, statusColor = "Market Open", surface.Green
	}
	c.TextCentered(status, y+10, c.Font(render.Bold, 20), statusColor)

	tableY := y + 60
	symbolX, priceX, changeX, percentX := 80, 250, 400, 550
	head := c.Font(render.Bold, 20)
	c.Text(symbolX, tableY, "Symbol", head, surface.Black)
	c.Text(priceX, tableY, "Price", head, surface.Black)
	c.Text(changeX, tableY, "Change", head, surface.Black)
	c.Text(percentX, tableY, "Change %", head, surface.Black)

	lineY := tableY + 30
	c.HLine(50, c.Width()-50, lineY, 2, surface.Black)

	const rowHeight = 40
	data := c.Font(render.Regular, 18)
	bold := c.Font(render.Bold, 18)
	for i, row := range rows {
		if i >= maxRows {
			break
		}
		rowY := lineY + 20 + i*rowHeight
		q := row.Quote

		color := surface.Green
		if q.Change() < 0 {
			color = surface.Red
		}
		c.Text(symbolX, rowY, row.Symbol, bold, surface.Black)
		c.Text(priceX, rowY, fmt.Sprintf("$%.2f", q.Current), data, surface.Black)
		c.Text(changeX, rowY, FormatChange(q.Change()), data, color)
		c.Text(percentX, rowY, fmt.Sprintf("%+.1f%%", q.ChangePercent()), data, color)
	}

	if len(rows) <= maxSummaryRows {
		summaryY := lineY + 20 + len(rows)*rowHeight + 30
		first := rows[0]
		detail := c.Font(render.Regular, 16)
		c.Text(50, summaryY, "Today's Range:", c.Font(render.Bold, 18), surface.Blue)
		c.Text(50, summaryY+25, fmt.Sprintf("%s: $%.2f - $%.2f", first.Symbol, first.Quote.Low, first.Quote.High),
			detail, surface.Black)
		c.Text(50, summaryY+45, fmt.Sprintf("Open: $%.2f, Previous: $%.2f", first.Quote.Open, first.Quote.PreviousClose),
			detail, surface.Black)
	}

	c.Footer(fmt.Sprintf("Updated: %s • Data delayed", now.Format("15:04")), render.DefaultFooterSize)

	if err := p.Show(c); err != nil {
		return err
	}
	p.Logger.Info("Stock display updated", zap.Int("symbols", len(rows)))
	return nil
}

// MarketOpen is a rough check for US trading hours: weekdays from 09:00 to
// 16:00 local time, ignoring holidays.
func MarketOpen(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return t.Hour() >= 9 && t.Hour() < 16
}

// FormatChange renders a signed dollar amount such as "$+1.25".
func FormatChange(v float64) string {
	return fmt.Sprintf("$%+.2f", v)
}
