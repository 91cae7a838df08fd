package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/toshi0771/stock-screener-jp/internal/model"
)

// PostgresSink is the reference ResultSink adapter, following the
// teacher's internal/data/postgres style: plain parameterized SQL, no ORM,
// errors wrapped with context.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink wraps an already-connected pool.
func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

// SaveRun inserts a run_summaries row and returns its generated ID.
func (s *PostgresSink) SaveRun(ctx context.Context, summary model.RunSummary) (string, error) {
	runID := summary.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO run_summaries (run_id, rule, trading_date, market_filter, total_matched, exec_millis)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, runID, summary.Rule, summary.TradingDate, summary.MarketFilter, summary.TotalMatched, summary.ExecMillis)
	if err != nil {
		return "", fmt.Errorf("save run summary: %w", err)
	}
	return runID, nil
}

// SaveDetections batch-inserts detections for runID. The Attrs map is
// flattened into a jsonb column via pgtype.JSONB; the fixed columns spec
// §6 enumerates (ema10, ema20, ...) are populated from well-known Attrs
// keys when present, so a reader never needs to parse the jsonb blob for
// the common case.
func (s *PostgresSink) SaveDetections(ctx context.Context, runID string, detections []model.Detection) error {
	batch := make([][]interface{}, 0, len(detections))
	for _, d := range detections {
		attrsJSON, err := json.Marshal(d.Attrs)
		if err != nil {
			return fmt.Errorf("marshal detection attrs: %w", err)
		}
		var jsonb pgtype.JSONB
		if err := jsonb.Set(attrsJSON); err != nil {
			return fmt.Errorf("encode detection attrs: %w", err)
		}

		price := decimal.NewFromFloat(d.Price)
		batch = append(batch, []interface{}{
			runID, d.Symbol.Code, d.Symbol.DisplayName, string(d.Symbol.MarketSegment),
			price, d.Volume, d.BarDate,
			attrValue(d.Attrs, "ema10"), attrValue(d.Attrs, "ema20"), attrValue(d.Attrs, "ema50"),
			attrValue(d.Attrs, "sma200"), d.SMA200Position,
			attrValue(d.Attrs, "week52High"), d.TouchedEMAs, attrValue(d.Attrs, "pullbackPct"),
			attrValue(d.Attrs, "bbUpper"), attrValue(d.Attrs, "bbLower"), attrValue(d.Attrs, "bbMid"),
			d.TouchDirection, attrValue(d.Attrs, "stochK"), attrValue(d.Attrs, "stochD"),
			jsonb,
		})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin detections tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, row := range batch {
		_, err := tx.Exec(ctx, `
			INSERT INTO detections (
				run_id, code, name, market, close_price, volume, bar_date,
				ema10, ema20, ema50, sma200, sma200_position,
				week52_high, touch_ema, pullback_pct,
				bb_upper, bb_lower, bb_mid, touch_direction,
				stoch_k, stoch_d, attrs
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		`, row...)
		if err != nil {
			return fmt.Errorf("insert detection: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func attrValue(attrs map[string]float64, key string) interface{} {
	v, ok := attrs[key]
	if !ok {
		return nil
	}
	return v
}
