// Seed tool: inserts a couple of example strategies so a fresh install
// has something to evaluate. Usage:
//
//	STORE_URL=postgres://... go run ./cmd/seed
package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"strategy-monitor/internal/database"
	"strategy-monitor/internal/logging"
)

func main() {
	godotenv.Load()

	logger := logging.New("info", false)

	dsn := os.Getenv("STORE_URL")
	if dsn == "" {
		logger.Fatal().Msg("STORE_URL is required")
	}

	db, err := database.NewDB(dsn, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal().Err(err).Msg("migrations failed")
	}

	repo := database.NewStrategyRepository(db)
	userID := uuid.New()

	for _, s := range exampleStrategies(userID) {
		if err := repo.CreateStrategy(ctx, s); err != nil {
			logger.Fatal().Err(err).Str("name", s.Name).Msg("failed to seed strategy")
		}
		logger.Info().Str("name", s.Name).Str("id", s.ID.String()).Msg("seeded strategy")
	}
}

func payload(v interface{}) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

func target(v float64) *float64 { return &v }

func exampleStrategies(userID uuid.UUID) []*database.Strategy {
	priceDip := &database.Condition{
		ID:      uuid.New(),
		Type:    database.ConditionPriceAlert,
		Enabled: true,
		Payload: payload(database.PriceAlertPayload{
			Asset: "BTC", Direction: "below", TargetPrice: target(50000),
		}),
	}
	oversold := &database.Condition{
		ID:      uuid.New(),
		Type:    database.ConditionTechnicalIndicator,
		Enabled: true,
		Payload: payload(database.TechnicalIndicatorPayload{
			Indicator: "rsi",
			Params:    database.IndicatorParams{Period: 14},
			Operator:  "lt",
			Value:     target(30),
			Asset:     "BTC",
			Timeframe: "1h",
		}),
	}
	volumeSpike := &database.Condition{
		ID:      uuid.New(),
		Type:    database.ConditionVolumeAlert,
		Enabled: true,
		Payload: payload(database.VolumeAlertPayload{
			Asset: "ETH", Timeframe: "1h", Operator: "gt", Threshold: target(1_000_000),
		}),
	}

	return []*database.Strategy{
		{
			UserID:   userID,
			Name:     "BTC dip with oversold RSI",
			Schedule: "1m",
			Status:   database.StatusActive,
			Assets:   []string{"BTC"},
			LogicTree: &database.LogicNode{
				Operator: database.OperatorAnd,
				Conditions: []*database.LogicNode{
					{Ref: priceDip.ID.String()},
					{Ref: oversold.ID.String()},
				},
			},
			Conditions: []*database.Condition{priceDip, oversold},
		},
		{
			UserID:    userID,
			Name:      "ETH volume spike",
			Schedule:  "5m",
			Status:    database.StatusActive,
			Assets:    []string{"ETH"},
			LogicTree: &database.LogicNode{Ref: volumeSpike.ID.String()},
			Conditions: []*database.Condition{volumeSpike},
		},
	}
}
