package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/code-payments/purchase-engine/metrics"
	platform "github.com/code-payments/purchase-engine/platform/memory"
	"github.com/code-payments/purchase-engine/product"
	"github.com/code-payments/purchase-engine/validator"
	"github.com/code-payments/purchase-engine/verified/memory"
)

// Demo: declare the test catalog, buy the consumable, and watch the
// validator confirm the purchase.
func main() {
	_ = godotenv.Load()

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	metrics.Register()

	opts := []validator.Option{
		validator.WithStore(memory.NewInMemory()),
		validator.WithApplicationUsername(func() string { return os.Getenv("APPLICATION_USERNAME") }),
	}
	if url := os.Getenv("VALIDATOR_URL"); url != "" {
		opts = append(opts, validator.WithURL(url))
	}

	v := validator.New(logger, opts...)
	v.OnVerified(func(vr *validator.VerifiedReceipt) {
		fmt.Printf("verified: %s on %s (%d purchases)\n", vr.ID, vr.Platform, len(vr.Collection))
	})
	v.OnUnverified(func(ur validator.UnverifiedReceipt) {
		fmt.Printf("unverified: %s (%s)\n", ur.Receipt.Key(), ur.Payload.Message)
	})

	adapter := platform.NewAdapter(logger, platform.WithDelay(50*time.Millisecond))
	defer adapter.Shutdown()
	v.RegisterAdapter(adapter)

	ctx := context.Background()

	results := adapter.Load(ctx, []platform.Register{
		{ID: platform.ConsumableID, Type: product.TypeConsumable},
		{ID: platform.SubscriptionID, Type: product.TypePaidSubscription},
	})
	for _, result := range results {
		if result.Err != nil {
			logger.Warn("Failed to load product", zap.Error(result.Err))
			continue
		}
		fmt.Printf("loaded: %s (%s)\n", result.Product.ID, result.Product.Offers[0].PricingPhases[0].FormattedPrice())
	}

	consumable := adapter.Products()[0]
	if err := adapter.Order(ctx, consumable.Offers[0]); err != nil {
		logger.Warn("Order failed", zap.Error(err))
		return
	}

	for _, r := range adapter.Receipts() {
		v.Add(r)
	}
	v.Run(ctx)
}
