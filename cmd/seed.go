package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/CoolE88/observatory/internal/domain"
	"github.com/CoolE88/observatory/pkg/utils"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
)

// seedCommand заполняет бакет случайными измерениями, чтобы было на чём
// проверить дашборд и аналитику веса
func seedCommand() *cli.Command {
	return &cli.Command{
		Name:  "seed",
		Usage: "Insert random measurements into a bucket",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bucket", Usage: "Target bucket, defaults to WEIGHT_BUCKET"},
			&cli.StringFlag{Name: "field", Usage: "Payload field name", Value: "weight"},
			&cli.IntFlag{Name: "count", Usage: "Number of points", Value: 60},
			&cli.IntFlag{Name: "days", Usage: "Spread points over the last N days", Value: 60},
			&cli.FloatFlag{Name: "base", Usage: "Mean value", Value: 80},
			&cli.FloatFlag{Name: "spread", Usage: "Maximum deviation from the mean", Value: 1.5},
		},
		Action: seed,
	}
}

func seed(ctx context.Context, cmd *cli.Command) error {
	env, err := newEnvironment()
	if err != nil {
		return err
	}
	defer env.close()

	bucket := cmd.String("bucket")
	if bucket == "" {
		bucket = env.cfg.QueryConfig.WeightBucket
	}
	count, days := cmd.Int("count"), cmd.Int("days")
	if count < 1 || days < 0 {
		return fmt.Errorf("count must be positive and days must not be negative")
	}

	points, err := seedPoints(utils.PastDaysGenerator(int(days)), int(count), bucket, cmd.String("field"), cmd.Float("base"), cmd.Float("spread"))
	if err != nil {
		return err
	}

	repo, err := env.openRepository(ctx)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.InsertPoints(ctx, points); err != nil {
		return fmt.Errorf("failed to insert points: %w", err)
	}

	env.logger.Info("Seeded bucket",
		zap.String("bucket", bucket),
		zap.Int("count", len(points)),
		zap.Int64("days", days))
	return nil
}

// seedPoints генерирует count точек вида {field: value} в хронологическом порядке
func seedPoints(gen *utils.TimeGenerator, count int, bucket, field string, base, spread float64) ([]domain.NewPoint, error) {
	points := make([]domain.NewPoint, count)
	for i := range points {
		payload, err := json.Marshal(map[string]float64{
			field: utils.GenerateRandomPayload(base, spread),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		points[i] = domain.NewPoint{
			Timestamp: gen.Generate(),
			Bucket:    bucket,
			Payload:   payload,
		}
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	return points, nil
}
