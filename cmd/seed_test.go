package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/CoolE88/observatory/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func TestSeedPoints(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 30)

	points, err := seedPoints(utils.NewTimeGenerator(from, to), 50, "weight", "weight", 80, 2)
	require.NoError(t, err)
	require.Len(t, points, 50)

	for i, p := range points {
		assert.Equal(t, "weight", p.Bucket)
		assert.False(t, p.Timestamp.Before(from))
		assert.True(t, p.Timestamp.Before(to))
		if i > 0 {
			assert.False(t, p.Timestamp.Before(points[i-1].Timestamp))
		}

		var payload map[string]float64
		require.NoError(t, json.Unmarshal(p.Payload, &payload))
		assert.InDelta(t, 80, payload["weight"], 2)
	}
}

func TestCommands(t *testing.T) {
	var names []string
	for _, cmd := range []*cli.Command{serveCommand(), migrateCommand(), emitterCommand(), seedCommand()} {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"serve", "migrate", "emitter", "seed"}, names)

	var sub []string
	for _, c := range emitterCommand().Commands {
		sub = append(sub, c.Name)
	}
	assert.Equal(t, []string{"add", "list", "delete"}, sub)
}
