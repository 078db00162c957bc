package chrono

import (
	"context"
	"loggingturtle/internal/components/telemetry"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStandardCron(t *testing.T) {
	defer goleak.VerifyNone(t)

	tel := telemetry.NewRecorder()
	c := NewStandardCron(tel, NewStandardTime(time.UTC))

	ticks := make(chan struct{}, 8)
	err := c.Cron("@every 1s", func() {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})
	require.NoError(t, err)

	c.Start()
	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("cron job never ran")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	c.Stop(ctx)
}

func TestStandardCronInvalidSpec(t *testing.T) {
	c := NewStandardCron(telemetry.NewRecorder(), NewStandardTime(time.UTC))
	err := c.Cron("not a spec", func() {})
	require.Error(t, err)
}
