package notify

import (
	"context"
	"errors"
	"loggingturtle/internal/entity"
	"loggingturtle/internal/stage"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCompose(t *testing.T) {
	n := New(entity.NotifyConfig{
		Server:  "smtp.example",
		Port:    587,
		Address: "turtle@example.com",
		To:      []string{"ops@example.com"},
	})
	mail := n.Compose(Failure{
		Entity: "FFPD",
		RunID:  "01HQ",
		At:     time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC),
		Err:    stage.Errorf(stage.Select, "page has 1 table(s)"),
	})

	require.Equal(t, "Logging Turtle <turtle@example.com>", mail.From)
	require.Equal(t, []string{"ops@example.com"}, mail.To)
	require.Equal(t, "[loggingturtle] FFPD failed at select", mail.Subject)
	require.Contains(t, string(mail.Text), "2024-03-02T06:00:00Z")
	require.Contains(t, string(mail.Text), "page has 1 table(s)")
}

func TestSendDisabled(t *testing.T) {
	n := New(entity.NotifyConfig{})
	require.False(t, n.Enabled())
	require.NoError(t, n.Send(context.Background(), Failure{Entity: "FFPD", Err: errors.New("boom")}))
}

func TestSendUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	n := New(entity.NotifyConfig{
		Server:  "127.0.0.1",
		Port:    port,
		Address: "turtle@example.com",
		To:      []string{"ops@example.com"},
	})
	err = n.Send(context.Background(), Failure{Entity: "FFPD", Err: errors.New("boom")})
	require.Error(t, err)
}
