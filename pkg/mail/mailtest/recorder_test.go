package mailtest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/sessiond/pkg/mail"
)

func TestRecorderExtractsLatestCode(t *testing.T) {
	rec := &Recorder{}
	ctx := context.Background()

	require.NoError(t, rec.Send(ctx, mail.Message{To: []string{"a@example.com"}, Body: "link https://x.test/confirm?code=first\r\n"}))
	require.NoError(t, rec.Send(ctx, mail.Message{To: []string{"b@example.com"}, Body: "link https://x.test/confirm?code=other"}))
	require.NoError(t, rec.Send(ctx, mail.Message{To: []string{"a@example.com"}, Body: "link https://x.test/confirm?code=second\r\n"}))

	require.Len(t, rec.Messages(), 3)
	require.Equal(t, "second", rec.LastCode("a@example.com"))
	require.Equal(t, "other", rec.LastCode("b@example.com"))
	require.Empty(t, rec.LastCode("c@example.com"))
	require.Empty(t, Code(mail.Message{Body: "no link"}))

	rec.Err = errors.New("smtp down")
	require.Error(t, rec.Send(ctx, mail.Message{To: []string{"a@example.com"}}))
	require.Len(t, rec.Messages(), 4)
}
