package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/JonMunkholm/worksplit/internal/table"
)

func TestRegistrationPoller(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	newRegistrationRows(t, f, table.Row{"2020/04/10 9:00:00", "a", "a@example.org", "", nil})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.svc.StartRegistrationPoller(ctx, 10*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		editors, err := f.wb.Editors(context.Background())
		return err == nil && len(editors) == 1
	}, time.Second, 5*time.Millisecond)

	// later passes find nothing pending
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancel")
	}

	assert.Equal(t, "承認", rowsOf(t, f.wb, "フォームの回答 1")[0][4])
	// one registrant mail and one admin summary, not repeated per pass
	assert.Len(t, f.mailer.Sent(), 2)
}

func TestRegistrationPoller_Disabled(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	// returns immediately without a ticker
	f.svc.StartRegistrationPoller(context.Background(), 0)
}
