package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/voci/internal/apperr"
	"github.com/dropDatabas3/voci/internal/cache"
	"github.com/dropDatabas3/voci/internal/credstore"
)

func TestQueuesAreFIFO(t *testing.T) {
	c := NewCenter(context.Background(), nil)
	c.Toast(apperr.Notification{Title: "1"})
	c.Toast(apperr.Notification{Title: "2"})
	c.Alert(apperr.Alert{ActionURL: "u"})

	toasts, alerts := c.Pending()
	assert.Equal(t, 2, toasts)
	assert.Equal(t, 1, alerts)

	n, ok := c.NextToast()
	require.True(t, ok)
	assert.Equal(t, "1", n.Title)
	n, _ = c.NextToast()
	assert.Equal(t, "2", n.Title)
	_, ok = c.NextToast()
	assert.False(t, ok)

	a, ok := c.NextAlert()
	require.True(t, ok)
	assert.Equal(t, "u", a.ActionURL)
}

func TestDisabledFlagsDropItems(t *testing.T) {
	ctx := context.Background()
	store := credstore.NewStore(cache.NewMemory(""))
	c := NewCenter(ctx, store)
	require.NoError(t, c.SetFlags(ctx, Flags{AlertsEnabled: false, ToastsEnabled: true}))

	c.Alert(apperr.Alert{})
	_, alerts := c.Pending()
	assert.Equal(t, 0, alerts)

	// las flags persisten entre instancias
	again := NewCenter(ctx, store)
	assert.False(t, again.Flags().AlertsEnabled)
}

func TestResetClearsQueuesAndPersistedFlags(t *testing.T) {
	ctx := context.Background()
	store := credstore.NewStore(cache.NewMemory(""))
	c := NewCenter(ctx, store)
	require.NoError(t, c.SetFlags(ctx, Flags{AlertsEnabled: true, ToastsEnabled: false}))
	c.Alert(apperr.Alert{})

	c.Reset(ctx)

	toasts, alerts := c.Pending()
	assert.Zero(t, toasts)
	assert.Zero(t, alerts)
	assert.Equal(t, DefaultFlags(), c.Flags())

	var f Flags
	ok, err := store.Load(ctx, credstore.KeyNotificationActive, &f)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSubscribeReceivesItems(t *testing.T) {
	c := NewCenter(context.Background(), nil)
	ch, cancel := c.Subscribe()
	defer cancel()

	c.Toast(apperr.Notification{Title: "hola"})
	it := <-ch
	require.NotNil(t, it.Toast)
	assert.Equal(t, "hola", it.Toast.Title)

	cancel()
	_, open := <-ch
	assert.False(t, open)
	cancel() // idempotente
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	c := NewCenter(context.Background(), nil)
	_, cancel := c.Subscribe()
	defer cancel()
	for i := 0; i < subscriberBuffer*2; i++ {
		c.Toast(apperr.Notification{})
	}
	toasts, _ := c.Pending()
	assert.Equal(t, subscriberBuffer*2, toasts)
}

func TestCenterImplementsSink(t *testing.T) {
	var _ apperr.Sink = (*Center)(nil)
}
