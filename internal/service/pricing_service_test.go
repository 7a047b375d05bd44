package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/config"
)

func newPricingService(messenger *fakeMessenger) *PricingService {
	return NewPricingService(config.PricingConfig{
		MinimumUSD:        100,
		MonitoredChannels: []string{"market-1"},
		ModLogChannelID:   "mod-log",
		AllowedRange:      "$100-$140",
	}, messenger, zap.NewNop())
}

func TestCheckFlagsLowPrices(t *testing.T) {
	svc := newPricingService(newFakeMessenger())

	cases := []struct {
		name    string
		text    string
		flagged bool
	}{
		{"dollar symbol below minimum", "selling a full set for $60", true},
		{"dollar symbol at minimum", "full set for $100", false},
		{"trailing symbol", "full set for 60$", true},
		{"currency code", "60 USD per piece", true},
		{"euro above minimum", "€120 firm", false},
		{"euro below minimum", "€50 firm", true},
		{"yen converts below minimum", "5000 JPY", true},
		{"bare number ignored", "I finished 60 commissions", false},
		{"decimal amount", "price is $99.99", true},
		{"no prices", "dm me for info", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, flagged := svc.Check(tc.text)
			assert.Equal(t, tc.flagged, flagged, tc.text)
		})
	}
}

func TestCheckIgnoresExemptMentions(t *testing.T) {
	svc := newPricingService(newFakeMessenger())

	for _, text := range []string{
		"TAT is 5 days",
		"turnaround time: 3 weeks",
		"turn-around-time 10 days",
		"3 slots open",
	} {
		_, flagged := svc.Check(text)
		assert.False(t, flagged, text)
	}

	// exempt words do not shield a real price in the same message
	_, flagged := svc.Check("TAT 5 days, price $40")
	assert.True(t, flagged)
}

func TestCheckStripsLinksEmojiAndAllowedRange(t *testing.T) {
	svc := newPricingService(newFakeMessenger())

	_, flagged := svc.Check("portfolio: https://example.com/gallery?id=42")
	assert.False(t, flagged)

	_, flagged = svc.Check("fresh work <:art:123456789>")
	assert.False(t, flagged)

	_, flagged = svc.Check("commissions open, $100-$140 depending on detail")
	assert.False(t, flagged)
}

func TestCheckReportsEachViolation(t *testing.T) {
	svc := newPricingService(newFakeMessenger())

	violations, flagged := svc.Check("busts $40, full body $80, full set $150")
	require.True(t, flagged)
	require.Len(t, violations, 2)
	assert.Equal(t, 40.0, violations[0].Amount)
	assert.Equal(t, "USD", violations[0].Currency)
	assert.Equal(t, 80.0, violations[1].Amount)
}

func TestHandleMessagePostsNotice(t *testing.T) {
	messenger := newFakeMessenger()
	svc := newPricingService(messenger)
	ctx := context.Background()

	flagged, err := svc.HandleMessage(ctx, "market-1", "msg-1", "user-1", "full set for $60")
	require.NoError(t, err)
	assert.True(t, flagged)

	notices := messenger.messagesIn("mod-log")
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0], "<@user-1>")
	assert.Contains(t, notices[0], "60.00 USD")
	assert.Equal(t, []string{"market-1/msg-1"}, messenger.removedMsgs)
}

func TestHandleMessageIgnoresUnmonitoredChannel(t *testing.T) {
	messenger := newFakeMessenger()
	svc := newPricingService(messenger)

	flagged, err := svc.HandleMessage(context.Background(), "general", "msg-1", "user-1", "$5 each")
	require.NoError(t, err)
	assert.False(t, flagged)
	assert.Empty(t, messenger.messagesIn("mod-log"))
}

func TestPriceUSDConversion(t *testing.T) {
	assert.InDelta(t, 108.0, Price{Amount: 100, Currency: "EUR"}.USD(), 0.001)
	assert.InDelta(t, 33.5, Price{Amount: 5000, Currency: "JPY"}.USD(), 0.001)
	assert.InDelta(t, 42.0, Price{Amount: 42, Currency: "XXX"}.USD(), 0.001)
}
