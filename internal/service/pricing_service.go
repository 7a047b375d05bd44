package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/dixielabs/modmail/internal/config"
	"github.com/dixielabs/modmail/internal/transport"
)

var (
	linkPattern        = regexp.MustCompile(`https?://\S+`)
	customEmojiPattern = regexp.MustCompile(`<a?:\w+:\d+>`)
	exemptPattern      = regexp.MustCompile(`(?i)(TAT|TURN.?AROUND.?TIME|SLOTS)`)
	pricePattern       = regexp.MustCompile(`(?i)(?P<currency>[$€£¥₹]|USD|EUR|GBP|JPY|INR)?\s*(?P<amount>\d+(?:\.\d+)?)\s*(?P<post>[$€£¥₹]|USD|EUR|GBP|JPY|INR)?`)
)

// usdRates are fixed conversion rates into USD. Live FX precision is not
// needed to enforce a floor price.
var usdRates = map[string]float64{
	"USD": 1.0,
	"EUR": 1.08,
	"GBP": 1.27,
	"JPY": 0.0067,
	"INR": 0.012,
}

var symbolCurrencies = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
	"¥": "JPY",
	"₹": "INR",
}

// Price is one extracted amount/currency pair.
type Price struct {
	Amount   float64
	Currency string
}

// USD converts the price with the fixed rate table.
func (p Price) USD() float64 {
	rate, ok := usdRates[p.Currency]
	if !ok {
		rate = 1.0
	}
	return p.Amount * rate
}

// PricingService flags messages advertising prices below the configured
// minimum in the monitored channels.
type PricingService struct {
	cfg       config.PricingConfig
	messenger transport.Messenger
	monitored map[string]struct{}
	logger    *zap.Logger
}

// NewPricingService constructs the service.
func NewPricingService(cfg config.PricingConfig, messenger transport.Messenger, logger *zap.Logger) *PricingService {
	monitored := make(map[string]struct{}, len(cfg.MonitoredChannels))
	for _, id := range cfg.MonitoredChannels {
		monitored[id] = struct{}{}
	}
	return &PricingService{
		cfg:       cfg,
		messenger: messenger,
		monitored: monitored,
		logger:    logger,
	}
}

// Monitored reports whether the channel is subject to the pricing filter.
func (s *PricingService) Monitored(channelID string) bool {
	_, ok := s.monitored[channelID]
	return ok
}

// Check extracts prices from the text and reports the ones below the
// minimum. TAT/slot mentions and the advertised allowed range are stripped
// before extraction.
func (s *PricingService) Check(text string) ([]Price, bool) {
	cleaned := s.clean(text)
	var violations []Price
	for _, price := range extractPrices(cleaned) {
		if price.USD() < s.cfg.MinimumUSD {
			violations = append(violations, price)
		}
	}
	return violations, len(violations) > 0
}

// HandleMessage runs the filter on a monitored-channel message. A flagged
// message is removed and a violation notice goes to the moderation-log
// channel for staff to pick up the warning workflow.
func (s *PricingService) HandleMessage(ctx context.Context, channelID, messageID, userID, text string) (bool, error) {
	if !s.Monitored(channelID) {
		return false, nil
	}
	violations, flagged := s.Check(text)
	if !flagged {
		return false, nil
	}

	if err := s.messenger.DeleteMessage(ctx, channelID, messageID); err != nil {
		s.logger.Warn("flagged message removal failed",
			zap.String("channel_id", channelID), zap.String("message_id", messageID), zap.Error(err))
	}

	amounts := make([]string, len(violations))
	for i, p := range violations {
		amounts[i] = fmt.Sprintf("%.2f %s", p.Amount, p.Currency)
	}
	notice := fmt.Sprintf(
		"Possible pricing violation by <@%s> in <#%s> (message %s): found %s below the $%.0f minimum.\n> %s",
		userID, channelID, messageID, strings.Join(amounts, ", "), s.cfg.MinimumUSD, truncate(text, 900))
	if err := s.messenger.SendChannel(ctx, s.cfg.ModLogChannelID, notice); err != nil {
		return true, err
	}
	return true, nil
}

func (s *PricingService) clean(text string) string {
	text = linkPattern.ReplaceAllString(text, "")
	text = customEmojiPattern.ReplaceAllString(text, "")
	text = exemptPattern.ReplaceAllString(text, "")
	if s.cfg.AllowedRange != "" {
		text = strings.ReplaceAll(text, s.cfg.AllowedRange, "")
	}
	return text
}

func extractPrices(text string) []Price {
	var prices []Price
	for _, match := range pricePattern.FindAllStringSubmatch(text, -1) {
		pre, amountText, post := match[1], match[2], match[3]
		if pre == "" && post == "" {
			// a bare number is not a price
			continue
		}
		amount, err := strconv.ParseFloat(amountText, 64)
		if err != nil {
			continue
		}
		prices = append(prices, Price{Amount: amount, Currency: resolveCurrency(pre, post)})
	}
	return prices
}

func resolveCurrency(pre, post string) string {
	code := currencyCode(post)
	if code == "" {
		code = currencyCode(pre)
	}
	if code == "" {
		code = "USD"
	}
	return code
}

func currencyCode(token string) string {
	if token == "" {
		return ""
	}
	if code, ok := symbolCurrencies[token]; ok {
		return code
	}
	return strings.ToUpper(token)
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "…"
}
