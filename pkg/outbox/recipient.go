package outbox

import (
	"fmt"
	"strings"

	"github.com/dmitrymomot/notifykit/pkg/notification"
	"github.com/dmitrymomot/notifykit/pkg/validator"
)

const maxPushTokenLength = 4096

// normalizeRecipient checks the address against the channel's format and
// returns the form that is stored.
func normalizeRecipient(ch notification.Channel, recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)

	var rules []validator.Rule
	switch ch {
	case notification.ChannelEmail:
		rules = append(rules, validator.ValidEmail("recipient", recipient))
	case notification.ChannelSMS:
		recipient = strings.NewReplacer(" ", "", "-", "").Replace(recipient)
		rules = append(rules,
			validator.ValidPhone("recipient", recipient),
			e164Prefix("recipient", recipient))
	case notification.ChannelWebhook:
		rules = append(rules, validator.ValidURLWithScheme("recipient", recipient, []string{"http", "https"}))
	case notification.ChannelPush:
		rules = append(rules,
			validator.RequiredString("recipient", recipient),
			validator.MaxLenString("recipient", recipient, maxPushTokenLength))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChannel, ch)
	}

	if err := validator.Apply(rules...); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRecipient, err)
	}
	return recipient, nil
}

func e164Prefix(field, value string) validator.Rule {
	return validator.Rule{
		Check: func() bool { return strings.HasPrefix(value, "+") },
		Error: validator.ValidationError{
			Field:             field,
			Message:           "must start with a country code prefix (+)",
			TranslationKey:    "validation.phone_prefix",
			TranslationValues: map[string]any{"field": field},
		},
	}
}
