package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlocked(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"captcha lowercase", "please solve this captcha to continue", true},
		{"captcha mixed case", "Potvrdite da niste robot: CAPTCHA", true},
		{"access denied", "Access Denied - you do not have permission", true},
		{"too many requests", "429 Too Many Requests", true},
		{"shield interstitial", "Checking your browser... Shield protection active", true},
		{"rate limit", "You have hit a rate limit, slow down", true},
		{"ordinary listing page", "BMW 320d, 2018. godište, 189.000 km", false},
		{"empty body", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Blocked(tt.body))
		})
	}
}
