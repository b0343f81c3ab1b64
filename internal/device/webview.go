// Beacon - Client Telemetry Collection Agent
// Copyright 2026 Perimetra Labs
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/perimetra/beacon

package device

import "strings"

// DetectWebview classifies the embedding app from the user agent and the
// injected global object names. Returns "" when no known webview matches.
// Classification only; it never fails.
func DetectWebview(userAgent string, globals []string) string {
	has := func(name string) bool {
		for _, g := range globals {
			if g == name {
				return true
			}
		}
		return false
	}

	// Telegram injects globals instead of marking the user agent.
	if strings.Contains(userAgent, "Android") && has("TelegramWebview") {
		return "Telegram"
	}
	if strings.Contains(userAgent, "iPhone") && has("TelegramWebviewProxy") && has("TelegramWebviewProxyProto") {
		return "Telegram"
	}

	switch {
	case strings.Contains(userAgent, "FBAN"),
		strings.Contains(userAgent, "FBAV"),
		strings.Contains(userAgent, "FBIOS"):
		return "Facebook"
	case strings.Contains(userAgent, "Instagram"):
		return "Instagram"
	case strings.Contains(userAgent, "WhatsApp"):
		return "WhatsApp"
	case strings.Contains(userAgent, "Twitter"):
		return "Twitter"
	case strings.Contains(userAgent, "LinkedInApp"):
		return "LinkedIn"
	case strings.Contains(userAgent, "Slack"):
		return "Slack"
	}
	return ""
}
