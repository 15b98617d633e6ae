// Package triage scores and tiers inbound messages.
package triage
