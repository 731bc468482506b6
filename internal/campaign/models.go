package campaign

import (
	"fmt"
	"strings"
)

// TriggerKind: "immediate" | "delay" | "scroll" | "exit_intent"
type TriggerKind string

const (
	TriggerImmediate  TriggerKind = "immediate"
	TriggerDelay      TriggerKind = "delay"
	TriggerScroll     TriggerKind = "scroll"
	TriggerExitIntent TriggerKind = "exit_intent"
)

// TriggerRule is a tagged variant. DelaySeconds is read for TriggerDelay,
// ScrollPercent for TriggerScroll; both are ignored otherwise.
type TriggerRule struct {
	Kind          TriggerKind `json:"kind"`
	DelaySeconds  float64     `json:"delay_seconds,omitempty"`
	ScrollPercent float64     `json:"scroll_percent,omitempty"`
}

func Immediate() TriggerRule { return TriggerRule{Kind: TriggerImmediate} }

func AfterDelay(seconds float64) TriggerRule {
	return TriggerRule{Kind: TriggerDelay, DelaySeconds: seconds}
}

func OnScrollDepth(pct float64) TriggerRule {
	return TriggerRule{Kind: TriggerScroll, ScrollPercent: pct}
}

func OnExitIntent() TriggerRule { return TriggerRule{Kind: TriggerExitIntent} }

func (r TriggerRule) String() string {
	switch r.Kind {
	case TriggerDelay:
		return fmt.Sprintf("delay(%gs)", r.DelaySeconds)
	case TriggerScroll:
		return fmt.Sprintf("scroll(%g%%)", r.ScrollPercent)
	default:
		return string(r.Kind)
	}
}

// FrequencyPolicy: "always" | "once_per_session" | "once_per_day"
type FrequencyPolicy string

const (
	Always             FrequencyPolicy = "always"
	OncePerSession     FrequencyPolicy = "once_per_session"
	OncePerCalendarDay FrequencyPolicy = "once_per_day"
)

// ParseTriggerKind canonicalizes the stored rule name. Unknown names are
// returned as-is so the trigger factory can log and ignore them.
func ParseTriggerKind(s string) TriggerKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "immediate", "on_load", "onload":
		return TriggerImmediate
	case "delay", "after_delay", "timer":
		return TriggerDelay
	case "scroll", "scroll_depth", "on_scroll":
		return TriggerScroll
	case "exit_intent", "exit", "on_exit":
		return TriggerExitIntent
	}
	return TriggerKind(strings.ToLower(strings.TrimSpace(s)))
}

// ParseFrequency defaults to Always for empty or unknown values.
func ParseFrequency(s string) FrequencyPolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "once_per_session", "session":
		return OncePerSession
	case "once_per_day", "daily", "calendar_day":
		return OncePerCalendarDay
	}
	return Always
}

// Content is forwarded to the renderer untouched.
type Content struct {
	Title        string `json:"title,omitempty"`
	Body         string `json:"body,omitempty"`
	MediaURL     string `json:"media_url,omitempty"`
	CTALabel     string `json:"cta_label,omitempty"`
	CTAURL       string `json:"cta_url,omitempty"`
	EmailCapture bool   `json:"email_capture,omitempty"`
}

// Campaign is an immutable snapshot for the duration of one visit.
type Campaign struct {
	ID        string          `json:"id"`
	Trigger   TriggerRule     `json:"trigger"`
	Frequency FrequencyPolicy `json:"frequency"`
	Content   Content         `json:"content"`
	IsActive  bool            `json:"is_active"`
}
