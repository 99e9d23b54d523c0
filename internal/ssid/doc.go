// Package ssid defines the bounded network identifier passed between the
// scanner, the allow-list, and the alert pipeline.
//
// Identifiers are capped at MaxLen bytes. Oversize input is truncated on a
// rune boundary instead of being rejected, so a hostile or malformed network
// name can never grow a buffer or split a UTF-8 sequence.
package ssid
