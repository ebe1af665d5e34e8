// Package notify delivers best-effort notifications to external channels.
//
// A channel descriptor is an opaque string registered by the client: webhook
// URLs (http:// or https://) receive a JSON POST, anything else is treated
// as a Pebble timeline token and gets a timeline pin. Delivery failures are
// logged and swallowed; the relay core never observes them.
package notify
