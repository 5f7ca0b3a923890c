// Package pageserverclient is the reconciler's HTTP/JSON client for talking
// to page servers: writing location config (LocationConfig) and reading
// timeline LSNs for live-migration catch-up polling (Timelines).
package pageserverclient
