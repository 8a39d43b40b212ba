// Package infra holds the adapters behind the core interfaces. Core
// packages never import infra; the app package wires the two together.
package infra
