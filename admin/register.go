// Package admin exposes a REST introspection surface over an in-process
// lockfuture.Coordinator: listing in-flight attempts, inspecting one
// attempt's mini-futures, and force-expiring a stuck attempt.
package admin

import (
	"fmt"

	"github.com/gin-gonic/gin"
)

// HTTPVerb enumerates supported HTTP operations.
type HTTPVerb int

const (
	// Unknown represents an unspecified HTTP verb.
	Unknown HTTPVerb = iota
	// GET lists or retrieves resources.
	GET
	// POST performs a state-changing action.
	POST
)

// RestMethod describes a route handler with HTTP verb, path and handler function.
type RestMethod struct {
	Verb    HTTPVerb
	Path    string
	Handler func(c *gin.Context)
}

var restMethods = make(map[string]RestMethod)

// RegisterMethod builds a RestMethod and registers it in the package registry.
func RegisterMethod(verb HTTPVerb, path string, h func(c *gin.Context)) error {
	return Register(RestMethod{Verb: verb, Path: path, Handler: h})
}

// Register inserts a RestMethod into the global registry, rejecting a
// duplicate verb+path pair.
func Register(m RestMethod) error {
	key := fmt.Sprintf("%d_%s", m.Verb, m.Path)
	if _, exists := restMethods[key]; exists {
		return fmt.Errorf("admin: handler for %s already registered", key)
	}
	restMethods[key] = m
	return nil
}

// RestMethods returns every registered RestMethod, keyed by verb+path.
func RestMethods() map[string]RestMethod {
	return restMethods
}
