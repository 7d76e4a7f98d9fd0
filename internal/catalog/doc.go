// Package catalog defines the product types, collaborator interfaces, and
// sentinel errors shared by the scrape pipeline, the stores, and the HTTP API.
package catalog
