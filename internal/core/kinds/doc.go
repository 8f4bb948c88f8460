// Package kinds registers the importable entity kinds with the core registry.
// Import this package for its side effects to make plant_taxon and
// plant_instance available.
package kinds
