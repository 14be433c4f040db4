// Package sheets registers the workbook layouts with the core registry.
// Import this package to ensure all layouts are registered.
package sheets

// Each layout file uses init() to register its layout.
