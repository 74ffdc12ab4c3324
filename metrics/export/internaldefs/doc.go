// Package internaldefs holds the shared metric definitions used by the
// Prometheus and OTel exporters. It exists so both exporters render the
// same names, help text, and bucket layout from one table.
package internaldefs
