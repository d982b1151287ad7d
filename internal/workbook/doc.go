// Package workbook renders an exposure result as the Excel artifact the
// tool exists to produce.
package workbook
