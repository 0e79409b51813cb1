// Package comics holds the domain types, sentinel errors, and collaborator
// interfaces shared by the archive pipeline: dates, records, snapshots, fetch
// responses, and the store and asset contracts.
package comics
