// Package pipeline drives one archive run: it enumerates the date range,
// feeds a bounded queue, and runs K workers that take each date from index
// lookup through page extraction, persistence, and image download.
package pipeline
