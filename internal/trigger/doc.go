// Package trigger decides when automations fire.
//
// Time triggers use a two-field pattern, HOURSPEC ":" MINUTESPEC, where each
// field is "*" (any), "*/N" (value divisible by N) or a literal value:
//
//	"*:00"     every hour on the hour
//	"*/2:00"   every even hour
//	"*:*/15"   every quarter hour
//	"12:30"    once a day
//	"*" or ""  every minute
//
// Event triggers match the id of the entity that just changed against a glob
// in which '*' is the only wildcard. Matching is case-sensitive and ignores
// the entity kind.
//
// Tracker turns the controller's clock reports into minute ticks so that a
// report repeating the current minute does not fire time triggers twice.
package trigger
