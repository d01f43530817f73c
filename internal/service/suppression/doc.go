// Package suppression implements the global suppression list service.
//
// Addresses land here when delivery reports a permanent failure or an
// operator blocks them by hand. The recipient builder consults the list
// before freezing a snapshot, so suppressed addresses never enter a new
// campaign.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package suppression
