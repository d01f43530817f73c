// Package delivery runs campaign sends.
//
// A run claims the campaign's single sending slot, renders content once,
// freezes (or reuses) the recipient snapshot and fans the pending rows out
// to a fixed-size worker pool. Each worker owns one recipient at a time and
// finalizes only that row. Transient transport errors are retried with
// exponential backoff; permanent ones bounce the row immediately.
//
// Resend reuses the same machinery for rows that previously failed or
// bounced. Rows already sent are never touched.
package delivery
