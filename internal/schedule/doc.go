// Package schedule decides which tracked items are due for a reminder.
//
// Everything here is pure: callers pass "now" (usually from a Clock) and an
// item snapshot, and get back a due set or a Patch. Storage and delivery live
// elsewhere (internal/storage, internal/reminder).
//
// An item is due when all of these hold:
//   - its cadence matches today's calendar slot (MatchesCalendarSlot)
//   - its release time of day has been reached (IsTimeReady)
//   - it has not been notified earlier on the same local date (AlreadyNotifiedToday)
package schedule
