// Package reminder runs reminder passes: fetch candidates, evaluate the due
// set, send one message per due item and persist the advancement of each
// delivered item before moving to the next.
package reminder
