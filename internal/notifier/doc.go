// Package notifier delivers reminder messages to the configured chat.
//
// # Transport
//
// Delivery goes through a transport.Sender (the Telegram adapter in
// production). The service owns the chat target, parse mode and throttling
// so the dispatcher only hands over rendered text.
//
// # Delivery
//
// Send is synchronous: the caller learns whether the message was accepted
// before it advances the item. There is no internal retry; an undelivered
// item stays due and is picked up by the next pass.
//
// # History
//
// For operator visibility, the service keeps a small in-memory history of
// recent deliveries and failures.
package notifier
