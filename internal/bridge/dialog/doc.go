// Package dialog turns the realm's blocking alert, prompt and confirm calls
// into request/response pairs answered by the host UI.
//
// Each request gets a host-minted id. Requests queue FIFO and only the head
// is presented; resolving it sends exactly one response envelope back to the
// realm. Pending dialogs are discarded unanswered when the realm is recycled.
package dialog
