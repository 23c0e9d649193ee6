// Package timers virtualizes realm timers.
//
// The realm asks for a timer by a logical tempId; the host owns the real
// time.Timer and posts sandbox-timer-fire back when it elapses. Clearing and
// recycling cancel the real timer so nothing fires into a later realm.
package timers
