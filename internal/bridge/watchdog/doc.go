// Package watchdog bounds how long a run may hold the realm.
//
// Per run: armed -> disarmed (finished in time), expired (budget elapsed) or
// superseded (a newer run was armed). Only one run is armed at a time.
package watchdog
